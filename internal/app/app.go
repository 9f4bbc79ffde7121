// Package app assembles configuration, stores, brokers and services into
// a runnable application.
package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"tradefan/internal/config"
	"tradefan/internal/executor"
	"tradefan/internal/intake"
	"tradefan/internal/logger"
	"tradefan/internal/monitor"
	"tradefan/internal/store/gormstore"
	"tradefan/internal/store/orderlog"
	tradehttp "tradefan/internal/transport/http"
	"tradefan/internal/types"
)

// App owns application-level orchestration: dependency construction,
// startup and shutdown ordering.
type App struct {
	cfg     *config.Config
	store   *gormstore.GormStore
	orders  *orderlog.Store
	server  *tradehttp.Server
	monitor *monitor.Monitor
}

// NewApp builds the application from configuration without starting it.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	return buildAppWithWire(cfg)
}

// Run starts the HTTP server and the SL/TP monitor and blocks until ctx
// is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.close()

	group, ctx := errgroup.WithContext(ctx)

	if a.monitor != nil {
		a.monitor.Start(ctx)
		group.Go(func() error {
			<-ctx.Done()
			a.monitor.Stop()
			return nil
		})
	}

	group.Go(func() error {
		logger.Infof("http server listening on %s", a.server.Addr())
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	return group.Wait()
}

func (a *App) close() {
	if a.orders != nil {
		if err := a.orders.Close(); err != nil {
			logger.Warnf("close order log: %v", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warnf("close store: %v", err)
		}
	}
}

// signalFlow glues intake and fan-out behind the webhook's service
// interface.
type signalFlow struct {
	intake      *intake.Intake
	coordinator *executor.Coordinator
}

func (f *signalFlow) Admit(ctx context.Context, p intake.Payload) (types.Signal, error) {
	return f.intake.Admit(ctx, p)
}

func (f *signalFlow) ExecuteForSignal(ctx context.Context, sig types.Signal) error {
	return f.coordinator.ExecuteForSignal(ctx, sig)
}
