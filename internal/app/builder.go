package app

import (
	"fmt"
	"time"

	"tradefan/internal/broker"
	"tradefan/internal/config"
	"tradefan/internal/executor"
	"tradefan/internal/intake"
	"tradefan/internal/logger"
	"tradefan/internal/monitor"
	"tradefan/internal/pkg/keylock"
	"tradefan/internal/position"
	"tradefan/internal/store/gormstore"
	"tradefan/internal/store/orderlog"
	"tradefan/internal/strategy"
	tradehttp "tradefan/internal/transport/http"
)

// AppBuilder assembles the application from configuration. The build
// steps are swappable so tests can substitute individual components.
type AppBuilder struct {
	cfg *config.Config

	storeFn    func(config.StoreConfig) (*gormstore.GormStore, error)
	orderLogFn func(config.StoreConfig) (*orderlog.Store, error)
	registryFn func(config.StrategiesConfig) (*strategy.Registry, error)
	brokersFn  func(config.BrokersConfig) *broker.Registry
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		storeFn:    buildStore,
		orderLogFn: buildOrderLog,
		registryFn: buildStrategyRegistry,
		brokersFn:  buildBrokerRegistry,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build() (*App, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	store, err := b.storeFn(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store failed: %w", err)
	}
	orders, err := b.orderLogFn(cfg.Store)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open order log failed: %w", err)
	}
	strategies, err := b.registryFn(cfg.Strategies)
	if err != nil {
		store.Close()
		orders.Close()
		return nil, fmt.Errorf("load strategy registry failed: %w", err)
	}
	brokers := b.brokersFn(cfg.Brokers)
	logger.Infof("broker venues registered: %v", brokers.Venues())

	positions := position.NewService(store)
	locks := keylock.New()
	coordinator := executor.NewCoordinator(store, positions, brokers, orders, locks, cfg.Execution.MaxConcurrent)
	signalIntake := intake.New(store, strategies)

	var mon *monitor.Monitor
	if cfg.Monitor.Enabled {
		opts := monitor.Options{
			Interval: time.Duration(cfg.Monitor.IntervalSeconds) * time.Second,
		}
		if cfg.Monitor.SharedLock {
			opts.Locks = coordinator.Locks()
		}
		mon = monitor.New(positions, store, brokers, orders, opts)
	}

	server, err := tradehttp.NewServer(tradehttp.ServerConfig{
		Addr:          cfg.App.HTTPAddr,
		WebhookSecret: cfg.Webhook.Secret,
		Signals:       &signalFlow{intake: signalIntake, coordinator: coordinator},
		Queries:       store,
		Orders:        orders,
	})
	if err != nil {
		store.Close()
		orders.Close()
		return nil, fmt.Errorf("build http server failed: %w", err)
	}

	return &App{
		cfg:     cfg,
		store:   store,
		orders:  orders,
		server:  server,
		monitor: mon,
	}, nil
}

func buildStore(cfg config.StoreConfig) (*gormstore.GormStore, error) {
	return gormstore.NewGormStore(cfg.DBPath)
}

func buildOrderLog(cfg config.StoreConfig) (*orderlog.Store, error) {
	return orderlog.New(cfg.OrderLogPath)
}

func buildStrategyRegistry(cfg config.StrategiesConfig) (*strategy.Registry, error) {
	return strategy.NewRegistry(cfg.RegistryPath)
}

// buildBrokerRegistry wires the venue adapters. The paper venue doubles
// as the fallback for unknown brokers and credential-less subscribers.
func buildBrokerRegistry(cfg config.BrokersConfig) *broker.Registry {
	paperFactory := broker.PaperFactory(cfg.Paper.FillPrice)
	registry := broker.NewRegistry(paperFactory)
	registry.Register("paper", paperFactory)
	registry.Register("binance", broker.BinanceFactory(broker.BinanceConfig{
		RESTBaseURL:  cfg.Binance.RESTBaseURL,
		HTTPTimeout:  time.Duration(cfg.Binance.TimeoutSeconds) * time.Second,
		ProxyEnabled: cfg.Binance.Proxy.Enabled,
		RESTProxyURL: cfg.Binance.Proxy.RESTURL,
	}))
	return registry
}
