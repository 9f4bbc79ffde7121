// Package monitor runs the stop-loss/take-profit price loop. Every tick
// it polls the venue price for each eligible OPEN position and force-
// closes the ones whose trigger level has been crossed.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradefan/internal/broker"
	"tradefan/internal/logger"
	"tradefan/internal/pkg/keylock"
	"tradefan/internal/store/orderlog"
	"tradefan/internal/types"
)

// Positions is the position surface the monitor drives.
type Positions interface {
	ListMonitorEligible(ctx context.Context) ([]types.Position, error)
	Get(ctx context.Context, id int64) (*types.Position, error)
	Close(ctx context.Context, id int64, exitOrderID string, exitPrice float64, reason types.ExitReason) error
}

// CredentialStore resolves a user's venue credential for monitor exits.
type CredentialStore interface {
	ActiveCredential(ctx context.Context, userID int64) (types.Credential, bool, error)
}

// Brokers resolves credentials to gateways.
type Brokers interface {
	Resolve(cred types.Credential) (broker.Gateway, error)
}

// OrderAudit records monitor-placed exit orders.
type OrderAudit interface {
	Append(ctx context.Context, rec orderlog.Record) error
}

// Options configures the monitor loop.
type Options struct {
	Interval time.Duration
	// Locks, when set, serializes monitor exits against signal-driven
	// execution on the same (user, strategy) keys. Without it the
	// guarded close is the only defence against the cross-path race.
	Locks *keylock.KeyLock
}

// Monitor owns the SL/TP polling loop.
type Monitor struct {
	positions   Positions
	credentials CredentialStore
	brokers     Brokers
	orders      OrderAudit
	interval    time.Duration
	locks       *keylock.KeyLock

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func New(positions Positions, credentials CredentialStore, brokers Brokers, orders OrderAudit, opts Options) *Monitor {
	interval := opts.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{
		positions:   positions,
		credentials: credentials,
		brokers:     brokers,
		orders:      orders,
		interval:    interval,
		locks:       opts.Locks,
	}
}

// Start launches the polling loop. A second Start while running is a
// logged no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		logger.Warnf("sltp monitor already running, ignoring start")
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true
	go m.loop(runCtx, m.done)
	logger.Infof("sltp monitor started interval=%s", m.interval)
}

// Stop halts the loop and waits for the in-flight tick to finish.
// Stopping a stopped monitor is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel, done := m.cancel, m.done
	m.running = false
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	cancel()
	<-done
	logger.Infof("sltp monitor stopped")
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick runs one monitoring pass. One position's failure never stops the
// pass; it is logged and the pass moves on.
func (m *Monitor) Tick(ctx context.Context) {
	positions, err := m.positions.ListMonitorEligible(ctx)
	if err != nil {
		logger.Errorf("sltp monitor: list positions failed: %v", err)
		return
	}
	for _, pos := range positions {
		if ctx.Err() != nil {
			return
		}
		if err := m.checkPosition(ctx, pos); err != nil {
			logger.Errorf("sltp monitor: position %d: %v", pos.ID, err)
		}
	}
}

func (m *Monitor) checkPosition(ctx context.Context, pos types.Position) error {
	cred, found, err := m.credentials.ActiveCredential(ctx, pos.UserID)
	if err != nil {
		return err
	}
	if !found {
		// A paper fill here would mark a live position CLOSED while the
		// venue still holds it. Leave the position alone until the user
		// has a working credential again.
		logger.Warnf("sltp monitor: user %d has no active credential, skipping position %d", pos.UserID, pos.ID)
		return nil
	}
	gw, err := m.brokers.Resolve(cred)
	if err != nil {
		return err
	}
	brokerSym := pos.BrokerSymbol
	if brokerSym == "" {
		brokerSym = gw.NormalizeSymbol(pos.CanonicalSymbol)
	}
	ltp, err := gw.GetLTP(ctx, brokerSym)
	if err != nil {
		return fmt.Errorf("ltp for %s failed: %w", brokerSym, err)
	}
	reason, triggered := breach(pos, ltp)
	if !triggered {
		return nil
	}
	logger.Infof("sltp trigger position=%d user=%d %s %s ltp=%v reason=%s",
		pos.ID, pos.UserID, pos.Side, pos.CanonicalSymbol, ltp, reason)

	if m.locks != nil {
		release := m.locks.Acquire(keylock.UserStrategyKey(pos.UserID, pos.StrategyID))
		defer release()
	}
	// The breach was judged on a snapshot taken before the lock. A
	// signal-driven exit may have settled the position while we waited,
	// so confirm it is still OPEN before placing a real order.
	current, err := m.positions.Get(ctx, pos.ID)
	if err != nil {
		return fmt.Errorf("re-check position failed: %w", err)
	}
	if current == nil || current.Status != types.PositionOpen {
		logger.Infof("sltp monitor: position %d settled while waiting for lock, skipping exit", pos.ID)
		return nil
	}
	return m.forceExit(ctx, gw, cred, *current, brokerSym, ltp, reason)
}

func (m *Monitor) forceExit(ctx context.Context, gw broker.Gateway, cred types.Credential, pos types.Position, brokerSym string, ltp float64, reason types.ExitReason) error {
	req := broker.OrderRequest{
		Side:      broker.ExitOrderSide(pos.Side),
		Symbol:    brokerSym,
		Qty:       pos.Qty,
		OrderType: broker.Market,
	}
	res, orderErr := gw.PlaceOrder(ctx, req)
	rec := orderlog.Record{
		UserID:     pos.UserID,
		StrategyID: pos.StrategyID,
		Broker:     gw.Name(),
		Symbol:     brokerSym,
		Side:       string(req.Side),
		Qty:        req.Qty,
		OrderType:  string(req.OrderType),
		Details:    map[string]any{"trigger": string(reason), "ltp": ltp},
		CreatedAt:  time.Now(),
	}
	if orderErr != nil {
		rec.Status = orderlog.StatusFailed
		rec.Error = orderErr.Error()
	} else {
		rec.Status = orderlog.StatusFilled
		rec.OrderID = res.OrderID
		rec.FillPrice = res.FillPrice
	}
	if err := m.orders.Append(ctx, rec); err != nil {
		logger.Errorf("sltp monitor: append order log failed user=%d: %v", pos.UserID, err)
	}
	if orderErr != nil {
		return fmt.Errorf("exit order failed: %w", orderErr)
	}
	exitPrice := res.FillPrice
	if exitPrice <= 0 {
		exitPrice = ltp
	}
	if err := m.positions.Close(ctx, pos.ID, res.OrderID, exitPrice, reason); err != nil {
		return fmt.Errorf("exit order %s filled but close not recorded: %w", res.OrderID, err)
	}
	return nil
}

// breach checks the trigger levels against the last traded price.
// Stop-loss is evaluated before take-profit so a tick crossing both
// levels settles as a stop.
func breach(pos types.Position, ltp float64) (types.ExitReason, bool) {
	price := decimal.NewFromFloat(ltp)
	if pos.SLPrice != nil {
		sl := decimal.NewFromFloat(*pos.SLPrice)
		if pos.Side == types.SideLong && price.LessThanOrEqual(sl) {
			return types.ExitReasonStopLoss, true
		}
		if pos.Side == types.SideShort && price.GreaterThanOrEqual(sl) {
			return types.ExitReasonStopLoss, true
		}
	}
	if pos.TPPrice != nil {
		tp := decimal.NewFromFloat(*pos.TPPrice)
		if pos.Side == types.SideLong && price.GreaterThanOrEqual(tp) {
			return types.ExitReasonTakeProfit, true
		}
		if pos.Side == types.SideShort && price.LessThanOrEqual(tp) {
			return types.ExitReasonTakeProfit, true
		}
	}
	return "", false
}
