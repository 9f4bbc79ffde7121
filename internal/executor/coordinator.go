// Package executor fans an admitted signal out to every active subscriber
// and reconciles each subscriber's position against the signal's target
// side. Subscribers are processed under a per-(user, strategy) lock with
// bounded concurrency, and every evaluation is recorded whether or not an
// order was placed.
package executor

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"tradefan/internal/broker"
	"tradefan/internal/logger"
	"tradefan/internal/pkg/keylock"
	"tradefan/internal/position"
	"tradefan/internal/store/orderlog"
	"tradefan/internal/types"
)

const defaultMaxConcurrent = 10

// SubscriberStore lists fan-out targets and records evaluations.
type SubscriberStore interface {
	ListActiveSubscribers(ctx context.Context, strategyID, segment string) ([]types.Subscription, error)
	AppendExecutionLog(ctx context.Context, entry types.ExecutionLogEntry) error
}

// Positions is the position lifecycle surface the coordinator drives.
type Positions interface {
	GetOpen(ctx context.Context, userID int64, strategyID, symbol string) (*types.Position, error)
	Create(ctx context.Context, params position.CreateParams) (int64, error)
	Close(ctx context.Context, id int64, exitOrderID string, exitPrice float64, reason types.ExitReason) error
}

// Brokers resolves a subscriber's credential to a venue gateway.
type Brokers interface {
	Resolve(cred types.Credential) (broker.Gateway, error)
}

// OrderAudit records every broker call attempt.
type OrderAudit interface {
	Append(ctx context.Context, rec orderlog.Record) error
}

// Coordinator runs the fan-out for admitted signals.
type Coordinator struct {
	store         SubscriberStore
	positions     Positions
	brokers       Brokers
	orders        OrderAudit
	locks         *keylock.KeyLock
	maxConcurrent int
}

func NewCoordinator(store SubscriberStore, positions Positions, brokers Brokers, orders OrderAudit, locks *keylock.KeyLock, maxConcurrent int) *Coordinator {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	if locks == nil {
		locks = keylock.New()
	}
	return &Coordinator{
		store:         store,
		positions:     positions,
		brokers:       brokers,
		orders:        orders,
		locks:         locks,
		maxConcurrent: maxConcurrent,
	}
}

// Locks exposes the coordinator's lock table so the price monitor can
// serialize against signal-driven execution on the same keys.
func (c *Coordinator) Locks() *keylock.KeyLock {
	return c.locks
}

// ExecuteForSignal reconciles every active subscriber of the signal's
// strategy. One subscriber's failure never aborts the rest; each outcome
// lands in the execution log.
func (c *Coordinator) ExecuteForSignal(ctx context.Context, sig types.Signal) error {
	target, err := sig.TargetSide()
	if err != nil {
		return err
	}
	subs, err := c.store.ListActiveSubscribers(ctx, sig.StrategyID, sig.Segment)
	if err != nil {
		return fmt.Errorf("list subscribers for %s failed: %w", sig.StrategyID, err)
	}
	if len(subs) == 0 {
		logger.Infof("signal %d has no active subscribers strategy=%s", sig.ID, sig.StrategyID)
		return nil
	}
	logger.Infof("fan-out start signal=%d strategy=%s target=%s subscribers=%d", sig.ID, sig.StrategyID, target, len(subs))

	// Subscribers run in sequential batches of maxConcurrent: a batch
	// drains completely before the next one starts.
	for start := 0; start < len(subs); start += c.maxConcurrent {
		end := start + c.maxConcurrent
		if end > len(subs) {
			end = len(subs)
		}
		g := errgroup.Group{}
		for _, sub := range subs[start:end] {
			sub := sub
			g.Go(func() error {
				c.executeForSubscriber(ctx, sig, target, sub)
				return nil
			})
		}
		_ = g.Wait()
	}
	logger.Infof("fan-out done signal=%d strategy=%s", sig.ID, sig.StrategyID)
	return nil
}

// executeForSubscriber holds the subscriber's lock across the read,
// decide and act steps so no other execution can interleave on the key.
func (c *Coordinator) executeForSubscriber(ctx context.Context, sig types.Signal, target types.Side, sub types.Subscription) {
	release := c.locks.Acquire(keylock.UserStrategyKey(sub.UserID, sig.StrategyID))
	defer release()

	entry := types.ExecutionLogEntry{
		SignalLogID: sig.ID,
		UserID:      sub.UserID,
		StrategyID:  sig.StrategyID,
		TargetSide:  target,
		CurrentSide: types.SideFlat,
		CreatedAt:   time.Now(),
	}
	defer func() {
		if err := c.store.AppendExecutionLog(ctx, entry); err != nil {
			logger.Errorf("append execution log failed user=%d signal=%d: %v", sub.UserID, sig.ID, err)
		}
	}()

	pos, err := c.positions.GetOpen(ctx, sub.UserID, sig.StrategyID, sig.CanonicalSymbol)
	if err != nil {
		entry.Decision = types.DecisionSkip
		entry.Error = err.Error()
		logger.Errorf("load position failed user=%d strategy=%s: %v", sub.UserID, sig.StrategyID, err)
		return
	}
	if pos != nil {
		entry.CurrentSide = pos.Side
	}

	decision, reason := decide(pos, target)
	entry.Decision = decision
	entry.Reason = reason

	switch decision {
	case types.DecisionSkip:
		logger.Debugf("skip user=%d strategy=%s reason=%s", sub.UserID, sig.StrategyID, reason)
	case types.DecisionEnter:
		if err := c.enter(ctx, sig, target, sub); err != nil {
			entry.Error = err.Error()
			logger.Errorf("entry failed user=%d strategy=%s: %v", sub.UserID, sig.StrategyID, err)
		}
	case types.DecisionExit:
		if err := c.exit(ctx, sig, sub, pos, types.ExitReasonSignalZero); err != nil {
			entry.Error = err.Error()
			logger.Errorf("exit failed user=%d strategy=%s: %v", sub.UserID, sig.StrategyID, err)
		}
	case types.DecisionReverse:
		if err := c.reverse(ctx, sig, target, sub, pos); err != nil {
			entry.Error = err.Error()
			logger.Errorf("reversal failed user=%d strategy=%s: %v", sub.UserID, sig.StrategyID, err)
		}
	}
}

// decide maps (current position, target side) to an action per the
// reconciliation table. Flat target with no position is a no-op; flat
// target with a position force-exits; matching sides skip; opposing
// sides reverse.
func decide(pos *types.Position, target types.Side) (types.Decision, string) {
	if target == types.SideFlat {
		if pos == nil {
			return types.DecisionSkip, types.ReasonNoPosition
		}
		return types.DecisionExit, types.ReasonForceExitSignal0
	}
	if pos == nil {
		return types.DecisionEnter, types.ReasonNewEntry
	}
	if pos.Side == target {
		return types.DecisionSkip, types.ReasonAlreadyInTarget
	}
	return types.DecisionReverse, types.ReasonSignalReversal
}

// gatewayFor resolves the subscriber's venue. Subscribers without an
// active credential trade on the paper venue rather than being dropped.
func (c *Coordinator) gatewayFor(sub types.Subscription) (broker.Gateway, types.Credential, error) {
	cred := types.Credential{UserID: sub.UserID}
	if sub.Credential != nil {
		cred = *sub.Credential
	} else {
		logger.Warnf("user %d has no active credential, using paper venue", sub.UserID)
	}
	gw, err := c.brokers.Resolve(cred)
	if err != nil {
		return nil, cred, err
	}
	return gw, cred, nil
}

func (c *Coordinator) enter(ctx context.Context, sig types.Signal, target types.Side, sub types.Subscription) error {
	gw, cred, err := c.gatewayFor(sub)
	if err != nil {
		return err
	}
	qty := sub.OrderQty()
	brokerSym := gw.NormalizeSymbol(sig.CanonicalSymbol)
	req := broker.OrderRequest{
		Side:      broker.SideToOrder(target),
		Symbol:    brokerSym,
		Qty:       qty,
		OrderType: broker.Market,
	}
	res, err := c.placeOrder(ctx, gw, cred, sig, req)
	if err != nil {
		return fmt.Errorf("entry order failed: %w", err)
	}
	price, err := c.effectivePrice(ctx, gw, brokerSym, res)
	if err != nil {
		return fmt.Errorf("entry fill price unavailable: %w", err)
	}
	_, err = c.positions.Create(ctx, position.CreateParams{
		UserID:          sub.UserID,
		StrategyID:      sig.StrategyID,
		Segment:         sig.Segment,
		CanonicalSymbol: sig.CanonicalSymbol,
		BrokerSymbol:    brokerSym,
		Side:            target,
		Qty:             qty,
		EntryOrderID:    res.OrderID,
		EntryPrice:      price,
		Subscription:    sub,
	})
	if err != nil {
		return fmt.Errorf("order %s filled but position not recorded: %w", res.OrderID, err)
	}
	return nil
}

func (c *Coordinator) exit(ctx context.Context, sig types.Signal, sub types.Subscription, pos *types.Position, reason types.ExitReason) error {
	gw, cred, err := c.gatewayFor(sub)
	if err != nil {
		return err
	}
	brokerSym := pos.BrokerSymbol
	if brokerSym == "" {
		brokerSym = gw.NormalizeSymbol(pos.CanonicalSymbol)
	}
	req := broker.OrderRequest{
		Side:      broker.ExitOrderSide(pos.Side),
		Symbol:    brokerSym,
		Qty:       pos.Qty,
		OrderType: broker.Market,
	}
	res, err := c.placeOrder(ctx, gw, cred, sig, req)
	if err != nil {
		return fmt.Errorf("exit order failed: %w", err)
	}
	price, err := c.effectivePrice(ctx, gw, brokerSym, res)
	if err != nil {
		return fmt.Errorf("exit fill price unavailable: %w", err)
	}
	if err := c.positions.Close(ctx, pos.ID, res.OrderID, price, reason); err != nil {
		return fmt.Errorf("exit order %s filled but close not recorded: %w", res.OrderID, err)
	}
	return nil
}

// reverse closes the held position, then opens one on the target side.
// If the entry leg fails the subscriber is left flat and the error says
// so; the closed leg is never rolled back.
func (c *Coordinator) reverse(ctx context.Context, sig types.Signal, target types.Side, sub types.Subscription, pos *types.Position) error {
	if err := c.exit(ctx, sig, sub, pos, types.ExitReasonReversal); err != nil {
		return err
	}
	if err := c.enter(ctx, sig, target, sub); err != nil {
		return fmt.Errorf("reversal closed %s position but re-entry failed, user left flat: %w", pos.Side, err)
	}
	return nil
}

// placeOrder calls the venue and records the attempt in the order log
// regardless of outcome.
func (c *Coordinator) placeOrder(ctx context.Context, gw broker.Gateway, cred types.Credential, sig types.Signal, req broker.OrderRequest) (broker.OrderResult, error) {
	res, err := gw.PlaceOrder(ctx, req)
	rec := orderlog.Record{
		UserID:     cred.UserID,
		StrategyID: sig.StrategyID,
		Broker:     gw.Name(),
		Symbol:     req.Symbol,
		Side:       string(req.Side),
		Qty:        req.Qty,
		OrderType:  string(req.OrderType),
		CreatedAt:  time.Now(),
	}
	if err != nil {
		rec.Status = orderlog.StatusFailed
		rec.Error = err.Error()
	} else {
		rec.Status = orderlog.StatusFilled
		rec.OrderID = res.OrderID
		rec.FillPrice = res.FillPrice
	}
	if logErr := c.orders.Append(ctx, rec); logErr != nil {
		logger.Errorf("append order log failed user=%d: %v", cred.UserID, logErr)
	}
	return res, err
}

// effectivePrice prefers the fill price and falls back to the venue's
// last traded price when the fill report omits it.
func (c *Coordinator) effectivePrice(ctx context.Context, gw broker.Gateway, brokerSym string, res broker.OrderResult) (float64, error) {
	if res.FillPrice > 0 {
		return res.FillPrice, nil
	}
	return gw.GetLTP(ctx, brokerSym)
}
