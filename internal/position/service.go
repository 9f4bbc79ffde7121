// Package position owns the position lifecycle: creation with derived
// stop-loss/take-profit prices, the single guarded close, and the monitor
// eligibility query.
package position

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradefan/internal/logger"
	"tradefan/internal/store/gormstore"
	"tradefan/internal/types"
)

var (
	// ErrNotFound is returned when the referenced position row is missing.
	ErrNotFound = errors.New("position not found")
	// ErrAlreadyClosed is returned when a close races a prior close. The
	// losing path must treat the position as settled, never re-close it.
	ErrAlreadyClosed = errors.New("position already closed")
)

// Store is the persistence surface the service needs.
type Store interface {
	GetPosition(ctx context.Context, id int64) (types.Position, bool, error)
	GetOpenPosition(ctx context.Context, userID int64, strategyID, symbol string) (types.Position, bool, error)
	InsertPosition(ctx context.Context, pos types.Position) (int64, error)
	ClosePositionRow(ctx context.Context, id int64, upd gormstore.PositionCloseUpdate) (int64, error)
	ListMonitorEligible(ctx context.Context) ([]types.Position, error)
}

// Service implements the position lifecycle over a Store.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Get returns the position by row id, or nil when no such row exists.
func (s *Service) Get(ctx context.Context, id int64) (*types.Position, error) {
	pos, found, err := s.store.GetPosition(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &pos, nil
}

// GetOpen returns the subscriber's OPEN position for the symbol, or nil.
func (s *Service) GetOpen(ctx context.Context, userID int64, strategyID, symbol string) (*types.Position, error) {
	pos, found, err := s.store.GetOpenPosition(ctx, userID, strategyID, symbol)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &pos, nil
}

// CreateParams describes a new position entry.
type CreateParams struct {
	UserID          int64
	StrategyID      string
	Segment         string
	CanonicalSymbol string
	BrokerSymbol    string
	Side            types.Side
	Qty             float64
	EntryOrderID    string
	EntryPrice      float64
	Subscription    types.Subscription
}

// Create inserts a new OPEN position, deriving SL/TP prices from the
// subscription's exit settings.
func (s *Service) Create(ctx context.Context, params CreateParams) (int64, error) {
	if params.Side != types.SideLong && params.Side != types.SideShort {
		return 0, fmt.Errorf("position side must be LONG or SHORT, got %q", params.Side)
	}
	if params.Qty <= 0 {
		return 0, fmt.Errorf("position qty must be > 0")
	}
	if params.EntryPrice <= 0 {
		return 0, fmt.Errorf("position entry price must be > 0")
	}
	pos := types.Position{
		UserID:          params.UserID,
		StrategyID:      params.StrategyID,
		Segment:         params.Segment,
		CanonicalSymbol: params.CanonicalSymbol,
		BrokerSymbol:    params.BrokerSymbol,
		Side:            params.Side,
		Qty:             params.Qty,
		EntryPrice:      params.EntryPrice,
		EntryOrderID:    params.EntryOrderID,
		Status:          types.PositionOpen,
		CreatedAt:       time.Now(),
	}
	sub := params.Subscription
	if sub.SLEnabled && sub.SLValue > 0 {
		sl := DeriveSLTP(params.EntryPrice, params.Side, sub.SLType, sub.SLValue, TargetSL)
		pos.SLPrice = &sl
	}
	if sub.TPEnabled && sub.TPValue > 0 {
		tp := DeriveSLTP(params.EntryPrice, params.Side, sub.TPType, sub.TPValue, TargetTP)
		pos.TPPrice = &tp
	}
	id, err := s.store.InsertPosition(ctx, pos)
	if err != nil {
		return 0, err
	}
	logger.Infof("position created id=%d user=%d %s %s qty=%v entry=%v sl=%v tp=%v",
		id, params.UserID, params.Side, params.CanonicalSymbol, params.Qty,
		params.EntryPrice, floatOrNil(pos.SLPrice), floatOrNil(pos.TPPrice))
	return id, nil
}

// Close settles a position exactly once: it computes realized P&L and
// flips the status to CLOSED under a status guard. A concurrent or
// repeated close gets ErrAlreadyClosed instead of overwriting.
func (s *Service) Close(ctx context.Context, id int64, exitOrderID string, exitPrice float64, reason types.ExitReason) error {
	pos, found, err := s.store.GetPosition(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("close position %d: %w", id, ErrNotFound)
	}
	if pos.Status == types.PositionClosed {
		return fmt.Errorf("close position %d: %w", id, ErrAlreadyClosed)
	}
	pnl := ComputePnL(pos.Side, pos.Qty, pos.EntryPrice, exitPrice)
	pnlPct := ComputePnLPercentage(pnl, pos.EntryPrice, pos.Qty)
	rows, err := s.store.ClosePositionRow(ctx, id, gormstore.PositionCloseUpdate{
		ExitOrderID:   exitOrderID,
		ExitPrice:     exitPrice,
		ExitReason:    reason,
		PnL:           pnl,
		PnLPercentage: pnlPct,
		ExitAt:        time.Now(),
	})
	if err != nil {
		return err
	}
	if rows == 0 {
		// Lost the close race between the read above and the guarded write.
		return fmt.Errorf("close position %d: %w", id, ErrAlreadyClosed)
	}
	logger.Infof("position closed id=%d reason=%s exit=%v pnl=%v (%.2f%%)", id, reason, exitPrice, pnl, pnlPct)
	return nil
}

// ListMonitorEligible returns OPEN positions the SL/TP monitor must watch.
func (s *Service) ListMonitorEligible(ctx context.Context) ([]types.Position, error) {
	return s.store.ListMonitorEligible(ctx)
}

func floatOrNil(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
