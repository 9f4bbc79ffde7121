package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradefan/internal/store/model"
	"tradefan/internal/types"

	"gorm.io/gorm"
)

// GetPosition looks up a position by row id.
func (s *GormStore) GetPosition(ctx context.Context, id int64) (types.Position, bool, error) {
	if s == nil || s.db == nil {
		return types.Position{}, false, fmt.Errorf("gorm store not initialized")
	}
	var m model.PositionModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.Position{}, false, nil
		}
		return types.Position{}, false, err
	}
	return positionModelToRecord(m), true, nil
}

// GetOpenPosition returns the single OPEN position for a (user, strategy,
// symbol) key, if any.
func (s *GormStore) GetOpenPosition(ctx context.Context, userID int64, strategyID, symbol string) (types.Position, bool, error) {
	if s == nil || s.db == nil {
		return types.Position{}, false, fmt.Errorf("gorm store not initialized")
	}
	var m model.PositionModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND strategy_id = ? AND canonical_symbol = ? AND status = ?",
			userID, strings.TrimSpace(strategyID), strings.ToUpper(strings.TrimSpace(symbol)), string(types.PositionOpen)).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.Position{}, false, nil
		}
		return types.Position{}, false, err
	}
	return positionModelToRecord(m), true, nil
}

// InsertPosition creates a new OPEN position row and returns its id.
func (s *GormStore) InsertPosition(ctx context.Context, pos types.Position) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("gorm store not initialized")
	}
	now := time.Now()
	if pos.CreatedAt.IsZero() {
		pos.CreatedAt = now
	}
	m := model.PositionModel{
		UserID:          pos.UserID,
		StrategyID:      strings.TrimSpace(pos.StrategyID),
		Segment:         strings.TrimSpace(pos.Segment),
		CanonicalSymbol: strings.ToUpper(strings.TrimSpace(pos.CanonicalSymbol)),
		BrokerSymbol:    strings.TrimSpace(pos.BrokerSymbol),
		Side:            string(pos.Side),
		Qty:             pos.Qty,
		EntryPrice:      pos.EntryPrice,
		SLPrice:         pos.SLPrice,
		TPPrice:         pos.TPPrice,
		Status:          string(types.PositionOpen),
		EntryOrderID:    strings.TrimSpace(pos.EntryOrderID),
		CreatedAtUnix:   pos.CreatedAt.UnixMilli(),
		UpdatedAtUnix:   now.UnixMilli(),
	}
	if m.BrokerSymbol == "" {
		m.BrokerSymbol = m.CanonicalSymbol
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return 0, err
	}
	return m.ID, nil
}

// PositionCloseUpdate carries the exit fields written by a guarded close.
type PositionCloseUpdate struct {
	ExitOrderID   string
	ExitPrice     float64
	ExitReason    types.ExitReason
	PnL           float64
	PnLPercentage float64
	ExitAt        time.Time
}

// ClosePositionRow marks an OPEN position CLOSED with the given exit
// fields. The status guard in the WHERE clause makes the close race-safe:
// the number of affected rows is returned, and 0 means the row was missing
// or already CLOSED.
func (s *GormStore) ClosePositionRow(ctx context.Context, id int64, upd PositionCloseUpdate) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("gorm store not initialized")
	}
	if upd.ExitAt.IsZero() {
		upd.ExitAt = time.Now()
	}
	exitAt := upd.ExitAt.UnixMilli()
	res := s.db.WithContext(ctx).Model(&model.PositionModel{}).
		Where("id = ? AND status = ?", id, string(types.PositionOpen)).
		Updates(map[string]interface{}{
			"status":         string(types.PositionClosed),
			"exit_order_id":  strings.TrimSpace(upd.ExitOrderID),
			"exit_price":     upd.ExitPrice,
			"exit_reason":    string(upd.ExitReason),
			"pnl":            upd.PnL,
			"pnl_percentage": upd.PnLPercentage,
			"exit_at":        exitAt,
			"updated_at":     time.Now().UnixMilli(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// ListMonitorEligible returns every OPEN position whose subscription uses
// SLTP exit mode and that carries at least one of sl_price/tp_price.
func (s *GormStore) ListMonitorEligible(ctx context.Context) ([]types.Position, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	var models []model.PositionModel
	err := s.db.WithContext(ctx).
		Table("positions").
		Joins("JOIN strategy_subscriptions ss ON ss.user_id = positions.user_id AND ss.strategy_id = positions.strategy_id").
		Where("positions.status = ?", string(types.PositionOpen)).
		Where("ss.exit_mode = ?", string(types.ExitModeSLTP)).
		Where("positions.sl_price IS NOT NULL OR positions.tp_price IS NOT NULL").
		Select("positions.*").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.Position, 0, len(models))
	for _, m := range models {
		out = append(out, positionModelToRecord(m))
	}
	return out, nil
}

// ListPositions returns recent positions, optionally filtered by symbol
// and status, newest first.
func (s *GormStore) ListPositions(ctx context.Context, symbol, status string, limit, offset int) ([]types.Position, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	query := s.db.WithContext(ctx).Model(&model.PositionModel{})
	if sym := strings.ToUpper(strings.TrimSpace(symbol)); sym != "" {
		query = query.Where("canonical_symbol = ?", sym)
	}
	if st := strings.ToUpper(strings.TrimSpace(status)); st != "" {
		query = query.Where("status = ?", st)
	}
	var models []model.PositionModel
	if err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]types.Position, 0, len(models))
	for _, m := range models {
		out = append(out, positionModelToRecord(m))
	}
	return out, nil
}

func positionModelToRecord(m model.PositionModel) types.Position {
	rec := types.Position{
		ID:              m.ID,
		UserID:          m.UserID,
		StrategyID:      m.StrategyID,
		Segment:         m.Segment,
		CanonicalSymbol: m.CanonicalSymbol,
		BrokerSymbol:    m.BrokerSymbol,
		Side:            types.Side(m.Side),
		Qty:             m.Qty,
		EntryPrice:      m.EntryPrice,
		SLPrice:         m.SLPrice,
		TPPrice:         m.TPPrice,
		Status:          types.PositionStatus(m.Status),
		EntryOrderID:    m.EntryOrderID,
		ExitOrderID:     m.ExitOrderID,
		ExitPrice:       m.ExitPrice,
		ExitReason:      types.ExitReason(m.ExitReason),
		PnL:             m.PnL,
		PnLPercentage:   m.PnLPercentage,
		CreatedAt:       millisToTime(m.CreatedAtUnix),
	}
	if m.ExitAtUnix != nil && *m.ExitAtUnix > 0 {
		ts := millisToTime(*m.ExitAtUnix)
		rec.ExitAt = &ts
	}
	return rec
}
