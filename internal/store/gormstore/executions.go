package gormstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tradefan/internal/store/model"
	"tradefan/internal/types"
)

// AppendExecutionLog records one reconciliation evaluation. Appended for
// every decision, including SKIPs, so the audit trail stays complete.
func (s *GormStore) AppendExecutionLog(ctx context.Context, entry types.ExecutionLogEntry) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	m := model.ExecutionLogModel{
		SignalLogID:   entry.SignalLogID,
		UserID:        entry.UserID,
		StrategyID:    strings.TrimSpace(entry.StrategyID),
		Decision:      string(entry.Decision),
		Reason:        strings.TrimSpace(entry.Reason),
		CurrentSide:   string(entry.CurrentSide),
		TargetSide:    string(entry.TargetSide),
		Error:         strings.TrimSpace(entry.Error),
		CreatedAtUnix: entry.CreatedAt.UnixMilli(),
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

// ListExecutionLogs returns recent evaluations, newest first, optionally
// filtered by signal log id.
func (s *GormStore) ListExecutionLogs(ctx context.Context, signalLogID int64, limit int) ([]types.ExecutionLogEntry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := s.db.WithContext(ctx).Model(&model.ExecutionLogModel{})
	if signalLogID > 0 {
		query = query.Where("signal_log_id = ?", signalLogID)
	}
	var models []model.ExecutionLogModel
	if err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]types.ExecutionLogEntry, 0, len(models))
	for _, m := range models {
		out = append(out, types.ExecutionLogEntry{
			ID:          m.ID,
			SignalLogID: m.SignalLogID,
			UserID:      m.UserID,
			StrategyID:  m.StrategyID,
			Decision:    types.Decision(m.Decision),
			Reason:      m.Reason,
			CurrentSide: types.Side(m.CurrentSide),
			TargetSide:  types.Side(m.TargetSide),
			Error:       m.Error,
			CreatedAt:   millisToTime(m.CreatedAtUnix),
		})
	}
	return out, nil
}
