package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradefan/internal/store/model"
	"tradefan/internal/types"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrSignalExists is returned when an insert hits the signal_id or
// payload_hash unique index. The pre-insert HasSignal check covers the
// common retry; this closes the window between the two statements.
var ErrSignalExists = errors.New("signal already recorded")

// HasSignal reports whether a stored signal already carries the given
// signal id or dedupe fingerprint.
func (s *GormStore) HasSignal(ctx context.Context, signalID, payloadHash string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("gorm store not initialized")
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&model.SignalModel{}).
		Where("signal_id = ? OR payload_hash = ?", signalID, payloadHash).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// InsertSignal persists one admitted signal with its raw payload and
// returns the row id.
func (s *GormStore) InsertSignal(ctx context.Context, sig types.Signal, rawPayload []byte) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("gorm store not initialized")
	}
	if sig.ReceivedAt.IsZero() {
		sig.ReceivedAt = time.Now()
	}
	if len(rawPayload) == 0 {
		rawPayload = []byte("{}")
	}
	m := model.SignalModel{
		StrategyID:      strings.TrimSpace(sig.StrategyID),
		Segment:         strings.TrimSpace(sig.Segment),
		CanonicalSymbol: strings.ToUpper(strings.TrimSpace(sig.CanonicalSymbol)),
		SignalValue:     sig.Value,
		SignalID:        strings.TrimSpace(sig.SignalID),
		PayloadHash:     strings.TrimSpace(sig.PayloadHash),
		Payload:         datatypes.JSON(rawPayload),
		ReceivedAtUnix:  sig.ReceivedAt.UnixMilli(),
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrSignalExists, m.SignalID)
		}
		return 0, err
	}
	return m.ID, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ListRecentSignals returns the newest signals, newest first.
func (s *GormStore) ListRecentSignals(ctx context.Context, limit int) ([]types.Signal, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var models []model.SignalModel
	if err := s.db.WithContext(ctx).
		Order("received_at DESC, id DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]types.Signal, 0, len(models))
	for _, m := range models {
		out = append(out, signalModelToRecord(m))
	}
	return out, nil
}

func signalModelToRecord(m model.SignalModel) types.Signal {
	return types.Signal{
		ID:              m.ID,
		StrategyID:      m.StrategyID,
		Segment:         m.Segment,
		CanonicalSymbol: m.CanonicalSymbol,
		Value:           m.SignalValue,
		SignalID:        m.SignalID,
		PayloadHash:     m.PayloadHash,
		ReceivedAt:      millisToTime(m.ReceivedAtUnix),
	}
}

func millisToTime(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(v)
}
