package gormstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tradefan/internal/store/model"
	"tradefan/internal/types"

	"github.com/stretchr/testify/assert"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	store, err := NewGormStore(filepath.Join(t.TempDir(), "test.db"))
	assert.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func fptr(v float64) *float64 { return &v }

func TestSignalDedupe(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sig := types.Signal{
		StrategyID:      "btc-momentum",
		Segment:         "CRYPTO",
		CanonicalSymbol: "BTC/USDT",
		Value:           1,
		SignalID:        "alert-1",
		PayloadHash:     "hash-1",
		ReceivedAt:      time.Now(),
	}

	dup, err := store.HasSignal(ctx, "alert-1", "hash-1")
	assert.NoError(t, err)
	assert.False(t, dup)

	id, err := store.InsertSignal(ctx, sig, []byte(`{"signal":1}`))
	assert.NoError(t, err)
	assert.NotZero(t, id)

	t.Run("matches by signal id", func(t *testing.T) {
		dup, err := store.HasSignal(ctx, "alert-1", "other-hash")
		assert.NoError(t, err)
		assert.True(t, dup)
	})

	t.Run("matches by fingerprint", func(t *testing.T) {
		dup, err := store.HasSignal(ctx, "other-id", "hash-1")
		assert.NoError(t, err)
		assert.True(t, dup)
	})

	t.Run("same fingerprint under a new signal id is rejected", func(t *testing.T) {
		racer := sig
		racer.SignalID = "alert-2"
		_, err := store.InsertSignal(ctx, racer, []byte(`{"signal":1}`))
		assert.ErrorIs(t, err, ErrSignalExists)
	})

	t.Run("same signal id is rejected", func(t *testing.T) {
		racer := sig
		racer.PayloadHash = "hash-2"
		_, err := store.InsertSignal(ctx, racer, []byte(`{"signal":1}`))
		assert.ErrorIs(t, err, ErrSignalExists)
	})

	t.Run("listed newest first", func(t *testing.T) {
		signals, err := store.ListRecentSignals(ctx, 10)
		assert.NoError(t, err)
		assert.Len(t, signals, 1)
		assert.Equal(t, "alert-1", signals[0].SignalID)
		assert.Equal(t, 1, signals[0].Value)
	})
}

func TestGuardedClose(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.InsertPosition(ctx, types.Position{
		UserID:          7,
		StrategyID:      "btc-momentum",
		CanonicalSymbol: "BTC/USDT",
		Side:            types.SideLong,
		Qty:             2,
		EntryPrice:      100,
		Status:          types.PositionOpen,
	})
	assert.NoError(t, err)

	upd := PositionCloseUpdate{
		ExitOrderID:   "ORD-1",
		ExitPrice:     110,
		ExitReason:    types.ExitReasonTakeProfit,
		PnL:           20,
		PnLPercentage: 10,
		ExitAt:        time.Now(),
	}

	rows, err := store.ClosePositionRow(ctx, id, upd)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	t.Run("second close touches no rows", func(t *testing.T) {
		rows, err := store.ClosePositionRow(ctx, id, upd)
		assert.NoError(t, err)
		assert.Zero(t, rows)
	})

	t.Run("closed position leaves the open lookup", func(t *testing.T) {
		_, found, err := store.GetOpenPosition(ctx, 7, "btc-momentum", "BTC/USDT")
		assert.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("closed row keeps exit details", func(t *testing.T) {
		pos, found, err := store.GetPosition(ctx, id)
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, types.PositionClosed, pos.Status)
		assert.Equal(t, "ORD-1", pos.ExitOrderID)
		assert.NotNil(t, pos.PnL)
		assert.Equal(t, 20.0, *pos.PnL)
	})
}

func TestListActiveSubscribers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	subs := []model.SubscriptionModel{
		{UserID: 1, StrategyID: "btc-momentum", Qty: 2, IsActive: true, ExitMode: "SLTP"},
		{UserID: 2, StrategyID: "btc-momentum", Qty: 1, IsActive: true, ExitMode: "SIGNAL_ONLY"},
		{UserID: 3, StrategyID: "btc-momentum", Qty: 1, IsActive: false},
		{UserID: 4, StrategyID: "other", Qty: 1, IsActive: true},
	}
	assert.NoError(t, store.db.Create(&subs).Error)
	keys := []model.APIKeyModel{
		{UserID: 1, Broker: "binance", Segment: "CRYPTO", Status: "Active"},
		{UserID: 2, Broker: "binance", Segment: "CRYPTO", Status: "Inactive"},
	}
	assert.NoError(t, store.db.Create(&keys).Error)

	out, err := store.ListActiveSubscribers(ctx, "btc-momentum", "CRYPTO")
	assert.NoError(t, err)
	assert.Len(t, out, 2)

	assert.Equal(t, int64(1), out[0].UserID)
	assert.NotNil(t, out[0].Credential)
	assert.Equal(t, "binance", out[0].Credential.Broker)

	// inactive credential must not be joined
	assert.Equal(t, int64(2), out[1].UserID)
	assert.Nil(t, out[1].Credential)
}

func TestListMonitorEligible(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	subs := []model.SubscriptionModel{
		{UserID: 1, StrategyID: "s1", IsActive: true, ExitMode: "SLTP"},
		{UserID: 2, StrategyID: "s1", IsActive: true, ExitMode: "SIGNAL_ONLY"},
		{UserID: 3, StrategyID: "s1", IsActive: true, ExitMode: "SLTP"},
	}
	assert.NoError(t, store.db.Create(&subs).Error)

	mkPos := func(userID int64, sl *float64, status types.PositionStatus) types.Position {
		return types.Position{
			UserID:          userID,
			StrategyID:      "s1",
			CanonicalSymbol: "BTC/USDT",
			Side:            types.SideLong,
			Qty:             1,
			EntryPrice:      100,
			SLPrice:         sl,
			Status:          status,
		}
	}

	// watched: open, SLTP mode, has a stop
	_, err := store.InsertPosition(ctx, mkPos(1, fptr(90), types.PositionOpen))
	assert.NoError(t, err)
	// signal-only subscriber is never watched
	_, err = store.InsertPosition(ctx, mkPos(2, fptr(90), types.PositionOpen))
	assert.NoError(t, err)
	// no trigger levels set
	_, err = store.InsertPosition(ctx, mkPos(3, nil, types.PositionOpen))
	assert.NoError(t, err)

	eligible, err := store.ListMonitorEligible(ctx)
	assert.NoError(t, err)
	assert.Len(t, eligible, 1)
	assert.Equal(t, int64(1), eligible[0].UserID)
}

func TestExecutionLogRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.AppendExecutionLog(ctx, types.ExecutionLogEntry{
		SignalLogID: 5,
		UserID:      7,
		StrategyID:  "s1",
		Decision:    types.DecisionEnter,
		Reason:      types.ReasonNewEntry,
		CurrentSide: types.SideFlat,
		TargetSide:  types.SideLong,
		CreatedAt:   time.Now(),
	})
	assert.NoError(t, err)

	entries, err := store.ListExecutionLogs(ctx, 5, 10)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, types.DecisionEnter, entries[0].Decision)
	assert.Equal(t, types.ReasonNewEntry, entries[0].Reason)
}
