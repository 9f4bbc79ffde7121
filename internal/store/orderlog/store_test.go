package orderlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "orderlog.db"))
	assert.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppendAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	recs := []Record{
		{UserID: 1, StrategyID: "s1", Broker: "paper", Symbol: "BTC/USDT", Side: "BUY", Qty: 2, OrderType: "MARKET", Status: StatusFilled, OrderID: "ORD-1", FillPrice: 100},
		{UserID: 1, StrategyID: "s1", Broker: "paper", Symbol: "BTC/USDT", Side: "SELL", Qty: 2, OrderType: "MARKET", Status: StatusFailed, Error: "venue rejected order"},
		{UserID: 2, StrategyID: "s1", Broker: "binance", Symbol: "ETHUSDT", Side: "BUY", Qty: 1, OrderType: "MARKET", Status: StatusFilled, OrderID: "ORD-2", FillPrice: 2000,
			Details: map[string]any{"trigger": "SL", "ltp": 1999.5}},
	}
	for _, rec := range recs {
		rec.CreatedAt = time.Now()
		assert.NoError(t, store.Append(ctx, rec))
	}

	t.Run("all users", func(t *testing.T) {
		out, err := store.List(ctx, 0, 10)
		assert.NoError(t, err)
		assert.Len(t, out, 3)
	})

	t.Run("filtered by user", func(t *testing.T) {
		out, err := store.List(ctx, 1, 10)
		assert.NoError(t, err)
		assert.Len(t, out, 2)
		for _, rec := range out {
			assert.Equal(t, int64(1), rec.UserID)
		}
	})

	t.Run("failure keeps error text", func(t *testing.T) {
		out, err := store.List(ctx, 1, 10)
		assert.NoError(t, err)
		var failed *Record
		for i := range out {
			if out[i].Status == StatusFailed {
				failed = &out[i]
			}
		}
		assert.NotNil(t, failed)
		assert.Equal(t, "venue rejected order", failed.Error)
	})

	t.Run("details survive the round trip", func(t *testing.T) {
		out, err := store.List(ctx, 2, 10)
		assert.NoError(t, err)
		assert.Len(t, out, 1)
		assert.Equal(t, "SL", out[0].Details["trigger"])
	})
}

func TestNewValidation(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}
