package intake

import (
	"context"
	"testing"
	"time"

	"tradefan/internal/store/gormstore"
	"tradefan/internal/strategy"
	"tradefan/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) HasSignal(ctx context.Context, signalID, payloadHash string) (bool, error) {
	args := m.Called(ctx, signalID, payloadHash)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) InsertSignal(ctx context.Context, sig types.Signal, rawPayload []byte) (int64, error) {
	args := m.Called(ctx, sig, rawPayload)
	return args.Get(0).(int64), args.Error(1)
}

type staticCatalog map[string]strategy.Strategy

func (c staticCatalog) Strategy(id string) (strategy.Strategy, bool) {
	s, ok := c[id]
	return s, ok
}

func testCatalog() staticCatalog {
	return staticCatalog{
		"btc-momentum": {ID: "btc-momentum", Segment: "CRYPTO", Symbol: "BTC/USDT", Enabled: true},
	}
}

func TestAdmit(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	t.Run("admits and persists", func(t *testing.T) {
		store := new(MockStore)
		store.On("HasSignal", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
		store.On("InsertSignal", mock.Anything, mock.MatchedBy(func(sig types.Signal) bool {
			return sig.StrategyID == "btc-momentum" &&
				sig.CanonicalSymbol == "BTC/USDT" &&
				sig.Segment == "CRYPTO" &&
				sig.Value == 1 &&
				sig.PayloadHash != ""
		}), mock.Anything).Return(int64(42), nil)

		sig, err := New(store, testCatalog()).Admit(context.Background(), Payload{
			StrategyID: "btc-momentum",
			Signal:     1,
			Timestamp:  ts,
			Raw:        []byte(`{"strategyId":"btc-momentum","signal":1}`),
		})
		assert.NoError(t, err)
		assert.Equal(t, int64(42), sig.ID)
		store.AssertExpectations(t)
	})

	t.Run("derives signal id when absent", func(t *testing.T) {
		store := new(MockStore)
		var captured types.Signal
		store.On("HasSignal", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
		store.On("InsertSignal", mock.Anything, mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { captured = args.Get(1).(types.Signal) }).
			Return(int64(1), nil)

		_, err := New(store, testCatalog()).Admit(context.Background(), Payload{
			StrategyID: "btc-momentum",
			Signal:     -1,
			Timestamp:  ts,
		})
		assert.NoError(t, err)
		assert.Equal(t, deriveSignalID("btc-momentum", -1, ts), captured.SignalID)
	})

	t.Run("explicit signal id is kept", func(t *testing.T) {
		store := new(MockStore)
		store.On("HasSignal", mock.Anything, "alert-77", mock.Anything).Return(false, nil)
		store.On("InsertSignal", mock.Anything, mock.MatchedBy(func(sig types.Signal) bool {
			return sig.SignalID == "alert-77"
		}), mock.Anything).Return(int64(1), nil)

		_, err := New(store, testCatalog()).Admit(context.Background(), Payload{
			StrategyID: "btc-momentum",
			Signal:     1,
			SignalID:   "alert-77",
			Timestamp:  ts,
		})
		assert.NoError(t, err)
		store.AssertExpectations(t)
	})

	t.Run("duplicate is rejected without insert", func(t *testing.T) {
		store := new(MockStore)
		store.On("HasSignal", mock.Anything, mock.Anything, mock.Anything).Return(true, nil)

		_, err := New(store, testCatalog()).Admit(context.Background(), Payload{
			StrategyID: "btc-momentum",
			Signal:     1,
			Timestamp:  ts,
		})
		assert.ErrorIs(t, err, ErrDuplicateSignal)
		store.AssertNotCalled(t, "InsertSignal", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("insert race loser reports duplicate", func(t *testing.T) {
		// Both submissions can pass HasSignal before either inserts; the
		// unique index rejects the loser and it must surface as a
		// duplicate, not a persistence failure.
		store := new(MockStore)
		store.On("HasSignal", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
		store.On("InsertSignal", mock.Anything, mock.Anything, mock.Anything).
			Return(int64(0), gormstore.ErrSignalExists)

		_, err := New(store, testCatalog()).Admit(context.Background(), Payload{
			StrategyID: "btc-momentum",
			Signal:     1,
			Timestamp:  ts,
		})
		assert.ErrorIs(t, err, ErrDuplicateSignal)
	})

	t.Run("unknown strategy", func(t *testing.T) {
		_, err := New(new(MockStore), testCatalog()).Admit(context.Background(), Payload{
			StrategyID: "no-such",
			Signal:     1,
		})
		assert.ErrorIs(t, err, ErrStrategyNotFound)
	})

	t.Run("invalid signal value", func(t *testing.T) {
		_, err := New(new(MockStore), testCatalog()).Admit(context.Background(), Payload{
			StrategyID: "btc-momentum",
			Signal:     2,
		})
		assert.ErrorIs(t, err, ErrInvalidSignal)
	})

	t.Run("payload symbol overrides catalog default", func(t *testing.T) {
		store := new(MockStore)
		store.On("HasSignal", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
		store.On("InsertSignal", mock.Anything, mock.MatchedBy(func(sig types.Signal) bool {
			return sig.CanonicalSymbol == "ETH/USDT"
		}), mock.Anything).Return(int64(1), nil)

		_, err := New(store, testCatalog()).Admit(context.Background(), Payload{
			StrategyID: "btc-momentum",
			Signal:     1,
			Symbol:     "ethusdt",
			Timestamp:  ts,
		})
		assert.NoError(t, err)
		store.AssertExpectations(t)
	})
}

func TestFingerprint(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	t.Run("stable within one bucket", func(t *testing.T) {
		a, err := fingerprint("s1", 1, "BTC/USDT", base)
		assert.NoError(t, err)
		b, err := fingerprint("s1", 1, "BTC/USDT", base.Add(30*time.Second))
		assert.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("differs across buckets", func(t *testing.T) {
		a, _ := fingerprint("s1", 1, "BTC/USDT", base)
		b, _ := fingerprint("s1", 1, "BTC/USDT", base.Add(90*time.Second))
		assert.NotEqual(t, a, b)
	})

	t.Run("differs per field", func(t *testing.T) {
		a, _ := fingerprint("s1", 1, "BTC/USDT", base)
		b, _ := fingerprint("s1", -1, "BTC/USDT", base)
		c, _ := fingerprint("s2", 1, "BTC/USDT", base)
		assert.NotEqual(t, a, b)
		assert.NotEqual(t, a, c)
	})
}
