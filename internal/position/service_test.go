package position

import (
	"context"
	"testing"

	"tradefan/internal/store/gormstore"
	"tradefan/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetPosition(ctx context.Context, id int64) (types.Position, bool, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(types.Position), args.Bool(1), args.Error(2)
}

func (m *MockStore) GetOpenPosition(ctx context.Context, userID int64, strategyID, symbol string) (types.Position, bool, error) {
	args := m.Called(ctx, userID, strategyID, symbol)
	return args.Get(0).(types.Position), args.Bool(1), args.Error(2)
}

func (m *MockStore) InsertPosition(ctx context.Context, pos types.Position) (int64, error) {
	args := m.Called(ctx, pos)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) ClosePositionRow(ctx context.Context, id int64, upd gormstore.PositionCloseUpdate) (int64, error) {
	args := m.Called(ctx, id, upd)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) ListMonitorEligible(ctx context.Context) ([]types.Position, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Position), args.Error(1)
}

func baseSubscription() types.Subscription {
	return types.Subscription{
		UserID:     7,
		StrategyID: "btc-momentum",
		Qty:        2,
		SLEnabled:  true,
		SLType:     types.SLTPPoints,
		SLValue:    10,
		TPEnabled:  true,
		TPType:     types.SLTPPercent,
		TPValue:    5,
		ExitMode:   types.ExitModeSLTP,
	}
}

func TestServiceCreate(t *testing.T) {
	t.Run("derives sl and tp from subscription", func(t *testing.T) {
		store := new(MockStore)
		svc := NewService(store)
		store.On("InsertPosition", mock.Anything, mock.MatchedBy(func(pos types.Position) bool {
			return pos.SLPrice != nil && *pos.SLPrice == 90 &&
				pos.TPPrice != nil && *pos.TPPrice == 105 &&
				pos.Status == types.PositionOpen
		})).Return(int64(11), nil)

		id, err := svc.Create(context.Background(), CreateParams{
			UserID:          7,
			StrategyID:      "btc-momentum",
			CanonicalSymbol: "BTC/USDT",
			Side:            types.SideLong,
			Qty:             2,
			EntryPrice:      100,
			Subscription:    baseSubscription(),
		})
		assert.NoError(t, err)
		assert.Equal(t, int64(11), id)
		store.AssertExpectations(t)
	})

	t.Run("disabled brackets leave prices nil", func(t *testing.T) {
		store := new(MockStore)
		svc := NewService(store)
		sub := baseSubscription()
		sub.SLEnabled = false
		sub.TPEnabled = false
		store.On("InsertPosition", mock.Anything, mock.MatchedBy(func(pos types.Position) bool {
			return pos.SLPrice == nil && pos.TPPrice == nil
		})).Return(int64(12), nil)

		_, err := svc.Create(context.Background(), CreateParams{
			UserID:          7,
			StrategyID:      "btc-momentum",
			CanonicalSymbol: "BTC/USDT",
			Side:            types.SideShort,
			Qty:             1,
			EntryPrice:      50,
			Subscription:    sub,
		})
		assert.NoError(t, err)
		store.AssertExpectations(t)
	})

	t.Run("rejects flat side", func(t *testing.T) {
		svc := NewService(new(MockStore))
		_, err := svc.Create(context.Background(), CreateParams{
			Side:       types.SideFlat,
			Qty:        1,
			EntryPrice: 100,
		})
		assert.Error(t, err)
	})
}

func TestServiceClose(t *testing.T) {
	openPos := types.Position{
		ID:         11,
		UserID:     7,
		Side:       types.SideLong,
		Qty:        10,
		EntryPrice: 100,
		Status:     types.PositionOpen,
	}

	t.Run("computes pnl and closes once", func(t *testing.T) {
		store := new(MockStore)
		svc := NewService(store)
		store.On("GetPosition", mock.Anything, int64(11)).Return(openPos, true, nil)
		store.On("ClosePositionRow", mock.Anything, int64(11), mock.MatchedBy(func(upd gormstore.PositionCloseUpdate) bool {
			return upd.PnL == 100 && upd.PnLPercentage == 10 && upd.ExitReason == types.ExitReasonTakeProfit
		})).Return(int64(1), nil)

		err := svc.Close(context.Background(), 11, "ORD-1", 110, types.ExitReasonTakeProfit)
		assert.NoError(t, err)
		store.AssertExpectations(t)
	})

	t.Run("missing position", func(t *testing.T) {
		store := new(MockStore)
		svc := NewService(store)
		store.On("GetPosition", mock.Anything, int64(99)).Return(types.Position{}, false, nil)

		err := svc.Close(context.Background(), 99, "ORD-1", 110, types.ExitReasonStopLoss)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("already closed position", func(t *testing.T) {
		store := new(MockStore)
		svc := NewService(store)
		closed := openPos
		closed.Status = types.PositionClosed
		store.On("GetPosition", mock.Anything, int64(11)).Return(closed, true, nil)

		err := svc.Close(context.Background(), 11, "ORD-2", 110, types.ExitReasonStopLoss)
		assert.ErrorIs(t, err, ErrAlreadyClosed)
	})

	t.Run("lost close race maps to already closed", func(t *testing.T) {
		store := new(MockStore)
		svc := NewService(store)
		store.On("GetPosition", mock.Anything, int64(11)).Return(openPos, true, nil)
		store.On("ClosePositionRow", mock.Anything, int64(11), mock.Anything).Return(int64(0), nil)

		err := svc.Close(context.Background(), 11, "ORD-3", 110, types.ExitReasonStopLoss)
		assert.ErrorIs(t, err, ErrAlreadyClosed)
	})
}
