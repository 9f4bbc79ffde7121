package broker

import (
	"context"
	"testing"

	"tradefan/internal/types"

	"github.com/stretchr/testify/assert"
)

func TestRegistryResolve(t *testing.T) {
	paper := PaperFactory(100)
	registry := NewRegistry(paper)
	registry.Register("paper", paper)

	t.Run("known venue", func(t *testing.T) {
		gw, err := registry.Resolve(types.Credential{Broker: "paper"})
		assert.NoError(t, err)
		assert.Equal(t, "paper", gw.Name())
	})

	t.Run("venue name is case and space insensitive", func(t *testing.T) {
		gw, err := registry.Resolve(types.Credential{Broker: " Paper "})
		assert.NoError(t, err)
		assert.Equal(t, "paper", gw.Name())
	})

	t.Run("unknown venue falls back to paper", func(t *testing.T) {
		gw, err := registry.Resolve(types.Credential{Broker: "zerodha"})
		assert.NoError(t, err)
		assert.Equal(t, "paper", gw.Name())
	})

	t.Run("empty broker falls back to paper", func(t *testing.T) {
		gw, err := registry.Resolve(types.Credential{})
		assert.NoError(t, err)
		assert.Equal(t, "paper", gw.Name())
	})
}

func TestPaperGateway(t *testing.T) {
	gw := NewPaper("paper", 100)
	ctx := context.Background()

	t.Run("fills at seeded price", func(t *testing.T) {
		gw.SetPrice("BTC/USDT", 64123.5)
		res, err := gw.PlaceOrder(ctx, OrderRequest{Side: Buy, Symbol: "BTC/USDT", Qty: 2, OrderType: Market})
		assert.NoError(t, err)
		assert.Equal(t, "FILLED", res.Status)
		assert.Equal(t, 64123.5, res.FillPrice)
		assert.NotEmpty(t, res.OrderID)
	})

	t.Run("unseeded symbol uses base price", func(t *testing.T) {
		price, err := gw.GetLTP(ctx, "ETH/USDT")
		assert.NoError(t, err)
		assert.Equal(t, 100.0, price)
	})
}

func TestOrderSideHelpers(t *testing.T) {
	assert.Equal(t, Buy, SideToOrder(types.SideLong))
	assert.Equal(t, Sell, SideToOrder(types.SideShort))
	assert.Equal(t, Sell, ExitOrderSide(types.SideLong))
	assert.Equal(t, Buy, ExitOrderSide(types.SideShort))
}
