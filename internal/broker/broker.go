// Package broker models trading venues behind a uniform capability
// interface. Concrete adapters are selected through a static registry by
// venue name; unknown venues degrade to the simulated paper adapter.
package broker

import (
	"context"
	"time"

	"tradefan/internal/types"
)

// OrderSide is the order direction on the venue.
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// SideToOrder maps a position side to the order side that opens it.
func SideToOrder(side types.Side) OrderSide {
	if side == types.SideShort {
		return Sell
	}
	return Buy
}

// ExitOrderSide maps a held side to the order side that closes it.
func ExitOrderSide(side types.Side) OrderSide {
	if side == types.SideLong {
		return Sell
	}
	return Buy
}

// OrderType is the venue order type.
type OrderType string

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
)

// OrderRequest describes one order placement.
type OrderRequest struct {
	Side      OrderSide
	Symbol    string
	Qty       float64
	OrderType OrderType
	Price     float64 // required for LIMIT only
}

// OrderResult is the venue's fill report.
type OrderResult struct {
	OrderID   string
	Status    string
	FillPrice float64
	FillQty   float64
	FillTime  time.Time
}

// Gateway is the per-credential-set venue capability contract. Every
// adapter must tolerate failing independently per call; callers contain
// errors to the subscriber or position being processed.
type Gateway interface {
	Name() string

	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)

	GetLTP(ctx context.Context, symbol string) (float64, error)

	CancelOrder(ctx context.Context, orderID string) error

	// NormalizeSymbol converts a canonical symbol to the venue's format.
	NormalizeSymbol(canonical string) string
}
