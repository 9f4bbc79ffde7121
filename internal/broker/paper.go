package broker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tradefan/internal/logger"
	"tradefan/internal/pkg/symbol"

	"github.com/google/uuid"
)

// PaperGateway simulates a venue: orders always fill at the last known
// price for the symbol (seeded with a configurable base price). Used for
// unsupported venues and in tests.
type PaperGateway struct {
	venue     string
	basePrice float64

	mu     sync.RWMutex
	prices map[string]float64
}

// NewPaper builds a paper gateway. venue is kept for logging so fills are
// attributable to the broker the credential actually named.
func NewPaper(venue string, basePrice float64) *PaperGateway {
	if strings.TrimSpace(venue) == "" {
		venue = "paper"
	}
	if basePrice <= 0 {
		basePrice = 100
	}
	return &PaperGateway{
		venue:     venue,
		basePrice: basePrice,
		prices:    make(map[string]float64),
	}
}

func (p *PaperGateway) Name() string { return p.venue }

// SetPrice pins the simulated price for a symbol.
func (p *PaperGateway) SetPrice(sym string, price float64) {
	p.mu.Lock()
	p.prices[p.NormalizeSymbol(sym)] = price
	p.mu.Unlock()
}

func (p *PaperGateway) priceFor(sym string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if price, ok := p.prices[sym]; ok && price > 0 {
		return price
	}
	return p.basePrice
}

func (p *PaperGateway) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return OrderResult{}, err
	}
	if req.Qty <= 0 {
		return OrderResult{}, fmt.Errorf("paper order qty must be > 0")
	}
	fill := p.priceFor(p.NormalizeSymbol(req.Symbol))
	if req.OrderType == Limit && req.Price > 0 {
		fill = req.Price
	}
	res := OrderResult{
		OrderID:   "PAPER_" + uuid.NewString(),
		Status:    "FILLED",
		FillPrice: fill,
		FillQty:   req.Qty,
		FillTime:  time.Now(),
	}
	logger.Infof("paper[%s]: %s %s qty=%v filled at %v", p.venue, req.Side, req.Symbol, req.Qty, fill)
	return res, nil
}

func (p *PaperGateway) GetLTP(ctx context.Context, sym string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return p.priceFor(p.NormalizeSymbol(sym)), nil
}

func (p *PaperGateway) CancelOrder(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger.Debugf("paper[%s]: cancel %s (no-op)", p.venue, orderID)
	return nil
}

func (p *PaperGateway) NormalizeSymbol(canonical string) string {
	return symbol.Canonical(canonical)
}
