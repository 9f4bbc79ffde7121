package broker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	symbolpkg "tradefan/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

// BinanceConfig carries venue-level settings shared by all credential
// sets; credentials themselves arrive per gateway instance.
type BinanceConfig struct {
	RESTBaseURL  string
	HTTPTimeout  time.Duration
	ProxyEnabled bool
	RESTProxyURL string
}

func (c BinanceConfig) withDefaults() BinanceConfig {
	out := c
	out.RESTBaseURL = strings.TrimSpace(out.RESTBaseURL)
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = "https://api.binance.com"
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	out.RESTProxyURL = strings.TrimSpace(out.RESTProxyURL)
	return out
}

// BinanceGateway places spot orders through the go-binance SDK.
type BinanceGateway struct {
	client *binance.Client
}

// NewBinance builds a gateway for one credential pair.
func NewBinance(cfg BinanceConfig, apiKey, apiSecret string) (*BinanceGateway, error) {
	final := cfg.withDefaults()
	client := binance.NewClient(apiKey, apiSecret)
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return &BinanceGateway{client: client}, nil
}

func (g *BinanceGateway) Name() string { return "binance" }

func (g *BinanceGateway) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	sym := g.NormalizeSymbol(req.Symbol)
	if sym == "" {
		return OrderResult{}, fmt.Errorf("binance: symbol is required")
	}
	if req.Qty <= 0 {
		return OrderResult{}, fmt.Errorf("binance: qty must be > 0")
	}
	svc := g.client.NewCreateOrderService().
		Symbol(sym).
		Side(binance.SideType(req.Side)).
		Quantity(formatQty(req.Qty))
	switch req.OrderType {
	case Limit:
		if req.Price <= 0 {
			return OrderResult{}, fmt.Errorf("binance: limit order requires price")
		}
		svc = svc.Type(binance.OrderTypeLimit).
			TimeInForce(binance.TimeInForceTypeGTC).
			Price(formatQty(req.Price))
	default:
		svc = svc.Type(binance.OrderTypeMarket)
	}
	res, err := svc.Do(ctx)
	if err != nil {
		return OrderResult{}, fmt.Errorf("binance: place order failed: %w", err)
	}
	out := OrderResult{
		OrderID:   strconv.FormatInt(res.OrderID, 10),
		Status:    string(res.Status),
		FillPrice: averageFillPrice(res),
		FillQty:   parseFloat(res.ExecutedQuantity),
		FillTime:  time.UnixMilli(res.TransactTime),
	}
	return out, nil
}

func (g *BinanceGateway) GetLTP(ctx context.Context, symbol string) (float64, error) {
	sym := g.NormalizeSymbol(symbol)
	prices, err := g.client.NewListPricesService().Symbol(sym).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance: price fetch failed: %w", err)
	}
	for _, p := range prices {
		if p == nil {
			continue
		}
		if strings.EqualFold(p.Symbol, sym) {
			return parseFloat(p.Price), nil
		}
	}
	return 0, fmt.Errorf("binance: no price returned for %s", sym)
}

// CancelOrder expects a symbol-scoped id ("SYMBOL:ID"); the spot cancel
// endpoint cannot be routed from the numeric id alone.
func (g *BinanceGateway) CancelOrder(ctx context.Context, orderID string) error {
	parts := strings.SplitN(strings.TrimSpace(orderID), ":", 2)
	if len(parts) != 2 {
		return fmt.Errorf("binance: cancel requires symbol-scoped id, got %q", orderID)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return fmt.Errorf("binance: invalid order id %q", orderID)
	}
	_, err = g.client.NewCancelOrderService().Symbol(parts[0]).OrderID(id).Do(ctx)
	return err
}

func (g *BinanceGateway) NormalizeSymbol(canonical string) string {
	// Binance wants symbols without separators (ETH/USDT -> ETHUSDT).
	return symbolpkg.Binance.ToExchange(symbolpkg.Canonical(canonical))
}

// averageFillPrice derives the effective entry price from the fill legs;
// market orders can fill across several price levels.
func averageFillPrice(res *binance.CreateOrderResponse) float64 {
	if res == nil {
		return 0
	}
	if len(res.Fills) == 0 {
		return parseFloat(res.Price)
	}
	notional := decimal.Zero
	qty := decimal.Zero
	for _, fill := range res.Fills {
		if fill == nil {
			continue
		}
		p := decimal.NewFromFloat(parseFloat(fill.Price))
		q := decimal.NewFromFloat(parseFloat(fill.Quantity))
		notional = notional.Add(p.Mul(q))
		qty = qty.Add(q)
	}
	if qty.IsZero() {
		return parseFloat(res.Price)
	}
	avg, _ := notional.Div(qty).Float64()
	return avg
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
