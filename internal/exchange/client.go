// Package exchange provides the venue-agnostic client interface and the
// Binance implementation used by the executor and position monitor.
package exchange

import "context"

// Market selects the venue an operation targets
type Market string

const (
	MarketSpot    Market = "SPOT"
	MarketFutures Market = "FUTURES"
)

// Side is the order direction on the exchange
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Balance is the quote-asset balance of an account
type Balance struct {
	Free  float64
	Used  float64
	Total float64
}

// OrderRequest describes a market order submission
type OrderRequest struct {
	Symbol   string
	Side     Side
	Quantity float64
	Leverage int
	Market   Market
}

// OrderAck is the exchange acknowledgment of a filled market order
type OrderAck struct {
	OrderID     string
	FilledPrice float64
	FilledQty   float64
}

// SymbolInfo holds the exchange trading rules for a symbol
type SymbolInfo struct {
	TickSize    float64
	LotStep     float64
	MinNotional float64
}

// OpenPosition is an exchange-reported open position
type OpenPosition struct {
	Symbol        string
	Side          Side
	EntryPrice    float64
	Quantity      float64
	MarkPrice     float64
	UnrealizedPnl float64
}

// Client is the capability set the core needs from a venue. Every call
// honors the context deadline and fails with a typed *Error.
type Client interface {
	FetchBalance(ctx context.Context, quoteAsset string) (*Balance, error)
	FetchMarkPrice(ctx context.Context, symbol string) (float64, error)
	SubmitMarketOrder(ctx context.Context, req OrderRequest) (*OrderAck, error)
	FetchOpenPositions(ctx context.Context) ([]OpenPosition, error)
	ExchangeInfo(ctx context.Context, symbol string) (*SymbolInfo, error)
}
