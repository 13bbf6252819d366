package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockClient is an in-memory Client for tests and paper trading. Behavior
// is controlled by the public fields; the zero value fills everything at
// the configured prices.
type MockClient struct {
	mu sync.Mutex

	Balances   map[string]float64 // quote asset -> free balance
	Prices     map[string]float64 // symbol -> mark price
	Positions  []OpenPosition
	SymbolInfo SymbolInfo

	// Fail injections, keyed by symbol for orders and quote asset for
	// balance fetches
	OrderErr   error
	BalanceErr error
	Latency    time.Duration

	SubmittedOrders []OrderRequest
	nextOrderID     int
}

// NewMockClient creates a mock with sane defaults
func NewMockClient() *MockClient {
	return &MockClient{
		Balances: map[string]float64{"USDT": 10000},
		Prices:   map[string]float64{},
		SymbolInfo: SymbolInfo{
			TickSize:    0.01,
			LotStep:     0.001,
			MinNotional: 10,
		},
	}
}

func (m *MockClient) sleep(ctx context.Context) error {
	if m.Latency == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return NewError(KindNetworkTimeout, ctx.Err())
	case <-time.After(m.Latency):
		return nil
	}
}

// FetchBalance returns the configured free balance
func (m *MockClient) FetchBalance(ctx context.Context, quoteAsset string) (*Balance, error) {
	if err := m.sleep(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BalanceErr != nil {
		return nil, m.BalanceErr
	}

	free := m.Balances[quoteAsset]
	return &Balance{Free: free, Total: free}, nil
}

// FetchMarkPrice returns the configured price for a symbol
func (m *MockClient) FetchMarkPrice(ctx context.Context, symbol string) (float64, error) {
	if err := m.sleep(ctx); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	price, ok := m.Prices[symbol]
	if !ok {
		return 0, NewError(KindInvalidSymbol, fmt.Errorf("invalid symbol: %s", symbol))
	}
	return price, nil
}

// SubmitMarketOrder records the request and acknowledges a full fill
func (m *MockClient) SubmitMarketOrder(ctx context.Context, req OrderRequest) (*OrderAck, error) {
	if err := m.sleep(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OrderErr != nil {
		return nil, m.OrderErr
	}

	m.SubmittedOrders = append(m.SubmittedOrders, req)
	m.nextOrderID++

	price := m.Prices[req.Symbol]
	return &OrderAck{
		OrderID:     fmt.Sprintf("mock-%d", m.nextOrderID),
		FilledPrice: price,
		FilledQty:   req.Quantity,
	}, nil
}

// FetchOpenPositions returns the configured positions
func (m *MockClient) FetchOpenPositions(ctx context.Context) ([]OpenPosition, error) {
	if err := m.sleep(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OpenPosition, len(m.Positions))
	copy(out, m.Positions)
	return out, nil
}

// ExchangeInfo returns the configured trading rules
func (m *MockClient) ExchangeInfo(ctx context.Context, symbol string) (*SymbolInfo, error) {
	if err := m.sleep(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	info := m.SymbolInfo
	return &info, nil
}
