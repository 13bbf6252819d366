package exchange

import (
	"testing"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
)

func TestSpotSymbolInfo(t *testing.T) {
	s := binance.Symbol{
		Symbol: "BTCUSDT",
		Filters: []map[string]interface{}{
			{"filterType": "PRICE_FILTER", "tickSize": "0.01", "minPrice": "0.01", "maxPrice": "1000000"},
			{"filterType": "LOT_SIZE", "stepSize": "0.001", "minQty": "0.001", "maxQty": "9000"},
			{"filterType": "NOTIONAL", "minNotional": "10", "maxNotional": "9000000"},
		},
	}

	info := spotSymbolInfo(s)
	if info.TickSize != 0.01 {
		t.Errorf("Expected tick size 0.01, got %v", info.TickSize)
	}
	if info.LotStep != 0.001 {
		t.Errorf("Expected lot step 0.001, got %v", info.LotStep)
	}
	if info.MinNotional != 10 {
		t.Errorf("Expected min notional 10, got %v", info.MinNotional)
	}
}

func TestSpotSymbolInfoMissingFilters(t *testing.T) {
	info := spotSymbolInfo(binance.Symbol{Symbol: "BTCUSDT"})
	if info.TickSize != 0 || info.LotStep != 0 || info.MinNotional != 0 {
		t.Errorf("Expected zero rules without filters, got %+v", info)
	}
}

func TestFuturesSymbolInfo(t *testing.T) {
	s := futures.Symbol{
		Symbol: "BTCUSDT",
		Filters: []map[string]interface{}{
			{"filterType": "PRICE_FILTER", "tickSize": "0.10", "minPrice": "0.10", "maxPrice": "1000000"},
			{"filterType": "LOT_SIZE", "stepSize": "0.001", "minQty": "0.001", "maxQty": "1000"},
			{"filterType": "MIN_NOTIONAL", "notional": "5"},
		},
	}

	info := futuresSymbolInfo(s)
	if info.TickSize != 0.10 {
		t.Errorf("Expected tick size 0.10, got %v", info.TickSize)
	}
	if info.LotStep != 0.001 {
		t.Errorf("Expected lot step 0.001, got %v", info.LotStep)
	}
	if info.MinNotional != 5 {
		t.Errorf("Expected min notional 5, got %v", info.MinNotional)
	}
}
