package exchange

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// BinanceConfig configures a per-account Binance client
type BinanceConfig struct {
	APIKey    string
	SecretKey string
	Testnet   bool
	Market    Market // default venue for balance and position calls
	Retry     RetryConfig
}

// BinanceClient implements Client against Binance spot and futures.
// One client per account; handles are never shared across accounts.
type BinanceClient struct {
	spot    *binance.Client
	futures *futures.Client

	defaultMarket Market
	retry         RetryConfig
	breaker       *gobreaker.CircuitBreaker
	limiter       *rate.Limiter

	mu          sync.Mutex
	leverageSet map[string]int // symbol -> leverage already applied
}

// NewBinanceClient creates an authenticated Binance client
func NewBinanceClient(cfg BinanceConfig) *BinanceClient {
	if cfg.Testnet {
		binance.UseTestnet = true
		futures.UseTestnet = true
		log.Info().Msg("Binance client initialized (TESTNET mode)")
	} else {
		log.Warn().Msg("Binance client initialized (LIVE TRADING mode)")
	}

	if cfg.Market == "" {
		cfg.Market = MarketFutures
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "binance",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	return &BinanceClient{
		spot:          binance.NewClient(cfg.APIKey, cfg.SecretKey),
		futures:       futures.NewClient(cfg.APIKey, cfg.SecretKey),
		defaultMarket: cfg.Market,
		retry:         cfg.Retry,
		breaker:       breaker,
		limiter:       rate.NewLimiter(rate.Limit(10), 20),
		leverageSet:   make(map[string]int),
	}
}

// call runs an API operation through the rate limiter, circuit breaker and
// retry policy
func (c *BinanceClient) call(ctx context.Context, op func() error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return NewError(KindTimeout, err)
	}

	return WithRetry(ctx, c.retry, func() error {
		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, op()
		})
		return err
	})
}

// FetchBalance returns the free quote-asset balance on the default venue
func (c *BinanceClient) FetchBalance(ctx context.Context, quoteAsset string) (*Balance, error) {
	var balance *Balance

	err := c.call(ctx, func() error {
		if c.defaultMarket == MarketFutures {
			balances, err := c.futures.NewGetBalanceService().Do(ctx)
			if err != nil {
				return err
			}
			for _, b := range balances {
				if b.Asset != quoteAsset {
					continue
				}
				total := parseFloat(b.Balance)
				free := parseFloat(b.AvailableBalance)
				balance = &Balance{Free: free, Used: total - free, Total: total}
				return nil
			}
		} else {
			account, err := c.spot.NewGetAccountService().Do(ctx)
			if err != nil {
				return err
			}
			for _, b := range account.Balances {
				if b.Asset != quoteAsset {
					continue
				}
				free := parseFloat(b.Free)
				locked := parseFloat(b.Locked)
				balance = &Balance{Free: free, Used: locked, Total: free + locked}
				return nil
			}
		}
		balance = &Balance{}
		return nil
	})
	if err != nil {
		return nil, NewError(KindOf(err), fmt.Errorf("balance fetch for %s: %w", quoteAsset, err))
	}

	return balance, nil
}

// FetchMarkPrice returns the current mark price (futures) or last price
// (spot) for a symbol
func (c *BinanceClient) FetchMarkPrice(ctx context.Context, symbol string) (float64, error) {
	var price float64

	err := c.call(ctx, func() error {
		if c.defaultMarket == MarketFutures {
			indexes, err := c.futures.NewPremiumIndexService().Symbol(symbol).Do(ctx)
			if err != nil {
				return err
			}
			if len(indexes) == 0 {
				return fmt.Errorf("no mark price for %s", symbol)
			}
			price = parseFloat(indexes[0].MarkPrice)
			return nil
		}

		prices, err := c.spot.NewListPricesService().Symbol(symbol).Do(ctx)
		if err != nil {
			return err
		}
		if len(prices) == 0 {
			return fmt.Errorf("no price for %s", symbol)
		}
		price = parseFloat(prices[0].Price)
		return nil
	})
	if err != nil {
		return 0, NewError(KindOf(err), fmt.Errorf("mark price for %s: %w", symbol, err))
	}

	return price, nil
}

// SubmitMarketOrder submits a market order on the requested venue and
// returns the fill acknowledgment
func (c *BinanceClient) SubmitMarketOrder(ctx context.Context, req OrderRequest) (*OrderAck, error) {
	qty := strconv.FormatFloat(req.Quantity, 'f', -1, 64)

	var ack *OrderAck
	err := c.call(ctx, func() error {
		if req.Market == MarketFutures {
			if err := c.ensureLeverage(ctx, req.Symbol, req.Leverage); err != nil {
				return err
			}

			side := futures.SideTypeBuy
			if req.Side == SideSell {
				side = futures.SideTypeSell
			}
			resp, err := c.futures.NewCreateOrderService().
				Symbol(req.Symbol).
				Side(side).
				Type(futures.OrderTypeMarket).
				Quantity(qty).
				Do(ctx)
			if err != nil {
				return err
			}
			ack = &OrderAck{
				OrderID:     strconv.FormatInt(resp.OrderID, 10),
				FilledPrice: parseFloat(resp.AvgPrice),
				FilledQty:   parseFloat(resp.ExecutedQuantity),
			}
			return nil
		}

		side := binance.SideTypeBuy
		if req.Side == SideSell {
			side = binance.SideTypeSell
		}
		resp, err := c.spot.NewCreateOrderService().
			Symbol(req.Symbol).
			Side(side).
			Type(binance.OrderTypeMarket).
			Quantity(qty).
			Do(ctx)
		if err != nil {
			return err
		}
		ack = &OrderAck{
			OrderID:     strconv.FormatInt(resp.OrderID, 10),
			FilledPrice: avgFillPrice(resp),
			FilledQty:   parseFloat(resp.ExecutedQuantity),
		}
		return nil
	})
	if err != nil {
		return nil, NewError(KindOf(err), fmt.Errorf("order submit %s %s: %w", req.Side, req.Symbol, err))
	}

	log.Info().
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Str("market", string(req.Market)).
		Str("exchange_order_id", ack.OrderID).
		Float64("filled_qty", ack.FilledQty).
		Float64("filled_price", ack.FilledPrice).
		Msg("Market order filled")

	return ack, nil
}

// FetchOpenPositions returns open futures positions. Spot accounts have no
// position concept and return an empty list.
func (c *BinanceClient) FetchOpenPositions(ctx context.Context) ([]OpenPosition, error) {
	if c.defaultMarket != MarketFutures {
		return nil, nil
	}

	var positions []OpenPosition
	err := c.call(ctx, func() error {
		risks, err := c.futures.NewGetPositionRiskService().Do(ctx)
		if err != nil {
			return err
		}

		positions = positions[:0]
		for _, r := range risks {
			amt := parseFloat(r.PositionAmt)
			if amt == 0 {
				continue
			}

			side := SideBuy
			qty := amt
			if amt < 0 {
				side = SideSell
				qty = -amt
			}
			positions = append(positions, OpenPosition{
				Symbol:        r.Symbol,
				Side:          side,
				EntryPrice:    parseFloat(r.EntryPrice),
				Quantity:      qty,
				MarkPrice:     parseFloat(r.MarkPrice),
				UnrealizedPnl: parseFloat(r.UnRealizedProfit),
			})
		}
		return nil
	})
	if err != nil {
		return nil, NewError(KindOf(err), fmt.Errorf("position fetch: %w", err))
	}

	return positions, nil
}

// ExchangeInfo returns the trading rules for a symbol on the default venue
func (c *BinanceClient) ExchangeInfo(ctx context.Context, symbol string) (*SymbolInfo, error) {
	var info *SymbolInfo

	err := c.call(ctx, func() error {
		if c.defaultMarket == MarketFutures {
			resp, err := c.futures.NewExchangeInfoService().Do(ctx)
			if err != nil {
				return err
			}
			for _, s := range resp.Symbols {
				if s.Symbol != symbol {
					continue
				}
				info = futuresSymbolInfo(s)
				return nil
			}
			return fmt.Errorf("invalid symbol: %s", symbol)
		}

		resp, err := c.spot.NewExchangeInfoService().Symbol(symbol).Do(ctx)
		if err != nil {
			return err
		}
		for _, s := range resp.Symbols {
			if s.Symbol != symbol {
				continue
			}
			info = spotSymbolInfo(s)
			return nil
		}
		return fmt.Errorf("invalid symbol: %s", symbol)
	})
	if err != nil {
		return nil, NewError(KindOf(err), fmt.Errorf("exchange info for %s: %w", symbol, err))
	}

	return info, nil
}

// futuresSymbolInfo extracts the trading rules from a futures symbol. The
// futures min-notional filter carries its value in the "notional" field.
func futuresSymbolInfo(s futures.Symbol) *SymbolInfo {
	info := &SymbolInfo{}
	if f := s.PriceFilter(); f != nil {
		info.TickSize = parseFloat(f.TickSize)
	}
	if f := s.LotSizeFilter(); f != nil {
		info.LotStep = parseFloat(f.StepSize)
	}
	if f := s.MinNotionalFilter(); f != nil {
		info.MinNotional = parseFloat(f.Notional)
	}
	return info
}

// spotSymbolInfo extracts the trading rules from a spot symbol. Spot uses
// the NOTIONAL filter with a "minNotional" field.
func spotSymbolInfo(s binance.Symbol) *SymbolInfo {
	info := &SymbolInfo{}
	if f := s.PriceFilter(); f != nil {
		info.TickSize = parseFloat(f.TickSize)
	}
	if f := s.LotSizeFilter(); f != nil {
		info.LotStep = parseFloat(f.StepSize)
	}
	if f := s.NotionalFilter(); f != nil {
		info.MinNotional = parseFloat(f.MinNotional)
	}
	return info
}

// ensureLeverage applies the leverage setting once per symbol
func (c *BinanceClient) ensureLeverage(ctx context.Context, symbol string, leverage int) error {
	if leverage < 1 {
		leverage = 1
	}

	c.mu.Lock()
	applied := c.leverageSet[symbol]
	c.mu.Unlock()
	if applied == leverage {
		return nil
	}

	if _, err := c.futures.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx); err != nil {
		return fmt.Errorf("failed to set leverage %dx on %s: %w", leverage, symbol, err)
	}

	c.mu.Lock()
	c.leverageSet[symbol] = leverage
	c.mu.Unlock()

	log.Debug().Str("symbol", symbol).Int("leverage", leverage).Msg("Leverage applied")
	return nil
}

// avgFillPrice computes the volume-weighted fill price of a spot order
func avgFillPrice(resp *binance.CreateOrderResponse) float64 {
	var qty, quote float64
	for _, f := range resp.Fills {
		p := parseFloat(f.Price)
		q := parseFloat(f.Quantity)
		qty += q
		quote += p * q
	}
	if qty == 0 {
		return 0
	}
	return quote / qty
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
