package market

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PoolInterface defines the database pool operations the store needs
type PoolInterface interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Store reads OHLCV bars from the candlesticks table. The ingestion
// pipeline that fills the table is a separate process; this side only
// ever reads closed bars.
type Store struct {
	pool PoolInterface
}

// NewStore creates a new OHLCV store reader
func NewStore(pool PoolInterface) *Store {
	return &Store{pool: pool}
}

// NewStoreWithPool creates a store from a pgxpool.Pool
func NewStoreWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// RecentBars returns the most recent limit closed bars for the symbol and
// timeframe, in ascending open-time order
func (s *Store) RecentBars(ctx context.Context, symbol, timeframe string, limit int) ([]Bar, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("no database pool available")
	}

	query := `
		SELECT symbol, interval, open_time, open, high, low, close, volume
		FROM candlesticks
		WHERE symbol = $1
			AND interval = $2
			AND is_closed = TRUE
		ORDER BY open_time DESC
		LIMIT $3
	`

	rows, err := s.pool.Query(ctx, query, symbol, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	var bars []Bar
	for rows.Next() {
		var b Bar
		if err := rows.Scan(&b.Symbol, &b.Timeframe, &b.OpenTime, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bars: %w", err)
	}

	// Reverse into ascending order
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}

	log.Debug().
		Str("symbol", symbol).
		Str("timeframe", timeframe).
		Int("bars", len(bars)).
		Msg("Bars loaded from store")

	return bars, nil
}

// Stats holds the 24h per-symbol statistics the risk manager consumes
type Stats struct {
	Symbol        string
	Volatility    float64 // realized volatility of 1h returns over 24h
	QuoteVolume   float64 // 24h quote volume
	LastPrice     float64
	ComputedAt    time.Time
}

// Stats24h computes 24-hour realized volatility and quote volume for the
// symbol from stored 1h bars
func (s *Store) Stats24h(ctx context.Context, symbol string, now time.Time) (*Stats, error) {
	bars, err := s.RecentBars(ctx, symbol, "1h", 25)
	if err != nil {
		return nil, err
	}
	if len(bars) < 2 {
		return nil, fmt.Errorf("insufficient 1h bars for %s stats", symbol)
	}

	var quoteVolume float64
	returns := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		if bars[i-1].Close > 0 {
			returns = append(returns, (bars[i].Close-bars[i-1].Close)/bars[i-1].Close)
		}
		quoteVolume += bars[i].Volume * bars[i].Close
	}

	// Realized volatility: stddev of hourly returns scaled to 24h
	vol := stdDev(returns) * math.Sqrt(24)

	return &Stats{
		Symbol:      symbol,
		Volatility:  vol,
		QuoteVolume: quoteVolume,
		LastPrice:   bars[len(bars)-1].Close,
		ComputedAt:  now,
	}, nil
}

func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values) - 1)

	return math.Sqrt(variance)
}
