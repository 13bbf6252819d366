// Package selector picks at most one signal per cycle from the fresh pool,
// ranked by composite quality.
package selector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/signalflow/internal/db"
)

// Quality weights. The raw signal score dominates but history and market
// fit move the ranking.
const (
	weightScore     = 0.40
	weightWinRate   = 0.30
	weightMarketFit = 0.20
	weightRR        = 0.10

	defaultWinRate = 0.50
	rrCap          = 5.0
)

// Store is the persistence surface the selector reads and mutates
type Store interface {
	ListActiveSignals(ctx context.Context, since time.Time, minScore float64) ([]*db.SignalRow, error)
	OpenPositionSymbols(ctx context.Context) (map[string]bool, error)
	CountOpenPositions(ctx context.Context) (int, error)
	CountConsumedSince(ctx context.Context, cutoff time.Time) (int, error)
	ConsumeSignal(ctx context.Context, signalID int64, now time.Time) (bool, error)
	FilledOrdersForSymbolSince(ctx context.Context, symbol string, since time.Time) ([]*db.Order, error)
}

// Config tunes the selector gates
type Config struct {
	MinScore               float64
	MaxSignalAge           time.Duration
	Cooldown               time.Duration
	MaxConcurrentPositions int
	MaxDailySignals        int
	WinRateLookback        time.Duration
}

// DefaultConfig returns the production selector settings
func DefaultConfig() Config {
	return Config{
		MinScore:               0.65,
		MaxSignalAge:           24 * time.Hour,
		Cooldown:               5 * time.Minute,
		MaxConcurrentPositions: 5,
		MaxDailySignals:        10,
		WinRateLookback:        30 * 24 * time.Hour,
	}
}

// Selector ranks the active pool and consumes the single winner
type Selector struct {
	store  Store
	cfg    Config
	logger zerolog.Logger

	mu              sync.Mutex
	lastExecutionAt time.Time
}

// New creates a selector
func New(store Store, cfg Config) *Selector {
	if cfg.MinScore == 0 {
		cfg = DefaultConfig()
	}
	if cfg.WinRateLookback == 0 {
		cfg.WinRateLookback = 30 * 24 * time.Hour
	}
	return &Selector{
		store:  store,
		cfg:    cfg,
		logger: log.With().Str("component", "selector").Logger(),
	}
}

// MarkExecuted records a successful execution for the cooldown gate
func (s *Selector) MarkExecuted(now time.Time) {
	s.mu.Lock()
	s.lastExecutionAt = now
	s.mu.Unlock()
}

// Select returns the top-ranked fresh signal, marked consumed, or nil when
// the pool is empty or a gate blocks. The consume is a conditional update
// on status, so concurrent schedulers cannot double-pick.
func (s *Selector) Select(ctx context.Context, now time.Time) (*db.SignalRow, error) {
	s.mu.Lock()
	last := s.lastExecutionAt
	s.mu.Unlock()

	if !last.IsZero() && now.Sub(last) < s.cfg.Cooldown {
		s.logger.Debug().
			Dur("since_last", now.Sub(last)).
			Dur("cooldown", s.cfg.Cooldown).
			Msg("Cooldown gate blocked selection")
		return nil, nil
	}

	openCount, err := s.store.CountOpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count open positions: %w", err)
	}
	if openCount >= s.cfg.MaxConcurrentPositions {
		s.logger.Debug().Int("open", openCount).Msg("Portfolio full, no selection")
		return nil, nil
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	consumedToday, err := s.store.CountConsumedSince(ctx, dayStart)
	if err != nil {
		return nil, fmt.Errorf("failed to count consumed signals: %w", err)
	}
	if consumedToday >= s.cfg.MaxDailySignals {
		s.logger.Debug().Int("consumed", consumedToday).Msg("Daily signal cap reached")
		return nil, nil
	}

	pool, err := s.store.ListActiveSignals(ctx, now.Add(-s.cfg.MaxSignalAge), s.cfg.MinScore)
	if err != nil {
		return nil, fmt.Errorf("failed to list active signals: %w", err)
	}
	if len(pool) == 0 {
		return nil, nil
	}

	openSymbols, err := s.store.OpenPositionSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list open symbols: %w", err)
	}

	ranked := s.rank(ctx, pool, openSymbols, now)
	if len(ranked) == 0 {
		return nil, nil
	}

	// Try candidates in rank order; a false consume means a concurrent
	// scheduler already took that one
	for _, c := range ranked {
		consumed, err := s.store.ConsumeSignal(ctx, c.row.ID, now)
		if err != nil {
			return nil, fmt.Errorf("failed to consume signal %d: %w", c.row.ID, err)
		}
		if !consumed {
			continue
		}

		s.logger.Info().
			Int64("signal_id", c.row.ID).
			Str("symbol", c.row.Symbol).
			Float64("score", c.row.Score).
			Float64("quality", c.quality).
			Msg("Signal selected")
		return c.row, nil
	}

	return nil, nil
}

type candidate struct {
	row     *db.SignalRow
	quality float64
}

func (s *Selector) rank(ctx context.Context, pool []*db.SignalRow, openSymbols map[string]bool, now time.Time) []candidate {
	candidates := make([]candidate, 0, len(pool))
	for _, row := range pool {
		if openSymbols[row.Symbol] {
			continue
		}
		candidates = append(candidates, candidate{
			row:     row,
			quality: s.quality(ctx, row, now),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].quality != candidates[j].quality {
			return candidates[i].quality > candidates[j].quality
		}
		if candidates[i].row.Score != candidates[j].row.Score {
			return candidates[i].row.Score > candidates[j].row.Score
		}
		return candidates[i].row.CreatedAt.After(candidates[j].row.CreatedAt)
	})

	return candidates
}

func (s *Selector) quality(ctx context.Context, row *db.SignalRow, now time.Time) float64 {
	winRate := s.recentWinRate(ctx, row.Symbol, now)

	rr := riskReward(row)
	rrNorm := math.Min(rr, rrCap) / rrCap

	return weightScore*row.Score +
		weightWinRate*winRate +
		weightMarketFit*marketConditionFit(row) +
		weightRR*rrNorm
}

// recentWinRate computes the symbol's win fraction over the lookback from
// closed orders with recorded PnL. Thin history falls back to neutral.
func (s *Selector) recentWinRate(ctx context.Context, symbol string, now time.Time) float64 {
	orders, err := s.store.FilledOrdersForSymbolSince(ctx, symbol, now.Add(-s.cfg.WinRateLookback))
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Win rate lookup failed, using default")
		return defaultWinRate
	}
	if len(orders) == 0 {
		return defaultWinRate
	}

	wins := 0
	for _, o := range orders {
		if o.Pnl != nil && *o.Pnl > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(orders))
}

// marketConditionFit scores how well the signal's snapshot suits a
// trend-following entry
func marketConditionFit(row *db.SignalRow) float64 {
	fit := 0.0

	if adx, ok := row.Snapshot["adx"]; ok && adx >= 25 {
		fit += 0.4
	}
	if ratio, ok := row.Snapshot["volume_ratio"]; ok && ratio >= 1.2 {
		fit += 0.3
	}

	ema20, ok20 := row.Snapshot["ema20"]
	ema50, ok50 := row.Snapshot["ema50"]
	if ok20 && ok50 {
		if row.Direction == "LONG" && ema20 > ema50 {
			fit += 0.3
		}
		if row.Direction == "SHORT" && ema20 < ema50 {
			fit += 0.3
		}
	}

	return fit
}

func riskReward(row *db.SignalRow) float64 {
	var reward, risk float64
	if row.Direction == "LONG" {
		reward = row.TP1 - row.Entry
		risk = row.Entry - row.StopLoss
	} else {
		reward = row.Entry - row.TP1
		risk = row.StopLoss - row.Entry
	}
	if risk <= 0 {
		return 0
	}
	return reward / risk
}
