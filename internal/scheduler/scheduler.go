// Package scheduler drives the trading cycle: scan, select, validate,
// execute. One scheduler owns all pipeline components.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/signalflow/internal/accounts"
	"github.com/ajitpratap0/signalflow/internal/db"
	"github.com/ajitpratap0/signalflow/internal/executor"
	"github.com/ajitpratap0/signalflow/internal/market"
	"github.com/ajitpratap0/signalflow/internal/metrics"
	"github.com/ajitpratap0/signalflow/internal/notifier"
	"github.com/ajitpratap0/signalflow/internal/risk"
	"github.com/ajitpratap0/signalflow/internal/selector"
	"github.com/ajitpratap0/signalflow/internal/signal"
)

// barsLimit is the series length fetched per analysis. Leaves headroom
// above the 200-bar minimum for indicator warmup.
const barsLimit = 300

// Config tunes the cycle loop
type Config struct {
	Symbols       []string
	Timeframes    []string
	Interval      time.Duration
	CycleDeadline time.Duration
	MaxSignalAge  time.Duration
	MaxWorkers    int
	TickSizes     map[string]float64 // symbol -> exchange tick size
}

// DefaultConfig returns the production cycle settings
func DefaultConfig() Config {
	return Config{
		Timeframes:    []string{"1h", "4h"},
		Interval:      60 * time.Second,
		CycleDeadline: 60 * time.Second,
		MaxSignalAge:  24 * time.Hour,
		MaxWorkers:    4,
	}
}

// Scheduler owns the pipeline components and runs the cycle loop
type Scheduler struct {
	cfg Config

	bars      *market.Store
	stats     *market.StatsCache
	generator *signal.Generator
	store     *db.DB
	selector  *selector.Selector
	validator *risk.Validator
	executor  *executor.Executor
	accounts  *accounts.Manager
	notify    *notifier.Notifier

	running atomic.Bool

	mu     sync.Mutex
	equity float64 // summed account balances, refreshed on each executing cycle

	logger zerolog.Logger
}

// New wires a scheduler from its components
func New(cfg Config, bars *market.Store, stats *market.StatsCache, generator *signal.Generator,
	store *db.DB, sel *selector.Selector, validator *risk.Validator,
	exec *executor.Executor, acctManager *accounts.Manager, notify *notifier.Notifier) *Scheduler {

	if cfg.Interval == 0 {
		def := DefaultConfig()
		def.Symbols = cfg.Symbols
		if len(cfg.Timeframes) > 0 {
			def.Timeframes = cfg.Timeframes
		}
		def.TickSizes = cfg.TickSizes
		cfg = def
	}

	return &Scheduler{
		cfg:       cfg,
		bars:      bars,
		stats:     stats,
		generator: generator,
		store:     store,
		selector:  sel,
		validator: validator,
		executor:  exec,
		accounts:  acctManager,
		notify:    notify,
		logger:    log.With().Str("component", "scheduler").Logger(),
	}
}

// Run drives the cycle loop until the context is cancelled. A tick that
// arrives while the previous cycle is still running is skipped, never
// stacked.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.cfg.Interval).
		Strs("symbols", s.cfg.Symbols).
		Strs("timeframes", s.cfg.Timeframes).
		Msg("Scheduler started")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Scheduler stopped")
			return
		case <-ticker.C:
			if !s.running.CompareAndSwap(false, true) {
				metrics.CyclesSkipped.Inc()
				s.logger.Warn().Msg("Previous cycle still running, tick skipped")
				continue
			}
			go func() {
				defer s.running.Store(false)
				s.RunCycle(ctx)
			}()
		}
	}
}

// RunCycle executes one full trading cycle. Exported for tests and for a
// run-once mode.
func (s *Scheduler) RunCycle(ctx context.Context) {
	start := time.Now()
	now := start.UTC()

	cycleCtx, cancel := context.WithTimeout(ctx, s.cfg.CycleDeadline)
	defer cancel()

	s.maybeSeedEquity(cycleCtx, now)
	outcome := s.runPipeline(cycleCtx, now)

	elapsed := time.Since(start)
	metrics.CycleDuration.Observe(elapsed.Seconds())
	metrics.CyclesTotal.WithLabelValues(outcome).Inc()

	evt := s.logger.Info()
	if elapsed > s.cfg.CycleDeadline {
		evt = s.logger.Warn()
	}
	evt.Str("outcome", outcome).Dur("elapsed", elapsed).Msg("Cycle finished")
}

// maybeSeedEquity fills the equity baseline from the current account set
// so the global daily-loss check holds from the first cycle, not only
// after the first execution refreshes it
func (s *Scheduler) maybeSeedEquity(ctx context.Context, now time.Time) {
	if s.accounts == nil {
		return
	}
	s.mu.Lock()
	seeded := s.equity > 0
	s.mu.Unlock()
	if seeded {
		return
	}

	eligible, err := s.accounts.ResolveEligible(ctx, now)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Equity seed failed, daily loss check deferred")
		return
	}
	var total float64
	for _, a := range eligible {
		total += a.CurrentBalance
	}

	s.mu.Lock()
	if s.equity == 0 {
		s.equity = total
	}
	s.mu.Unlock()
}

// runPipeline is the strict scan -> select -> validate -> execute chain.
// Every early return is a clean cycle end, not an error.
func (s *Scheduler) runPipeline(ctx context.Context, now time.Time) string {
	if expired, err := s.store.ExpireStaleSignals(ctx, now.Add(-s.cfg.MaxSignalAge)); err != nil {
		s.logger.Warn().Err(err).Msg("Stale signal expiry failed")
	} else if expired > 0 {
		s.logger.Debug().Int64("expired", expired).Msg("Stale signals expired")
	}

	s.scan(ctx, now)

	selected, err := s.selector.Select(ctx, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("Selection failed")
		return "error"
	}
	if selected == nil {
		return "no_selection"
	}

	snapshot, err := s.portfolioSnapshot(ctx, selected.Symbol, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("Portfolio snapshot failed")
		s.releaseSignal(ctx, selected.ID)
		return "error"
	}

	decision := s.validator.ValidateCycle(rowToSignal(selected), snapshot, now)
	if !decision.Accepted {
		metrics.RiskRejections.WithLabelValues(string(decision.Kind)).Inc()
		s.logger.Info().
			Int64("signal_id", selected.ID).
			Str("kind", string(decision.Kind)).
			Str("reason", decision.Reason).
			Msg("Cycle rejected by risk")
		s.releaseSignal(ctx, selected.ID)
		return "risk_rejected"
	}

	eligible, err := s.accounts.ResolveEligible(ctx, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("Account resolution failed")
		s.releaseSignal(ctx, selected.ID)
		return "error"
	}
	metrics.AccountsEligible.Set(float64(len(eligible)))
	if len(eligible) == 0 {
		s.logger.Info().Int64("signal_id", selected.ID).Msg("No eligible accounts, signal released")
		s.releaseSignal(ctx, selected.ID)
		return "no_accounts"
	}

	s.mu.Lock()
	s.equity = 0
	for _, a := range eligible {
		s.equity += a.CurrentBalance
	}
	s.mu.Unlock()

	summary := s.executor.ExecuteOnAll(ctx, selected, eligible, snapshot.Volatility24h)
	if summary.Succeeded > 0 {
		s.selector.MarkExecuted(now)
	}

	return "executed"
}

// scan analyzes every (symbol, timeframe) pair with a bounded worker pool
// and persists qualifying signals
func (s *Scheduler) scan(ctx context.Context, now time.Time) {
	g, scanCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxWorkers)

	for _, symbol := range s.cfg.Symbols {
		for _, timeframe := range s.cfg.Timeframes {
			symbol, timeframe := symbol, timeframe
			g.Go(func() error {
				s.analyzeOne(scanCtx, symbol, timeframe, now)
				return nil
			})
		}
	}
	g.Wait() //nolint:errcheck // analysis tasks never return errors
}

func (s *Scheduler) analyzeOne(ctx context.Context, symbol, timeframe string, now time.Time) {
	bars, err := s.bars.RecentBars(ctx, symbol, timeframe, barsLimit)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Str("timeframe", timeframe).Msg("Bar load failed")
		return
	}

	var higherBars []market.Bar
	if higher := market.HigherTimeframe(timeframe); higher != "" {
		higherBars, err = s.bars.RecentBars(ctx, symbol, higher, barsLimit)
		if err != nil {
			s.logger.Debug().Err(err).Str("symbol", symbol).Msg("Higher timeframe load failed, filter neutral")
			higherBars = nil
		}
	}

	sig, err := s.generator.Analyze(symbol, timeframe, bars, higherBars, s.tickFor(symbol), now)
	if err != nil {
		kind := "internal"
		switch {
		case errors.Is(err, signal.ErrInsufficientData):
			kind = "insufficient_data"
		case errors.Is(err, signal.ErrMalformedBars):
			kind = "malformed_bars"
		case errors.Is(err, signal.ErrDataAnomaly):
			kind = "data_anomaly"
		}
		metrics.AnalysisErrors.WithLabelValues(kind).Inc()
		s.logger.Debug().Err(err).Str("symbol", symbol).Str("timeframe", timeframe).Msg("Analysis skipped")
		return
	}
	if sig == nil {
		return
	}

	id, err := s.store.InsertSignal(ctx, &db.SignalRow{
		Symbol:     sig.Symbol,
		Timeframe:  sig.Timeframe,
		Direction:  string(sig.Direction),
		Score:      sig.Score,
		Entry:      sig.Levels.Entry,
		StopLoss:   sig.Levels.StopLoss,
		TP1:        sig.Levels.TakeProfit,
		TP2:        sig.Levels.TP2,
		TP3:        sig.Levels.TP3,
		Confluence: confluenceMap(sig.Confluence),
		Snapshot:   sig.Snapshot,
		CreatedAt:  sig.CreatedAt,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("symbol", symbol).Msg("Signal persist failed")
		return
	}

	if err := s.store.SupersedeActiveSignals(ctx, sig.Symbol, id); err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Supersede pass failed")
	}

	metrics.SignalsGenerated.WithLabelValues(string(sig.Direction)).Inc()
	metrics.SignalScore.Observe(sig.Score)

	if s.notify != nil {
		s.notify.PublishSignal(&notifier.SignalAlert{
			Symbol:     sig.Symbol,
			Timeframe:  sig.Timeframe,
			Direction:  string(sig.Direction),
			Score:      sig.Score,
			Entry:      sig.Levels.Entry,
			StopLoss:   sig.Levels.StopLoss,
			TakeProfit: sig.Levels.TakeProfit,
		})
	}
}

// portfolioSnapshot assembles the validator's view of the portfolio and
// the selected symbol's market stats
func (s *Scheduler) portfolioSnapshot(ctx context.Context, symbol string, now time.Time) (*risk.PortfolioSnapshot, error) {
	positions, err := s.store.OpenPositions(ctx)
	if err != nil {
		return nil, err
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	realized, err := s.store.RealizedPnlSince(ctx, dayStart)
	if err != nil {
		return nil, err
	}

	var lossFraction float64
	s.mu.Lock()
	equity := s.equity
	s.mu.Unlock()
	if realized < 0 && equity > 0 {
		lossFraction = -realized / equity
	}

	stats := s.stats.Get(ctx, symbol)
	if stats == nil {
		stats, err = s.bars.Stats24h(ctx, symbol, now)
		if err != nil {
			return nil, err
		}
		s.stats.Set(ctx, stats)
	}

	return &risk.PortfolioSnapshot{
		OpenPositions:     positions,
		OpenCount:         len(positions),
		DailyLossFraction: lossFraction,
		Volatility24h:     stats.Volatility,
		QuoteVolume24h:    stats.QuoteVolume,
	}, nil
}

// releaseSignal returns a consumed signal to the active pool after a
// cycle-level rejection so a later cycle may retry it
func (s *Scheduler) releaseSignal(ctx context.Context, signalID int64) {
	if err := s.store.ReleaseSignal(ctx, signalID); err != nil {
		s.logger.Warn().Err(err).Int64("signal_id", signalID).Msg("Signal release failed")
	}
}

func (s *Scheduler) tickFor(symbol string) float64 {
	if tick, ok := s.cfg.TickSizes[symbol]; ok && tick > 0 {
		return tick
	}
	return 0
}

func confluenceMap(c signal.Confluence) map[string]bool {
	return map[string]bool{
		"trend":        c.Trend,
		"smooth_trail": c.SmoothTrail,
		"liquidity":    c.Liquidity,
		"smart_money":  c.SmartMoney,
		"volume":       c.Volume,
	}
}

func rowToSignal(row *db.SignalRow) *signal.Signal {
	return &signal.Signal{
		Symbol:    row.Symbol,
		Timeframe: row.Timeframe,
		Direction: signal.Direction(row.Direction),
		Score:     row.Score,
		Levels: signal.Levels{
			Entry:      row.Entry,
			StopLoss:   row.StopLoss,
			TakeProfit: row.TP1,
			TP2:        row.TP2,
			TP3:        row.TP3,
		},
		Snapshot:  signal.Snapshot(row.Snapshot),
		CreatedAt: row.CreatedAt,
	}
}
