package signal

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/signalflow/internal/indicators"
	"github.com/ajitpratap0/signalflow/internal/market"
)

// minBars is the minimum series length for an analysis run. EMA(200) needs
// the full window to stabilize.
const minBars = 200

// GeneratorConfig tunes the filter thresholds
type GeneratorConfig struct {
	MinScore      float64 // filter 1, minimum store threshold
	MinConfluence int     // filter 2
	MinSRDistance float64 // filter 4, fraction of entry
	MinRiskReward float64 // filter 6
}

// DefaultGeneratorConfig returns the production thresholds
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		MinScore:      0.65,
		MinConfluence: 2,
		MinSRDistance: 0.01,
		MinRiskReward: 1.0,
	}
}

// Generator produces at most one signal per (symbol, timeframe) analysis run
type Generator struct {
	cfg    GeneratorConfig
	logger zerolog.Logger
}

// NewGenerator creates a signal generator
func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.MinScore == 0 {
		cfg = DefaultGeneratorConfig()
	}
	return &Generator{
		cfg:    cfg,
		logger: log.With().Str("component", "signal_generator").Logger(),
	}
}

// Analyze runs the four analyzers over the bar series and returns a signal
// when every filter passes, or (nil, nil) when the market simply does not
// qualify. Sentinel errors mark input problems: ErrInsufficientData,
// ErrMalformedBars, ErrDataAnomaly.
//
// higherBars is the next timeframe up (1h for 15m, 4h for 1h, 1d for 4h)
// and may be empty, in which case the multi-timeframe filter is neutral.
// tickSize is the exchange price increment for the symbol.
func (g *Generator) Analyze(symbol, timeframe string, bars, higherBars []market.Bar, tickSize float64, now time.Time) (*Signal, error) {
	if len(bars) < minBars {
		return nil, fmt.Errorf("%w: got %d bars for %s %s, need %d",
			ErrInsufficientData, len(bars), symbol, timeframe, minBars)
	}
	if err := market.ValidateBars(bars, timeframe, now); err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrMalformedBars, symbol, timeframe, err)
	}

	set, err := computeIndicators(bars)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrMalformedBars, symbol, timeframe, err)
	}

	if gap := maxBarGap(bars); set.atr14 > 0 && gap > 10*set.atr14 {
		return nil, fmt.Errorf("%w: %s %s gap %.6f exceeds 10x ATR %.6f",
			ErrDataAnomaly, symbol, timeframe, gap, set.atr14)
	}

	trendL, trendS := analyzeTrend(set)
	trailL, trailS := analyzeSmoothTrail(set)
	liqL, liqS := analyzeLiquidity(set)
	smartL, smartS := analyzeSmartMoney(set, bars)

	scoreLong := weightTrend*trendL + weightSmoothTrail*trailL +
		weightLiquidity*liqL + weightSmartMoney*smartL
	scoreShort := weightTrend*trendS + weightSmoothTrail*trailS +
		weightLiquidity*liqS + weightSmartMoney*smartS

	direction := DirectionLong
	score := scoreLong
	if scoreShort > scoreLong {
		direction = DirectionShort
		score = scoreShort
	}

	g.logger.Debug().
		Str("symbol", symbol).
		Str("timeframe", timeframe).
		Str("direction", string(direction)).
		Float64("score_long", scoreLong).
		Float64("score_short", scoreShort).
		Msg("Analysis scored")

	// Filter 1: minimum store threshold
	if score < g.cfg.MinScore {
		return nil, nil
	}

	// Filter 2: confluence
	confluence := buildConfluence(direction, trendL, trendS, trailL, trailS, liqL, liqS, smartL, smartS, set.volumeRatio)
	if confluence.Count() < g.cfg.MinConfluence {
		return nil, nil
	}

	// Filter 3: the higher timeframe must not contradict the direction
	if !higherTimeframeAgrees(direction, higherBars) {
		g.logger.Debug().Str("symbol", symbol).Str("timeframe", timeframe).
			Msg("Higher timeframe contradicts direction")
		return nil, nil
	}

	levels := buildLevels(direction, set.lastClose, set.support, set.resistance, set.atr14, tickSize)

	// Filter 4: reject entries glued to the structural level
	if !srDistanceOK(direction, levels.Entry, set.support, set.resistance, g.cfg.MinSRDistance) {
		return nil, nil
	}

	// Filter 5: momentum sanity. Overbought/oversold RSI or a histogram
	// fighting the direction disqualifies the setup.
	if set.rsi14 < 30 || set.rsi14 > 70 {
		return nil, nil
	}
	if direction == DirectionLong && set.macd.Histogram <= 0 {
		return nil, nil
	}
	if direction == DirectionShort && set.macd.Histogram >= 0 {
		return nil, nil
	}

	sig := &Signal{
		Symbol:     symbol,
		Timeframe:  timeframe,
		Direction:  direction,
		Score:      score,
		Levels:     levels,
		Confluence: confluence,
		Snapshot:   set.snapshot(),
		CreatedAt:  now,
	}

	// Filter 6: risk/reward
	if sig.RiskReward() < g.cfg.MinRiskReward {
		return nil, nil
	}

	if err := sig.Validate(); err != nil {
		return nil, fmt.Errorf("generated signal invalid for %s %s: %w", symbol, timeframe, err)
	}

	g.logger.Info().
		Str("symbol", symbol).
		Str("timeframe", timeframe).
		Str("direction", string(direction)).
		Float64("score", score).
		Float64("entry", levels.Entry).
		Float64("stop_loss", levels.StopLoss).
		Float64("take_profit", levels.TakeProfit).
		Int("confluence", confluence.Count()).
		Msg("Signal generated")

	return sig, nil
}

// buildConfluence sets a flag for each analyzer whose dominant side matches
// the chosen direction with meaningful margin. The volume flag fires on
// expansion regardless of side.
func buildConfluence(direction Direction, trendL, trendS, trailL, trailS, liqL, liqS, smartL, smartS, volumeRatio float64) Confluence {
	agrees := func(l, s float64) bool {
		if direction == DirectionLong {
			return l > s && l >= 0.5
		}
		return s > l && s >= 0.5
	}
	return Confluence{
		Trend:       agrees(trendL, trendS),
		SmoothTrail: agrees(trailL, trailS),
		Liquidity:   agrees(liqL, liqS),
		SmartMoney:  agrees(smartL, smartS),
		Volume:      volumeRatio >= 1.2,
	}
}

// higherTimeframeAgrees checks that the higher-timeframe trend does not
// contradict the trade direction. Neutral or missing higher data passes.
func higherTimeframeAgrees(direction Direction, higherBars []market.Bar) bool {
	if len(higherBars) < 60 {
		return true
	}

	closes := market.Closes(higherBars)
	ema20, err1 := indicators.EMA(closes, 20)
	ema50, err2 := indicators.EMA(closes, 50)
	if err1 != nil || err2 != nil {
		return true
	}

	if ema20 == ema50 {
		return true
	}
	if direction == DirectionLong {
		return ema20 > ema50
	}
	return ema20 < ema50
}

// srDistanceOK enforces the minimum gap between entry and the structural
// level behind it
func srDistanceOK(direction Direction, entry, support, resistance, minDist float64) bool {
	if entry <= 0 {
		return false
	}
	if direction == DirectionLong {
		if support <= 0 || support >= entry {
			return true
		}
		return (entry-support)/entry >= minDist
	}
	if resistance <= 0 || resistance <= entry {
		return true
	}
	return (resistance-entry)/entry >= minDist
}

// maxBarGap returns the largest absolute close-to-open jump between
// consecutive bars
func maxBarGap(bars []market.Bar) float64 {
	var maxGap float64
	for i := 1; i < len(bars); i++ {
		gap := math.Abs(bars[i].Open - bars[i-1].Close)
		if gap > maxGap {
			maxGap = gap
		}
	}
	return maxGap
}
