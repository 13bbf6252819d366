package signal

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ajitpratap0/signalflow/internal/market"
)

// seriesBars builds a bar series from closes, ending at end. Each bar opens
// at the previous close with a 2-point wick on both sides.
func seriesBars(closes []float64, timeframe string, end time.Time) []market.Bar {
	dur, err := market.TimeframeDuration(timeframe)
	if err != nil {
		panic(err)
	}

	bars := make([]market.Bar, len(closes))
	start := end.Add(-time.Duration(len(closes)) * dur)
	for i, c := range closes {
		o := c
		if i > 0 {
			o = closes[i-1]
		}
		bars[i] = market.Bar{
			Symbol:    "BTCUSDT",
			Timeframe: timeframe,
			OpenTime:  start.Add(time.Duration(i) * dur),
			Open:      o,
			High:      math.Max(o, c) + 2,
			Low:       math.Min(o, c) - 2,
			Close:     c,
			Volume:    100,
		}
	}
	return bars
}

// flatBars builds zero-range candles: open, high, low and close all equal
func flatBars(n int, price float64, timeframe string, end time.Time) []market.Bar {
	dur, _ := market.TimeframeDuration(timeframe)
	bars := make([]market.Bar, n)
	start := end.Add(-time.Duration(n) * dur)
	for i := range bars {
		bars[i] = market.Bar{
			Symbol:    "BTCUSDT",
			Timeframe: timeframe,
			OpenTime:  start.Add(time.Duration(i) * dur),
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    100,
		}
	}
	return bars
}

// noisyUptrend drifts upward with alternating pullbacks so momentum stays
// off the extremes
func noisyUptrend(n int) []float64 {
	closes := make([]float64, n)
	price := 100.0
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			price += 2.0
		} else {
			price -= 1.0
		}
		closes[i] = price
	}
	return closes
}

func TestAnalyzeInsufficientData(t *testing.T) {
	now := time.Now().UTC()
	g := NewGenerator(DefaultGeneratorConfig())

	bars := seriesBars(noisyUptrend(199), "1h", now)
	sig, err := g.Analyze("BTCUSDT", "1h", bars, nil, 0.01, now)

	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Expected ErrInsufficientData, got %v", err)
	}
	if sig != nil {
		t.Error("Expected no signal with insufficient data")
	}
}

func TestAnalyzeIdenticalBars(t *testing.T) {
	now := time.Now().UTC()
	g := NewGenerator(DefaultGeneratorConfig())

	bars := flatBars(200, 100.0, "1h", now)
	sig, err := g.Analyze("BTCUSDT", "1h", bars, nil, 0.01, now)

	if err != nil {
		t.Fatalf("Flat series must not error: %v", err)
	}
	if sig != nil {
		t.Errorf("Expected no signal from a flat series, got %+v", sig)
	}
}

func TestAnalyzeMalformedBars(t *testing.T) {
	now := time.Now().UTC()
	g := NewGenerator(DefaultGeneratorConfig())

	tests := []struct {
		name   string
		mutate func(bars []market.Bar)
	}{
		{
			name: "duplicate open time",
			mutate: func(bars []market.Bar) {
				bars[50].OpenTime = bars[49].OpenTime
			},
		},
		{
			name: "descending open times",
			mutate: func(bars []market.Bar) {
				bars[50].OpenTime = bars[60].OpenTime.Add(time.Hour)
			},
		},
		{
			name: "mixed timeframe",
			mutate: func(bars []market.Bar) {
				bars[10].Timeframe = "15m"
			},
		},
		{
			name: "bar from the future",
			mutate: func(bars []market.Bar) {
				bars[len(bars)-1].OpenTime = now.Add(48 * time.Hour)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bars := seriesBars(noisyUptrend(200), "1h", now)
			tt.mutate(bars)

			sig, err := g.Analyze("BTCUSDT", "1h", bars, nil, 0.01, now)
			if !errors.Is(err, ErrMalformedBars) {
				t.Errorf("Expected ErrMalformedBars, got %v", err)
			}
			if sig != nil {
				t.Error("Expected no signal from malformed bars")
			}
		})
	}
}

func TestAnalyzeDataAnomaly(t *testing.T) {
	now := time.Now().UTC()
	g := NewGenerator(DefaultGeneratorConfig())

	// Steady series with one enormous open gap early on. Wilder smoothing
	// absorbs the spike long before the last bar, so the final ATR stays
	// near the normal bar range and the gap trips the 10x check.
	bars := flatBars(200, 100.0, "1h", now)
	for i := range bars {
		bars[i].High += 2
		bars[i].Low -= 2
	}
	bars[30].Open = 600
	bars[30].High = 602
	bars[30].Low = 98

	sig, err := g.Analyze("BTCUSDT", "1h", bars, nil, 0.01, now)
	if !errors.Is(err, ErrDataAnomaly) {
		t.Errorf("Expected ErrDataAnomaly, got %v", err)
	}
	if sig != nil {
		t.Error("Expected no signal from anomalous bars")
	}
}

func TestAnalyzeOutputInvariants(t *testing.T) {
	now := time.Now().UTC()
	cfg := DefaultGeneratorConfig()
	g := NewGenerator(cfg)

	bars := seriesBars(noisyUptrend(200), "1h", now)
	sig, err := g.Analyze("BTCUSDT", "1h", bars, nil, 0.01, now)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if sig == nil {
		// The market simply did not qualify; nothing further to check
		return
	}

	if err := sig.Validate(); err != nil {
		t.Errorf("Generated signal fails validation: %v", err)
	}
	if sig.Score < cfg.MinScore {
		t.Errorf("Signal score %.4f below threshold %.4f", sig.Score, cfg.MinScore)
	}
	if sig.Confluence.Count() < cfg.MinConfluence {
		t.Errorf("Signal confluence %d below minimum %d", sig.Confluence.Count(), cfg.MinConfluence)
	}
	if rr := sig.RiskReward(); rr < cfg.MinRiskReward {
		t.Errorf("Risk/reward %.4f below minimum %.4f", rr, cfg.MinRiskReward)
	}
	if rsi := sig.Snapshot["rsi14"]; rsi < 30 || rsi > 70 {
		t.Errorf("Signal passed with RSI %.2f outside [30, 70]", rsi)
	}
	if sig.Symbol != "BTCUSDT" || sig.Timeframe != "1h" {
		t.Errorf("Signal identity wrong: %s %s", sig.Symbol, sig.Timeframe)
	}
}

func TestSRDistanceOK(t *testing.T) {
	tests := []struct {
		name       string
		direction  Direction
		entry      float64
		support    float64
		resistance float64
		want       bool
	}{
		{"long with no support found", DirectionLong, 100, 0, 120, true},
		{"long snapped onto support", DirectionLong, 100, 100, 120, true},
		{"long support above entry", DirectionLong, 100, 101, 120, true},
		{"long support too close", DirectionLong, 100, 99.5, 120, false},
		{"long support at threshold", DirectionLong, 100, 99, 120, true},
		{"long support well below", DirectionLong, 100, 95, 120, true},
		{"short with no resistance found", DirectionShort, 100, 80, 0, true},
		{"short resistance too close", DirectionShort, 100, 80, 100.5, false},
		{"short resistance at threshold", DirectionShort, 100, 80, 101, true},
		{"short resistance below entry", DirectionShort, 100, 80, 99, true},
		{"zero entry rejected", DirectionLong, 0, 95, 120, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := srDistanceOK(tt.direction, tt.entry, tt.support, tt.resistance, 0.01)
			if got != tt.want {
				t.Errorf("srDistanceOK = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHigherTimeframeAgrees(t *testing.T) {
	now := time.Now().UTC()

	if !higherTimeframeAgrees(DirectionLong, nil) {
		t.Error("Missing higher bars must be neutral")
	}
	if !higherTimeframeAgrees(DirectionShort, seriesBars(noisyUptrend(30), "4h", now)) {
		t.Error("Fewer than 60 higher bars must be neutral")
	}

	up := make([]float64, 80)
	for i := range up {
		up[i] = 100.0 + float64(i)*2.0
	}
	upBars := seriesBars(up, "4h", now)

	if !higherTimeframeAgrees(DirectionLong, upBars) {
		t.Error("Higher uptrend must agree with LONG")
	}
	if higherTimeframeAgrees(DirectionShort, upBars) {
		t.Error("Higher uptrend must contradict SHORT")
	}
}

func TestBuildConfluence(t *testing.T) {
	c := buildConfluence(DirectionLong,
		0.8, 0.2, // trend agrees
		0.4, 0.1, // trail dominant but below 0.5
		0.2, 0.7, // liquidity backs the other side
		0.6, 0.6, // smart money tied
		1.3) // volume expanding

	if !c.Trend {
		t.Error("Expected trend flag set")
	}
	if c.SmoothTrail {
		t.Error("Trail below 0.5 must not count")
	}
	if c.Liquidity {
		t.Error("Liquidity backing the other side must not count")
	}
	if c.SmartMoney {
		t.Error("A tie must not count")
	}
	if !c.Volume {
		t.Error("Expected volume flag at ratio 1.3")
	}
	if c.Count() != 2 {
		t.Errorf("Expected confluence count 2, got %d", c.Count())
	}
}

func TestMaxBarGap(t *testing.T) {
	now := time.Now().UTC()
	bars := seriesBars([]float64{100, 101, 102, 103}, "1h", now)
	if gap := maxBarGap(bars); gap != 0 {
		t.Errorf("Contiguous bars must have zero gap, got %.4f", gap)
	}

	bars[2].Open = 150
	if gap := maxBarGap(bars); math.Abs(gap-49) > 1e-9 {
		t.Errorf("Expected gap 49, got %.4f", gap)
	}
}
