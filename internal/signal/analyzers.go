package signal

import (
	"fmt"

	"github.com/ajitpratap0/signalflow/internal/indicators"
	"github.com/ajitpratap0/signalflow/internal/market"
)

// Analyzer weights. They sum to 1.0; the weighted long/short sums are the
// signal score.
const (
	weightTrend       = 0.30
	weightSmoothTrail = 0.25
	weightLiquidity   = 0.20
	weightSmartMoney  = 0.25
)

// indicatorSet is the per-analysis indicator snapshot shared by all four
// analyzers. Computed once per (symbol, timeframe) pair.
type indicatorSet struct {
	closes  []float64
	highs   []float64
	lows    []float64
	volumes []float64

	rsi14 float64
	rsi21 float64

	ema12  float64
	ema20  float64
	ema26  float64
	ema50  float64
	ema200 float64

	macd *indicators.MACDResult
	bb   *indicators.BollingerResult

	adx     float64
	plusDI  float64
	minusDI float64

	stoch *indicators.StochasticResult

	atr14 float64

	obv         []float64
	vwap        float64
	volumeRatio float64

	support    float64
	resistance float64

	lastClose float64
}

// computeIndicators evaluates every indicator primitive the analyzers need.
// Any individual failure aborts the whole analysis as malformed input.
func computeIndicators(bars []market.Bar) (*indicatorSet, error) {
	set := &indicatorSet{
		closes:  market.Closes(bars),
		highs:   market.Highs(bars),
		lows:    market.Lows(bars),
		volumes: market.Volumes(bars),
	}
	set.lastClose = set.closes[len(set.closes)-1]

	var err error
	if set.rsi14, err = indicators.RSI(set.closes, 14); err != nil {
		return nil, fmt.Errorf("rsi14: %w", err)
	}
	if set.rsi21, err = indicators.RSI(set.closes, 21); err != nil {
		return nil, fmt.Errorf("rsi21: %w", err)
	}

	for _, p := range []struct {
		period int
		dst    *float64
	}{
		{12, &set.ema12}, {20, &set.ema20}, {26, &set.ema26}, {50, &set.ema50}, {200, &set.ema200},
	} {
		if *p.dst, err = indicators.EMA(set.closes, p.period); err != nil {
			return nil, fmt.Errorf("ema%d: %w", p.period, err)
		}
	}

	if set.macd, err = indicators.MACD(set.closes, 12, 26, 9); err != nil {
		return nil, fmt.Errorf("macd: %w", err)
	}
	if set.bb, err = indicators.Bollinger(set.closes, 20); err != nil {
		return nil, fmt.Errorf("bollinger: %w", err)
	}
	if set.adx, err = indicators.ADX(set.highs, set.lows, set.closes, 14); err != nil {
		return nil, fmt.Errorf("adx: %w", err)
	}
	if set.plusDI, set.minusDI, err = indicators.DirectionalIndex(set.highs, set.lows, set.closes, 14); err != nil {
		return nil, fmt.Errorf("di: %w", err)
	}
	if set.stoch, err = indicators.Stochastic(set.highs, set.lows, set.closes, 14, 3, 3); err != nil {
		return nil, fmt.Errorf("stochastic: %w", err)
	}
	if set.atr14, err = indicators.ATR(set.highs, set.lows, set.closes, 14); err != nil {
		return nil, fmt.Errorf("atr: %w", err)
	}
	if set.obv, err = indicators.OBV(set.closes, set.volumes); err != nil {
		return nil, fmt.Errorf("obv: %w", err)
	}

	// VWAP over the last 20 bars only; a session-length anchor is what the
	// smart-money heuristic expects
	n := len(bars)
	vwapStart := n - 20
	if vwapStart < 0 {
		vwapStart = 0
	}
	if set.vwap, err = indicators.VWAP(
		set.highs[vwapStart:], set.lows[vwapStart:], set.closes[vwapStart:], set.volumes[vwapStart:],
	); err != nil {
		return nil, fmt.Errorf("vwap: %w", err)
	}

	set.volumeRatio = indicators.VolumeRatio(set.volumes, 20)
	set.support, set.resistance = FindSupportResistance(bars)

	return set, nil
}

// snapshot flattens the indicator set into the opaque context blob stored
// on the signal
func (set *indicatorSet) snapshot() Snapshot {
	return Snapshot{
		"rsi14":        set.rsi14,
		"rsi21":        set.rsi21,
		"ema20":        set.ema20,
		"ema50":        set.ema50,
		"ema200":       set.ema200,
		"macd":         set.macd.MACD,
		"macd_hist":    set.macd.Histogram,
		"bb_width":     set.bb.Width,
		"adx":          set.adx,
		"stoch_k":      set.stoch.K,
		"stoch_d":      set.stoch.D,
		"atr14":        set.atr14,
		"vwap":         set.vwap,
		"volume_ratio": set.volumeRatio,
		"support":      set.support,
		"resistance":   set.resistance,
	}
}

// analyzeTrend scores direction and strength of price action against the
// EMA stack, ADX and MACD alignment
func analyzeTrend(set *indicatorSet) (long, short float64) {
	price := set.lastClose

	// EMA stack alignment: each layer above/below adds conviction
	if price > set.ema20 {
		long += 0.25
	} else {
		short += 0.25
	}
	if set.ema20 > set.ema50 {
		long += 0.20
	} else if set.ema20 < set.ema50 {
		short += 0.20
	}
	if price > set.ema200 {
		long += 0.15
	} else {
		short += 0.15
	}

	// ADX measures strength only; +DI/-DI resolve which side it backs
	if set.adx >= 25 {
		if set.plusDI > set.minusDI {
			long += 0.20
		} else if set.minusDI > set.plusDI {
			short += 0.20
		}
	}

	// MACD histogram sign
	if set.macd.Histogram > 0 {
		long += 0.20
	} else if set.macd.Histogram < 0 {
		short += 0.20
	}

	return clamp(long, 0, 1), clamp(short, 0, 1)
}

// analyzeSmoothTrail scores proximity to structural support (long) or
// resistance (short) with bounce confirmation
func analyzeSmoothTrail(set *indicatorSet) (long, short float64) {
	price := set.lastClose
	if price <= 0 {
		return 0, 0
	}

	n := len(set.closes)
	bounceUp := n >= 2 && set.closes[n-1] > set.closes[n-2]
	bounceDown := n >= 2 && set.closes[n-1] < set.closes[n-2]

	if set.support > 0 && price > set.support {
		dist := (price - set.support) / price
		// Peak interest between 1% and 3% above support; glued or far
		// away scores low
		switch {
		case dist >= 0.01 && dist <= 0.03:
			long = 0.8
		case dist > 0.03 && dist <= 0.06:
			long = 0.5
		case dist < 0.01:
			long = 0.2
		default:
			long = 0.3
		}
		if bounceUp {
			long = clamp(long+0.2, 0, 1)
		}
	}

	if set.resistance > 0 && price < set.resistance {
		dist := (set.resistance - price) / price
		switch {
		case dist >= 0.01 && dist <= 0.03:
			short = 0.8
		case dist > 0.03 && dist <= 0.06:
			short = 0.5
		case dist < 0.01:
			short = 0.2
		default:
			short = 0.3
		}
		if bounceDown {
			short = clamp(short+0.2, 0, 1)
		}
	}

	return long, short
}

// analyzeLiquidity scores volume expansion relative to the 20-bar mean and
// OBV alignment. Zero-range or zero-volume series score (0,0).
func analyzeLiquidity(set *indicatorSet) (long, short float64) {
	if set.volumeRatio == 0 || set.atr14 == 0 {
		return 0, 0
	}

	var base float64
	switch {
	case set.volumeRatio >= 2.0:
		base = 1.0
	case set.volumeRatio >= 1.5:
		base = 0.8
	case set.volumeRatio >= 1.2:
		base = 0.6
	case set.volumeRatio >= 0.8:
		base = 0.4
	default:
		base = 0.2
	}

	// OBV slope decides which side the volume backs
	n := len(set.obv)
	obvRising := n >= 5 && set.obv[n-1] > set.obv[n-5]
	obvFalling := n >= 5 && set.obv[n-1] < set.obv[n-5]

	switch {
	case obvRising:
		long = base
		short = base * 0.3
	case obvFalling:
		short = base
		long = base * 0.3
	default:
		long = base * 0.5
		short = base * 0.5
	}

	return clamp(long, 0, 1), clamp(short, 0, 1)
}

// analyzeSmartMoney scores VWAP position, volume delta sign and an
// order-block heuristic (a recent wide-range high-volume bar marking
// institutional interest in the trade direction)
func analyzeSmartMoney(set *indicatorSet, bars []market.Bar) (long, short float64) {
	price := set.lastClose

	// VWAP position
	if set.vwap > 0 {
		if price > set.vwap {
			long += 0.35
		} else if price < set.vwap {
			short += 0.35
		}
	}

	// Volume delta over the last 10 bars: up-bar volume minus down-bar volume
	n := len(bars)
	deltaStart := n - 10
	if deltaStart < 1 {
		deltaStart = 1
	}
	var delta float64
	for i := deltaStart; i < n; i++ {
		if bars[i].Close > bars[i].Open {
			delta += bars[i].Volume
		} else if bars[i].Close < bars[i].Open {
			delta -= bars[i].Volume
		}
	}
	if delta > 0 {
		long += 0.35
	} else if delta < 0 {
		short += 0.35
	}

	// Order-block heuristic: last 20 bars contain a bar with range > 2x ATR
	// and volume > 1.5x the 20-bar mean; its direction marks the block
	obStart := n - 20
	if obStart < 0 {
		obStart = 0
	}
	meanVol := indicators.SMA(set.volumes, 20)
	for i := obStart; i < n; i++ {
		barRange := bars[i].High - bars[i].Low
		if set.atr14 > 0 && barRange > 2*set.atr14 && meanVol > 0 && bars[i].Volume > 1.5*meanVol {
			if bars[i].Close > bars[i].Open {
				long += 0.30
			} else if bars[i].Close < bars[i].Open {
				short += 0.30
			}
			break
		}
	}

	return clamp(long, 0, 1), clamp(short, 0, 1)
}
