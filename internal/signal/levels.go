package signal

import (
	"math"

	"github.com/ajitpratap0/signalflow/internal/market"
)

// srLookback is the pivot window used for structural support/resistance
const srLookback = 50

// FindSupportResistance scans the recent window for the structural support
// below and resistance above the last close, using swing pivots. Falls back
// to the window low/high when no pivot qualifies.
func FindSupportResistance(bars []market.Bar) (support, resistance float64) {
	if len(bars) == 0 {
		return 0, 0
	}

	start := len(bars) - srLookback
	if start < 0 {
		start = 0
	}
	window := bars[start:]
	lastClose := bars[len(bars)-1].Close

	support = window[0].Low
	resistance = window[0].High
	for _, b := range window {
		if b.Low < support {
			support = b.Low
		}
		if b.High > resistance {
			resistance = b.High
		}
	}

	// Prefer the nearest swing pivot on the correct side of price
	for i := 2; i < len(window)-2; i++ {
		isSwingLow := window[i].Low < window[i-1].Low && window[i].Low < window[i-2].Low &&
			window[i].Low < window[i+1].Low && window[i].Low < window[i+2].Low
		if isSwingLow && window[i].Low < lastClose && window[i].Low > support {
			support = window[i].Low
		}

		isSwingHigh := window[i].High > window[i-1].High && window[i].High > window[i-2].High &&
			window[i].High > window[i+1].High && window[i].High > window[i+2].High
		if isSwingHigh && window[i].High > lastClose && window[i].High < resistance {
			resistance = window[i].High
		}
	}

	return support, resistance
}

// RoundToTick rounds a price down to the exchange tick size
func RoundToTick(price, tickSize float64) float64 {
	if tickSize <= 0 {
		return price
	}
	return math.Floor(price/tickSize) * tickSize
}

// buildLevels constructs entry, stop and target levels for a signal.
// The stop distance is derived from ATR and clamped to [2%, 3%]; the stop
// is additionally pushed past the structural level so it does not sit
// inside the zone it protects.
func buildLevels(direction Direction, lastClose, support, resistance, atr, tickSize float64) Levels {
	entry := lastClose

	// Snap entry to a structural level within 0.5% in the trade direction
	if direction == DirectionLong && support > 0 {
		if dist := (lastClose - support) / lastClose; dist > 0 && dist < 0.005 {
			entry = support
		}
	}
	if direction == DirectionShort && resistance > 0 {
		if dist := (resistance - lastClose) / lastClose; dist > 0 && dist < 0.005 {
			entry = resistance
		}
	}

	kSL := 0.02
	if entry > 0 && atr > 0 {
		kSL = clamp(1.5*atr/entry, 0.02, 0.03)
	}

	var l Levels
	if direction == DirectionLong {
		stop := entry * (1 - kSL)
		if support > 0 {
			stop = math.Min(stop, support*0.995)
		}
		l = Levels{
			Entry:      entry,
			StopLoss:   stop,
			TakeProfit: entry * 1.05,
			TP2:        entry * 1.10,
			TP3:        entry * 1.15,
		}
	} else {
		stop := entry * (1 + kSL)
		if resistance > 0 {
			stop = math.Max(stop, resistance*1.005)
		}
		l = Levels{
			Entry:      entry,
			StopLoss:   stop,
			TakeProfit: entry * 0.95,
			TP2:        entry * 0.90,
			TP3:        entry * 0.85,
		}
	}

	l.Entry = RoundToTick(l.Entry, tickSize)
	l.StopLoss = RoundToTick(l.StopLoss, tickSize)
	l.TakeProfit = RoundToTick(l.TakeProfit, tickSize)
	l.TP2 = RoundToTick(l.TP2, tickSize)
	l.TP3 = RoundToTick(l.TP3, tickSize)

	return l
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
