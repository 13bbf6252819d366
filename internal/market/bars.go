// Package market provides read access to stored OHLCV data and a small
// Redis-backed cache for per-symbol market statistics.
package market

import (
	"fmt"
	"time"
)

// Bar is one closed OHLCV candle. Timestamps are UTC and aligned to
// timeframe boundaries; bars are immutable once closed.
type Bar struct {
	Symbol    string
	Timeframe string
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// TimeframeDuration maps a timeframe label to its bar duration
func TimeframeDuration(timeframe string) (time.Duration, error) {
	switch timeframe {
	case "15m":
		return 15 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown timeframe: %s", timeframe)
	}
}

// HigherTimeframe returns the next timeframe up, used for multi-timeframe
// agreement checks (1h confirms against 4h, 4h against 1d)
func HigherTimeframe(timeframe string) string {
	switch timeframe {
	case "15m":
		return "1h"
	case "1h":
		return "4h"
	case "4h":
		return "1d"
	default:
		return ""
	}
}

// Closes extracts the close series from bars
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Highs extracts the high series from bars
func Highs(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High
	}
	return out
}

// Lows extracts the low series from bars
func Lows(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Low
	}
	return out
}

// Volumes extracts the volume series from bars
func Volumes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}

// ValidateBars checks bar-series preconditions: ascending open times, no
// duplicates, consistent timeframe, and no bars from the future beyond
// 2x the timeframe (clock skew guard)
func ValidateBars(bars []Bar, timeframe string, now time.Time) error {
	dur, err := TimeframeDuration(timeframe)
	if err != nil {
		return err
	}

	for i, b := range bars {
		if b.Timeframe != timeframe {
			return fmt.Errorf("bar %d has timeframe %s, want %s", i, b.Timeframe, timeframe)
		}
		if i > 0 && !bars[i-1].OpenTime.Before(b.OpenTime) {
			return fmt.Errorf("bars not strictly ascending at index %d", i)
		}
		if b.OpenTime.After(now.Add(2 * dur)) {
			return fmt.Errorf("bar %d open time %s is in the future", i, b.OpenTime)
		}
		if b.High < b.Low {
			return fmt.Errorf("bar %d has high < low", i)
		}
	}

	return nil
}
