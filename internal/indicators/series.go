// Package indicators provides the technical indicator primitives used by the
// signal generator. RSI, EMA, MACD and Bollinger Bands are computed through
// cinar/indicator; ADX, ATR, Stochastic and the volume indicators are
// implemented here with Wilder's smoothing semantics.
package indicators

import (
	"fmt"
	"math"
)

// sliceToChan converts a price slice to the channel form cinar/indicator consumes
func sliceToChan(values []float64) chan float64 {
	c := make(chan float64, len(values))
	for _, v := range values {
		c <- v
	}
	close(c)
	return c
}

// collect drains an indicator output channel into a slice
func collect(c <-chan float64) []float64 {
	var out []float64
	for v := range c {
		out = append(out, v)
	}
	return out
}

// SMA calculates the simple moving average over the most recent period values
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period)
}

// StdDev calculates the sample standard deviation of values
func StdDev(values []float64) float64 {
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

// smoothWilder applies Wilder's smoothing: SMA seed over the first period
// values, then s[i] = (s[i-1]*(period-1) + x[i]) / period
func smoothWilder(data []float64, period int) []float64 {
	n := len(data)
	result := make([]float64, n)
	if n < period {
		return result
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += data[i]
	}
	result[period-1] = sum / float64(period)

	for i := period; i < n; i++ {
		result[i] = (result[i-1]*float64(period-1) + data[i]) / float64(period)
	}

	return result
}

// validateOHLC checks that the high/low/close slices agree in length
func validateOHLC(high, low, close []float64, minLen int) error {
	if len(high) != len(low) || len(high) != len(close) {
		return fmt.Errorf("high, low, and close arrays must have the same length")
	}
	if len(close) < minLen {
		return fmt.Errorf("insufficient data: need at least %d bars, got %d", minLen, len(close))
	}
	return nil
}
