package indicators

import (
	"math"
	"testing"
)

// trendingOHLC builds a steady uptrend with a fixed 4-point bar range
func trendingOHLC(count int, step float64) (high, low, close []float64) {
	high = make([]float64, count)
	low = make([]float64, count)
	close = make([]float64, count)
	for i := 0; i < count; i++ {
		base := 100.0 + float64(i)*step
		high[i] = base + 2.0
		low[i] = base - 2.0
		close[i] = base
	}
	return high, low, close
}

func TestSMA(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		period int
		want   float64
	}{
		{"simple average", []float64{1, 2, 3, 4, 5}, 5, 3.0},
		{"window over tail", []float64{10, 20, 1, 2, 3}, 3, 2.0},
		{"insufficient data", []float64{1, 2}, 5, 0},
		{"zero period", []float64{1, 2, 3}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SMA(tt.values, tt.period)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("SMA(%v, %d) = %.4f, want %.4f", tt.values, tt.period, got, tt.want)
			}
		})
	}
}

func TestStdDev(t *testing.T) {
	// Sample stddev of {2,4,4,4,5,5,7,9} is sqrt(32/7)
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	want := math.Sqrt(32.0 / 7.0)

	got := StdDev(values)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("StdDev = %.6f, want %.6f", got, want)
	}

	if StdDev([]float64{5}) != 0 {
		t.Error("Expected 0 stddev for a single value")
	}
	if StdDev([]float64{3, 3, 3, 3}) != 0 {
		t.Error("Expected 0 stddev for identical values")
	}
}

func TestSmoothWilder(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	period := 5

	result := smoothWilder(data, period)

	if len(result) != len(data) {
		t.Fatalf("Expected result length %d, got %d", len(data), len(result))
	}

	// Values before the seed are zero
	for i := 0; i < period-1; i++ {
		if result[i] != 0 {
			t.Errorf("Expected result[%d] = 0, got %.2f", i, result[i])
		}
	}

	// The seed is a simple average of the first period values
	if result[period-1] != 3.0 {
		t.Errorf("Expected seed value 3.0, got %.2f", result[period-1])
	}

	// Wilder recursion: s[5] = (3*4 + 6) / 5 = 3.6
	if math.Abs(result[period]-3.6) > 1e-9 {
		t.Errorf("Expected smoothed value 3.6, got %.4f", result[period])
	}
}

func TestSmoothWilderInsufficientData(t *testing.T) {
	result := smoothWilder([]float64{1, 2, 3}, 5)
	for i, v := range result {
		if v != 0 {
			t.Errorf("Expected result[%d] = 0 for insufficient data, got %.2f", i, v)
		}
	}
}

func TestRSI(t *testing.T) {
	up := make([]float64, 30)
	down := make([]float64, 30)
	for i := range up {
		up[i] = 100.0 + float64(i)*2.0
		down[i] = 160.0 - float64(i)*2.0
	}

	tests := []struct {
		name      string
		prices    []float64
		period    int
		wantError bool
		check     func(t *testing.T, v float64)
	}{
		{
			name:   "uptrend pushes RSI high",
			prices: up,
			period: 14,
			check: func(t *testing.T, v float64) {
				if v < 70 {
					t.Errorf("Expected RSI > 70 for a pure uptrend, got %.2f", v)
				}
			},
		},
		{
			name:   "downtrend pushes RSI low",
			prices: down,
			period: 14,
			check: func(t *testing.T, v float64) {
				if v > 30 {
					t.Errorf("Expected RSI < 30 for a pure downtrend, got %.2f", v)
				}
			},
		},
		{
			name:      "period exceeds data",
			prices:    up[:10],
			period:    14,
			wantError: true,
		},
		{
			name:      "zero period",
			prices:    up,
			period:    0,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RSI(tt.prices, tt.period)
			if tt.wantError {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got < 0 || got > 100 {
				t.Errorf("RSI %.2f out of range [0, 100]", got)
			}
			if tt.check != nil {
				tt.check(t, got)
			}
		})
	}
}

func TestEMAConstantSeries(t *testing.T) {
	prices := make([]float64, 50)
	for i := range prices {
		prices[i] = 42.5
	}

	got, err := EMA(prices, 20)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if math.Abs(got-42.5) > 1e-9 {
		t.Errorf("EMA of a constant series = %.4f, want 42.5", got)
	}
}

func TestEMATracksTrend(t *testing.T) {
	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 100.0 + float64(i)
	}

	fast, err := EMA(prices, 12)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	slow, err := EMA(prices, 26)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// In an uptrend the shorter EMA sits closer to the latest price
	if fast <= slow {
		t.Errorf("Expected fast EMA (%.2f) above slow EMA (%.2f) in an uptrend", fast, slow)
	}

	if _, err := EMA(prices[:5], 12); err == nil {
		t.Error("Expected error for insufficient data")
	}
}

func TestMACD(t *testing.T) {
	flat := make([]float64, 60)
	for i := range flat {
		flat[i] = 100.0
	}

	result, err := MACD(flat, 12, 26, 9)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if math.Abs(result.Histogram) > 1e-9 {
		t.Errorf("Expected zero histogram on a flat series, got %.6f", result.Histogram)
	}

	rising := make([]float64, 60)
	for i := range rising {
		rising[i] = 100.0 + float64(i)*1.5
	}
	result, err = MACD(rising, 12, 26, 9)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.MACD <= 0 {
		t.Errorf("Expected positive MACD line in an uptrend, got %.4f", result.MACD)
	}

	if _, err := MACD(rising, 26, 12, 9); err == nil {
		t.Error("Expected error when fast period >= slow period")
	}
	if _, err := MACD(rising[:20], 12, 26, 9); err == nil {
		t.Error("Expected error for insufficient data")
	}
}

func TestBollinger(t *testing.T) {
	flat := make([]float64, 40)
	for i := range flat {
		flat[i] = 200.0
	}

	result, err := Bollinger(flat, 20)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if math.Abs(result.Middle-200.0) > 1e-9 {
		t.Errorf("Expected middle band 200.0, got %.4f", result.Middle)
	}
	if result.Width > 1e-9 {
		t.Errorf("Expected zero band width on a flat series, got %.6f", result.Width)
	}

	noisy := make([]float64, 40)
	for i := range noisy {
		noisy[i] = 200.0
		if i%2 == 0 {
			noisy[i] = 210.0
		}
	}
	result, err = Bollinger(noisy, 20)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Upper <= result.Middle || result.Middle <= result.Lower {
		t.Errorf("Expected upper > middle > lower, got %.2f / %.2f / %.2f",
			result.Upper, result.Middle, result.Lower)
	}
	if result.Width <= 0 {
		t.Errorf("Expected positive band width, got %.6f", result.Width)
	}

	if _, err := Bollinger(flat[:10], 20); err == nil {
		t.Error("Expected error for insufficient data")
	}
}

func TestATRConstantRange(t *testing.T) {
	// Range is 4 points on every bar and gaps never exceed it, so the true
	// range is constant and Wilder smoothing must return it exactly.
	high, low, close := trendingOHLC(50, 0.5)

	got, err := ATR(high, low, close, 14)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if math.Abs(got-4.0) > 1e-9 {
		t.Errorf("ATR = %.4f, want 4.0", got)
	}
}

func TestATRErrors(t *testing.T) {
	high, low, close := trendingOHLC(10, 0.5)

	if _, err := ATR(high, low, close, 14); err == nil {
		t.Error("Expected error for insufficient data")
	}
	if _, err := ATR(high[:5], low, close, 3); err == nil {
		t.Error("Expected error for mismatched lengths")
	}
	if _, err := ATR(high, low, close, 0); err == nil {
		t.Error("Expected error for zero period")
	}
}

func TestADX(t *testing.T) {
	high, low, close := trendingOHLC(60, 2.0)

	got, err := ADX(high, low, close, 14)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got < 0 || got > 100 {
		t.Errorf("ADX %.2f out of range [0, 100]", got)
	}
	// A clean directional trend reads as strong
	if got < 25 {
		t.Errorf("Expected ADX >= 25 for a steady trend, got %.2f", got)
	}

	if _, err := ADX(high[:10], low[:10], close[:10], 14); err == nil {
		t.Error("Expected error for insufficient data")
	}
}

func TestDirectionalIndex(t *testing.T) {
	high, low, close := trendingOHLC(60, 2.0)

	plusDI, minusDI, err := DirectionalIndex(high, low, close, 14)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if plusDI <= minusDI {
		t.Errorf("Expected +DI (%.2f) above -DI (%.2f) in an uptrend", plusDI, minusDI)
	}

	// Mirror the series for a downtrend
	dHigh := make([]float64, len(high))
	dLow := make([]float64, len(low))
	dClose := make([]float64, len(close))
	for i := range high {
		j := len(high) - 1 - i
		dHigh[i] = high[j]
		dLow[i] = low[j]
		dClose[i] = close[j]
	}
	plusDI, minusDI, err = DirectionalIndex(dHigh, dLow, dClose, 14)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if minusDI <= plusDI {
		t.Errorf("Expected -DI (%.2f) above +DI (%.2f) in a downtrend", minusDI, plusDI)
	}
}

func TestStochastic(t *testing.T) {
	high, low, close := trendingOHLC(40, 1.0)

	result, err := Stochastic(high, low, close, 14, 3, 3)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.K < 0 || result.K > 100 || result.D < 0 || result.D > 100 {
		t.Errorf("Stochastic out of range: K=%.2f D=%.2f", result.K, result.D)
	}
	// Closes ride the upper half of the window in a steady uptrend
	if result.K < 50 {
		t.Errorf("Expected %%K >= 50 in an uptrend, got %.2f", result.K)
	}
}

func TestStochasticFlatWindow(t *testing.T) {
	count := 40
	high := make([]float64, count)
	low := make([]float64, count)
	close := make([]float64, count)
	for i := 0; i < count; i++ {
		high[i] = 100.0
		low[i] = 100.0
		close[i] = 100.0
	}

	result, err := Stochastic(high, low, close, 14, 3, 3)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if math.Abs(result.K-50.0) > 1e-9 {
		t.Errorf("Expected neutral %%K = 50 on a flat window, got %.2f", result.K)
	}
}

func TestOBV(t *testing.T) {
	close := []float64{10, 11, 10.5, 10.5, 12}
	volume := []float64{100, 200, 150, 80, 300}

	obv, err := OBV(close, volume)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := []float64{0, 200, 50, 50, 350}
	for i := range want {
		if math.Abs(obv[i]-want[i]) > 1e-9 {
			t.Errorf("OBV[%d] = %.2f, want %.2f", i, obv[i], want[i])
		}
	}

	if _, err := OBV(close, volume[:3]); err == nil {
		t.Error("Expected error for mismatched lengths")
	}
	if _, err := OBV(nil, nil); err == nil {
		t.Error("Expected error for empty input")
	}
}

func TestVWAP(t *testing.T) {
	high := []float64{12, 14}
	low := []float64{10, 12}
	close := []float64{11, 13}
	volume := []float64{100, 300}

	// Typical prices are 11 and 13, volume-weighted: (11*100 + 13*300) / 400
	want := (11.0*100 + 13.0*300) / 400.0

	got, err := VWAP(high, low, close, volume)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("VWAP = %.4f, want %.4f", got, want)
	}

	if _, err := VWAP(high, low, close, []float64{0, 0}); err == nil {
		t.Error("Expected error for zero cumulative volume")
	}
}

func TestVolumeRatio(t *testing.T) {
	tests := []struct {
		name   string
		volume []float64
		period int
		want   float64
	}{
		{"surge doubles the average", []float64{100, 100, 100, 200}, 3, 2.0},
		{"steady volume", []float64{100, 100, 100, 100}, 3, 1.0},
		{"insufficient data", []float64{100, 100}, 3, 0},
		{"zero average", []float64{0, 0, 0, 100}, 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VolumeRatio(tt.volume, tt.period)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("VolumeRatio = %.4f, want %.4f", got, tt.want)
			}
		})
	}
}
