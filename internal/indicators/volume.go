package indicators

import "fmt"

// OBV calculates On-Balance Volume and returns the full series
func OBV(close, volume []float64) ([]float64, error) {
	if len(close) != len(volume) {
		return nil, fmt.Errorf("close and volume arrays must have the same length")
	}
	if len(close) == 0 {
		return nil, fmt.Errorf("close array is empty")
	}

	obv := make([]float64, len(close))
	for i := 1; i < len(close); i++ {
		switch {
		case close[i] > close[i-1]:
			obv[i] = obv[i-1] + volume[i]
		case close[i] < close[i-1]:
			obv[i] = obv[i-1] - volume[i]
		default:
			obv[i] = obv[i-1]
		}
	}

	return obv, nil
}

// VWAP calculates the Volume-Weighted Average Price over the window
func VWAP(high, low, close, volume []float64) (float64, error) {
	if err := validateOHLC(high, low, close, 1); err != nil {
		return 0, err
	}
	if len(volume) != len(close) {
		return 0, fmt.Errorf("volume array length mismatch")
	}

	var pvSum, vSum float64
	for i := range close {
		typical := (high[i] + low[i] + close[i]) / 3
		pvSum += typical * volume[i]
		vSum += volume[i]
	}
	if vSum == 0 {
		return 0, fmt.Errorf("zero cumulative volume")
	}

	return pvSum / vSum, nil
}

// VolumeRatio returns the last bar's volume relative to the mean of the
// preceding period bars. A ratio of 2.0 means twice the recent average.
func VolumeRatio(volume []float64, period int) float64 {
	if period <= 0 || len(volume) < period+1 {
		return 0
	}
	mean := SMA(volume[:len(volume)-1], period)
	if mean == 0 {
		return 0
	}
	return volume[len(volume)-1] / mean
}
