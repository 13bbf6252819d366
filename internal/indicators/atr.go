package indicators

import (
	"fmt"
	"math"
)

// ATR calculates the Average True Range with Wilder's smoothing and returns
// the most recent value
func ATR(high, low, close []float64, period int) (float64, error) {
	values, err := ATRSeries(high, low, close, period)
	if err != nil {
		return 0, err
	}
	return values[len(values)-1], nil
}

// ATRSeries returns the Wilder-smoothed true range series
func ATRSeries(high, low, close []float64, period int) ([]float64, error) {
	if period < 1 {
		return nil, fmt.Errorf("invalid ATR period: %d", period)
	}
	if err := validateOHLC(high, low, close, period+1); err != nil {
		return nil, err
	}

	n := len(close)
	tr := make([]float64, n)
	tr[0] = high[0] - low[0]
	for i := 1; i < n; i++ {
		tr[i] = math.Max(high[i]-low[i],
			math.Max(math.Abs(high[i]-close[i-1]),
				math.Abs(low[i]-close[i-1])))
	}

	return smoothWilder(tr, period), nil
}
