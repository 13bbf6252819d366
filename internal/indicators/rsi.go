package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/momentum"
)

// RSI calculates the Relative Strength Index over the given period and
// returns the most recent value. Wilder's smoothing is applied by the
// underlying implementation.
func RSI(prices []float64, period int) (float64, error) {
	if period < 1 || period >= len(prices) {
		return 0, fmt.Errorf("invalid RSI period: %d for %d prices", period, len(prices))
	}

	rsiIndicator := momentum.NewRsiWithPeriod[float64](period)
	values := collect(rsiIndicator.Compute(sliceToChan(prices)))
	if len(values) == 0 {
		return 0, fmt.Errorf("no RSI values calculated")
	}

	return values[len(values)-1], nil
}

// RSISeries returns the full RSI series for the given period
func RSISeries(prices []float64, period int) ([]float64, error) {
	if period < 1 || period >= len(prices) {
		return nil, fmt.Errorf("invalid RSI period: %d for %d prices", period, len(prices))
	}

	rsiIndicator := momentum.NewRsiWithPeriod[float64](period)
	values := collect(rsiIndicator.Compute(sliceToChan(prices)))
	if len(values) == 0 {
		return nil, fmt.Errorf("no RSI values calculated")
	}

	return values, nil
}
