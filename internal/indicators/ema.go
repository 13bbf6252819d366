package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/trend"
)

// EMA calculates the Exponential Moving Average over the given period and
// returns the most recent value
func EMA(prices []float64, period int) (float64, error) {
	values, err := EMASeries(prices, period)
	if err != nil {
		return 0, err
	}
	return values[len(values)-1], nil
}

// EMASeries returns the full EMA series for the given period. The seed is an
// SMA over the first period values.
func EMASeries(prices []float64, period int) ([]float64, error) {
	if period < 1 || period > len(prices) {
		return nil, fmt.Errorf("invalid EMA period: %d for %d prices", period, len(prices))
	}

	emaIndicator := trend.NewEmaWithPeriod[float64](period)
	values := collect(emaIndicator.Compute(sliceToChan(prices)))
	if len(values) == 0 {
		return nil, fmt.Errorf("no EMA values calculated")
	}

	return values, nil
}
