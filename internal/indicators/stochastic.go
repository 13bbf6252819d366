package indicators

import "fmt"

// StochasticResult holds the most recent stochastic oscillator values
type StochasticResult struct {
	K float64 // fast %K, smoothed
	D float64 // signal line (SMA of %K)
}

// Stochastic calculates the stochastic oscillator (kPeriod, smooth, dPeriod)
func Stochastic(high, low, close []float64, kPeriod, smooth, dPeriod int) (*StochasticResult, error) {
	if kPeriod < 1 || smooth < 1 || dPeriod < 1 {
		return nil, fmt.Errorf("invalid stochastic periods: k=%d, smooth=%d, d=%d", kPeriod, smooth, dPeriod)
	}
	if err := validateOHLC(high, low, close, kPeriod+smooth+dPeriod); err != nil {
		return nil, err
	}

	n := len(close)

	// Raw %K
	rawK := make([]float64, 0, n-kPeriod+1)
	for i := kPeriod - 1; i < n; i++ {
		highest := high[i]
		lowest := low[i]
		for j := i - kPeriod + 1; j <= i; j++ {
			if high[j] > highest {
				highest = high[j]
			}
			if low[j] < lowest {
				lowest = low[j]
			}
		}
		if highest == lowest {
			rawK = append(rawK, 50) // flat window, neutral
			continue
		}
		rawK = append(rawK, 100*(close[i]-lowest)/(highest-lowest))
	}

	// Smoothed %K then %D
	smoothK := make([]float64, 0, len(rawK)-smooth+1)
	for i := smooth - 1; i < len(rawK); i++ {
		smoothK = append(smoothK, SMA(rawK[:i+1], smooth))
	}
	if len(smoothK) < dPeriod {
		return nil, fmt.Errorf("insufficient data for stochastic %%D")
	}

	return &StochasticResult{
		K: smoothK[len(smoothK)-1],
		D: SMA(smoothK, dPeriod),
	}, nil
}
