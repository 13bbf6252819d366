package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/trend"
)

// MACDResult holds the most recent MACD values
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
	// PrevHistogram is the histogram one bar earlier, used for crossover
	// detection by the trend analyzer
	PrevHistogram float64
}

// MACD calculates the Moving Average Convergence Divergence
func MACD(prices []float64, fastPeriod, slowPeriod, signalPeriod int) (*MACDResult, error) {
	if fastPeriod < 1 || slowPeriod < 1 || signalPeriod < 1 {
		return nil, fmt.Errorf("invalid MACD periods: fast=%d, slow=%d, signal=%d", fastPeriod, slowPeriod, signalPeriod)
	}
	if fastPeriod >= slowPeriod {
		return nil, fmt.Errorf("fast period (%d) must be less than slow period (%d)", fastPeriod, slowPeriod)
	}
	if len(prices) < slowPeriod+signalPeriod {
		return nil, fmt.Errorf("insufficient data: need at least %d prices, got %d", slowPeriod+signalPeriod, len(prices))
	}

	macdIndicator := trend.NewMacdWithPeriod[float64](fastPeriod, slowPeriod, signalPeriod)
	macdChan, signalChan := macdIndicator.Compute(sliceToChan(prices))

	var macdValues, signalValues []float64
	for {
		m, mok := <-macdChan
		s, sok := <-signalChan
		if !mok || !sok {
			break
		}
		macdValues = append(macdValues, m)
		signalValues = append(signalValues, s)
	}

	if len(macdValues) == 0 {
		return nil, fmt.Errorf("no MACD values calculated")
	}

	last := len(macdValues) - 1
	result := &MACDResult{
		MACD:      macdValues[last],
		Signal:    signalValues[last],
		Histogram: macdValues[last] - signalValues[last],
	}
	if last >= 1 {
		result.PrevHistogram = macdValues[last-1] - signalValues[last-1]
	}

	return result, nil
}
