package indicators

import (
	"fmt"
	"math"
)

// ADX calculates the Average Directional Index. Not available in
// cinar/indicator v2, so it is implemented here with Wilder's smoothing.
func ADX(high, low, close []float64, period int) (float64, error) {
	if period < 1 {
		return 0, fmt.Errorf("invalid ADX period: %d", period)
	}
	if err := validateOHLC(high, low, close, period*2); err != nil {
		return 0, err
	}

	n := len(close)

	tr := make([]float64, n)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)

	for i := 1; i < n; i++ {
		tr[i] = math.Max(high[i]-low[i],
			math.Max(math.Abs(high[i]-close[i-1]),
				math.Abs(low[i]-close[i-1])))

		upMove := high[i] - high[i-1]
		downMove := low[i-1] - low[i]

		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
	}

	smoothTR := smoothWilder(tr, period)
	smoothPlusDM := smoothWilder(plusDM, period)
	smoothMinusDM := smoothWilder(minusDM, period)

	dx := make([]float64, n)
	for i := period; i < n; i++ {
		if smoothTR[i] == 0 {
			continue
		}
		plusDI := 100 * smoothPlusDM[i] / smoothTR[i]
		minusDI := 100 * smoothMinusDM[i] / smoothTR[i]

		diSum := plusDI + minusDI
		if diSum != 0 {
			dx[i] = 100 * math.Abs(plusDI-minusDI) / diSum
		}
	}

	adxValues := smoothWilder(dx, period)
	return adxValues[n-1], nil
}

// DirectionalIndex returns the most recent +DI and -DI values, used by the
// trend analyzer to resolve direction when ADX reports strength only
func DirectionalIndex(high, low, close []float64, period int) (plusDI, minusDI float64, err error) {
	if period < 1 {
		return 0, 0, fmt.Errorf("invalid DI period: %d", period)
	}
	if err := validateOHLC(high, low, close, period+1); err != nil {
		return 0, 0, err
	}

	n := len(close)

	tr := make([]float64, n)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)

	for i := 1; i < n; i++ {
		tr[i] = math.Max(high[i]-low[i],
			math.Max(math.Abs(high[i]-close[i-1]),
				math.Abs(low[i]-close[i-1])))

		upMove := high[i] - high[i-1]
		downMove := low[i-1] - low[i]

		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
	}

	smoothTR := smoothWilder(tr, period)
	smoothPlusDM := smoothWilder(plusDM, period)
	smoothMinusDM := smoothWilder(minusDM, period)

	if smoothTR[n-1] == 0 {
		return 0, 0, nil
	}

	plusDI = 100 * smoothPlusDM[n-1] / smoothTR[n-1]
	minusDI = 100 * smoothMinusDM[n-1] / smoothTR[n-1]
	return plusDI, minusDI, nil
}
