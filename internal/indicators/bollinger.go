package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/volatility"
)

// BollingerResult holds the most recent Bollinger Band values
type BollingerResult struct {
	Upper  float64
	Middle float64
	Lower  float64
	Width  float64 // band width as a fraction of the middle band
}

// Bollinger calculates Bollinger Bands (2 standard deviations) over the
// given period
func Bollinger(prices []float64, period int) (*BollingerResult, error) {
	if period < 2 || period > len(prices) {
		return nil, fmt.Errorf("invalid Bollinger period: %d for %d prices", period, len(prices))
	}

	bbIndicator := volatility.NewBollingerBandsWithPeriod[float64](period)
	upperChan, middleChan, lowerChan := bbIndicator.Compute(sliceToChan(prices))

	var lowers, middles, uppers []float64
	for {
		l, lok := <-lowerChan
		m, mok := <-middleChan
		u, uok := <-upperChan
		if !lok || !mok || !uok {
			break
		}
		lowers = append(lowers, l)
		middles = append(middles, m)
		uppers = append(uppers, u)
	}

	if len(middles) == 0 {
		return nil, fmt.Errorf("no Bollinger values calculated")
	}

	last := len(middles) - 1
	result := &BollingerResult{
		Upper:  uppers[last],
		Middle: middles[last],
		Lower:  lowers[last],
	}
	if result.Middle != 0 {
		result.Width = (result.Upper - result.Lower) / result.Middle
	}

	return result, nil
}
