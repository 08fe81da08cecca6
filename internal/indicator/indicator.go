// Package indicator computes RSI, MFI, and Bollinger Bands from
// aligned price and volume arrays. All functions are pure and
// stateless; NaN is returned when the input is too short for the
// requested lookback.
package indicator

import "math"

// Bands holds one Bollinger Bands computation.
type Bands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// RSI computes the Relative Strength Index with Wilder's smoothing.
// The first `period` deltas seed avgGain/avgLoss as simple means; each
// later delta is folded in with weight 1/period. Requires period+1
// prices; returns NaN otherwise. When avgLoss is zero the result is
// exactly 100.
func RSI(prices []float64, period int) float64 {
	if period < 1 || len(prices) < period+1 {
		return math.NaN()
	}

	var gains, losses float64
	for i := 1; i <= period; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	for i := period + 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			avgGain = (avgGain*float64(period-1) + change) / float64(period)
			avgLoss = (avgLoss * float64(period-1)) / float64(period)
		} else {
			avgGain = (avgGain * float64(period-1)) / float64(period)
			avgLoss = (avgLoss*float64(period-1) - change) / float64(period)
		}
	}

	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// MFI computes the Money Flow Index over the last `period` indices.
// Typical price is (H+L+C)/3; raw money flow is typical price times
// volume. A rising typical price adds to positive flow, a falling one
// to negative flow, a flat one to neither. Index 0 of the whole series
// has no predecessor and never contributes. Requires period+1 closes;
// returns NaN otherwise. When negative flow is zero the result is
// exactly 100.
func MFI(highs, lows, closes, volumes []float64, period int) float64 {
	n := len(closes)
	if period < 1 || n < period+1 {
		return math.NaN()
	}

	typical := make([]float64, n)
	for i := 0; i < n; i++ {
		typical[i] = (highs[i] + lows[i] + closes[i]) / 3.0
	}

	var posFlow, negFlow float64
	for i := n - period; i < n; i++ {
		if i == 0 {
			continue
		}
		flow := typical[i] * volumes[i]
		if typical[i] > typical[i-1] {
			posFlow += flow
		} else if typical[i] < typical[i-1] {
			negFlow += flow
		}
	}

	if negFlow == 0 {
		return 100.0
	}
	return 100.0 - (100.0 / (1.0 + posFlow/negFlow))
}

// BollingerBands computes mean +/- stdDev multiples of the population
// standard deviation (divide by period, not period-1) over the last
// `period` prices. Requires period prices; returns NaN bands otherwise.
func BollingerBands(prices []float64, period int, stdDev float64) Bands {
	if period < 1 || len(prices) < period {
		nan := math.NaN()
		return Bands{Upper: nan, Middle: nan, Lower: nan}
	}

	window := prices[len(prices)-period:]

	var sum float64
	for _, p := range window {
		sum += p
	}
	middle := sum / float64(period)

	var variance float64
	for _, p := range window {
		variance += (p - middle) * (p - middle)
	}
	sd := math.Sqrt(variance / float64(period))

	return Bands{
		Upper:  middle + sd*stdDev,
		Middle: middle,
		Lower:  middle - sd*stdDev,
	}
}
