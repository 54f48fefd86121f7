package indicator

import "math"

// CalculateRSI computes Wilder's relative strength index over the whole
// series. It needs period+1 prices (period deltas) to seed the averages, so
// the first period elements are NaN. Values are in [0,100]; a window with no
// losses yields 100 by convention.
func CalculateRSI(prices []float64, period int) ([]float64, error) {
	if period <= 0 || len(prices) < period+1 {
		return nil, ErrInsufficientData
	}

	rsi := make([]float64, len(prices))
	for i := 0; i < period; i++ {
		rsi[i] = math.NaN()
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gain += change
		} else {
			loss += -change
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	rsi[period] = rsiFromAverages(avgGain, avgLoss)

	// Wilder smoothing for the rest of the series.
	for i := period + 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		gain, loss = 0, 0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		rsi[i] = rsiFromAverages(avgGain, avgLoss)
	}

	return rsi, nil
}

// CalculateLastRSI returns only the most recent RSI value.
func CalculateLastRSI(prices []float64, period int) (float64, error) {
	rsi, err := CalculateRSI(prices, period)
	if err != nil {
		return 0, err
	}
	return rsi[len(rsi)-1], nil
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}
