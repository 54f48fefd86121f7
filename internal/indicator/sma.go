package indicator

import "math"

// CalculateSMA computes the simple moving average over the whole series.
// The first period-1 elements are NaN.
func CalculateSMA(prices []float64, period int) ([]float64, error) {
	if period <= 0 || len(prices) < period {
		return nil, ErrInsufficientData
	}

	sma := make([]float64, len(prices))
	for i := 0; i < period-1; i++ {
		sma[i] = math.NaN()
	}

	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	sma[period-1] = sum / float64(period)

	// Rolling window: drop the oldest, add the newest.
	for i := period; i < len(prices); i++ {
		sum += prices[i] - prices[i-period]
		sma[i] = sum / float64(period)
	}

	return sma, nil
}

// CalculateLastSMA returns the arithmetic mean of the last period closes.
func CalculateLastSMA(prices []float64, period int) (float64, error) {
	if period <= 0 || len(prices) < period {
		return 0, ErrInsufficientData
	}
	var sum float64
	for _, p := range prices[len(prices)-period:] {
		sum += p
	}
	return sum / float64(period), nil
}
