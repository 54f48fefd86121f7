package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateSMA(t *testing.T) {
	tests := []struct {
		name     string
		prices   []float64
		period   int
		expected []float64
		wantErr  bool
	}{
		{
			name:     "Basic SMA",
			prices:   []float64{1, 2, 3, 4, 5},
			period:   2,
			expected: []float64{math.NaN(), 1.5, 2.5, 3.5, 4.5},
		},
		{
			name:     "Period equals length",
			prices:   []float64{2, 4, 6},
			period:   3,
			expected: []float64{math.NaN(), math.NaN(), 4},
		},
		{
			name:     "Period one is identity",
			prices:   []float64{7, 8, 9},
			period:   1,
			expected: []float64{7, 8, 9},
		},
		{
			name:    "Insufficient data",
			prices:  []float64{1, 2},
			period:  3,
			wantErr: true,
		},
		{
			name:    "Invalid period",
			prices:  []float64{1, 2, 3},
			period:  0,
			wantErr: true,
		},
		{
			name:    "Empty prices",
			prices:  []float64{},
			period:  3,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := CalculateSMA(tt.prices, tt.period)

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInsufficientData)
				assert.Nil(t, result)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, len(tt.expected), len(result))
			for i := range tt.expected {
				if math.IsNaN(tt.expected[i]) {
					assert.True(t, math.IsNaN(result[i]), "Expected NaN at index %d", i)
				} else {
					assert.InDelta(t, tt.expected[i], result[i], 1e-9, "SMA mismatch at index %d", i)
				}
			}
		})
	}
}

func TestCalculateLastSMA(t *testing.T) {
	last, err := CalculateLastSMA([]float64{1, 2, 3, 4, 5}, 3)
	assert.NoError(t, err)
	assert.InDelta(t, 4.0, last, 1e-9)

	_, err = CalculateLastSMA([]float64{1, 2}, 3)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestSMAConsistency(t *testing.T) {
	prices := []float64{10, 12, 9, 14, 13, 11, 15, 16, 12, 10}
	full, err := CalculateSMA(prices, 4)
	assert.NoError(t, err)

	last, err := CalculateLastSMA(prices, 4)
	assert.NoError(t, err)
	assert.InDelta(t, full[len(full)-1], last, 1e-9)
}
