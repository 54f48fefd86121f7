package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sepehrcode/autotrader/internal/signal"
)

func risingCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	return closes
}

func TestGradeMarket(t *testing.T) {
	m := NewMomentum(DefaultConfig(), zap.NewNop())

	tests := []struct {
		name                       string
		price, fastSMA, slowSMA    float64
		rsi                        float64
		wantDirection              signal.Direction
		wantConfidence             float64
	}{
		{"strong oversold near slow SMA", 100, 98, 99, 15, signal.DirectionLong, 0.9},
		{"strong oversold but far below slow SMA", 90, 98, 99, 15, "", 0},
		{"extreme overbought", 120, 110, 100, 85, signal.DirectionShort, 0.9},
		{"oversold pullback in uptrend", 101, 105, 100, 25, signal.DirectionLong, 0.7},
		{"oversold in downtrend has no edge", 101, 95, 100, 25, "", 0},
		{"overbought rally in downtrend", 99, 95, 100, 75, signal.DirectionShort, 0.7},
		{"uptrend continuation", 106, 105, 100, 55, signal.DirectionLong, 0.5},
		{"downtrend continuation", 94, 95, 100, 45, signal.DirectionShort, 0.5},
		{"neutral midrange", 100, 100, 100, 50, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := m.gradeMarket(tt.price, tt.fastSMA, tt.slowSMA, tt.rsi)
			assert.Equal(t, tt.wantDirection, g.direction)
			assert.InDelta(t, tt.wantConfidence, g.confidence, 1e-9)
		})
	}
}

func TestExitCross(t *testing.T) {
	m := NewMomentum(DefaultConfig(), zap.NewNop())

	assert.True(t, m.exitCross(signal.DirectionLong, 48, 52))
	assert.False(t, m.exitCross(signal.DirectionLong, 48, 45))
	assert.False(t, m.exitCross(signal.DirectionLong, 55, 52))
	assert.True(t, m.exitCross(signal.DirectionShort, 53, 47))
	assert.False(t, m.exitCross(signal.DirectionShort, 53, 60))
}

func TestSize(t *testing.T) {
	m := NewMomentum(DefaultConfig(), zap.NewNop())

	// High confidence takes the 1% stop: 2% risk on 10k is 200, over a 1%
	// stop that is 20k notional, inside the 5x cap.
	s, ok := m.size(0.9, 50000, 10000)
	require.True(t, ok)
	assert.InDelta(t, 0.01, s.stopLossPct, 1e-9)
	assert.InDelta(t, 0.4, s.sizeCoin, 1e-9)
	assert.InDelta(t, 2.0, s.leverage, 1e-9)

	// Lower confidence widens the stop and shrinks the size.
	s, ok = m.size(0.7, 50000, 10000)
	require.True(t, ok)
	assert.InDelta(t, 0.015, s.stopLossPct, 1e-9)
	assert.InDelta(t, 10000.0/0.75, s.sizeCoin*50000, 1e-6)

	// Leverage cap binds when the stop-derived notional exceeds it.
	m2 := NewMomentum(Config{
		FastSMAPeriod: 20, SlowSMAPeriod: 50, RSIPeriod: 14,
		RSIOversold: 30, RSIOverbought: 70,
		RiskFraction: 0.10, RewardRiskRatio: 3, MaxLeverage: 5, MinNotionalUSD: 100,
	}, zap.NewNop())
	s, ok = m2.size(0.9, 50000, 10000)
	require.True(t, ok)
	assert.InDelta(t, 5.0, s.leverage, 1e-9)

	// Tiny accounts fall below the notional floor.
	_, ok = m.size(0.9, 50000, 40)
	assert.False(t, ok)

	_, ok = m.size(0.9, 50000, 0)
	assert.False(t, ok)
}

func TestBracket(t *testing.T) {
	m := NewMomentum(DefaultConfig(), zap.NewNop())

	stop, take := m.bracket(signal.DirectionLong, 50000, 0.01)
	assert.InDelta(t, 49500.0, stop, 1e-6)
	assert.InDelta(t, 51500.0, take, 1e-6)
	assert.Less(t, stop, 50000.0)
	assert.Greater(t, take, 50000.0)

	stop, take = m.bracket(signal.DirectionShort, 50000, 0.015)
	assert.InDelta(t, 50750.0, stop, 1e-6)
	assert.InDelta(t, 47750.0, take, 1e-6)
	assert.Greater(t, stop, 50000.0)
	assert.Less(t, take, 50000.0)
}

func TestEvaluateInsufficientData(t *testing.T) {
	m := NewMomentum(DefaultConfig(), zap.NewNop())

	sig := m.Evaluate("BTC", risingCloses(10), 110, 10000, "")
	assert.Equal(t, signal.ActionHold, sig.Action)
	assert.Zero(t, sig.Confidence)
	assert.Equal(t, "BTC", sig.Coin)
}

func TestEvaluateExtremeOverbought(t *testing.T) {
	m := NewMomentum(DefaultConfig(), zap.NewNop())
	closes := risingCloses(60) // monotone rise pins RSI at 100

	sig := m.Evaluate("BTC", closes, 160, 10000, "")
	require.Equal(t, signal.ActionOpen, sig.Action)
	assert.Equal(t, signal.DirectionShort, sig.Direction)
	assert.InDelta(t, 0.9, sig.Confidence, 1e-9)
	assert.Greater(t, sig.Strategy.StopLoss, 160.0)
	assert.Less(t, sig.Strategy.TakeProfit, 160.0)
	assert.InDelta(t, 2.0, sig.Strategy.Leverage, 1e-9)
	require.NoError(t, sig.Validate(160, 5))
}

func TestEvaluateOversoldPullbackOpensLong(t *testing.T) {
	m := NewMomentum(DefaultConfig(), zap.NewNop())

	// A long steady rise keeps SMA20 above SMA50, then a sharp pullback
	// drags RSI into the twenties without breaking the trend.
	closes := make([]float64, 0, 60)
	for i := 0; i < 52; i++ {
		closes = append(closes, 100+float64(i))
	}
	for i := 1; i <= 8; i++ {
		closes = append(closes, 151-4*float64(i))
	}
	price := closes[len(closes)-1]

	sig := m.Evaluate("BTC", closes, price, 10000, "")
	require.Equal(t, signal.ActionOpen, sig.Action)
	assert.Equal(t, signal.DirectionLong, sig.Direction)
	assert.Greater(t, sig.Confidence, 0.5)
	assert.LessOrEqual(t, sig.Strategy.Leverage, 5.0)
	assert.GreaterOrEqual(t, sig.Strategy.PositionSizeCoin*price, 100.0)
	require.NoError(t, sig.Validate(price, 5))
}

func TestEvaluateAlreadyPositioned(t *testing.T) {
	m := NewMomentum(DefaultConfig(), zap.NewNop())
	closes := risingCloses(60)

	sig := m.Evaluate("BTC", closes, 160, 10000, signal.DirectionShort)
	assert.Equal(t, signal.ActionHold, sig.Action)
}

func TestEvaluateReversesOpposingPosition(t *testing.T) {
	m := NewMomentum(DefaultConfig(), zap.NewNop())
	closes := risingCloses(60)

	sig := m.Evaluate("BTC", closes, 160, 10000, signal.DirectionLong)
	require.Equal(t, signal.ActionCloseAndReverse, sig.Action)
	assert.Equal(t, signal.DirectionShort, sig.Direction)
	require.NoError(t, sig.Validate(160, 5))
}

func TestEvaluateUndercapitalizedHolds(t *testing.T) {
	m := NewMomentum(DefaultConfig(), zap.NewNop())
	closes := risingCloses(60)

	sig := m.Evaluate("BTC", closes, 160, 40, "")
	assert.Equal(t, signal.ActionHold, sig.Action)
	assert.Zero(t, sig.Confidence)
}

func TestMinSamples(t *testing.T) {
	m := NewMomentum(DefaultConfig(), zap.NewNop())
	assert.Equal(t, 50, m.MinSamples())
}
