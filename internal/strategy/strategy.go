// Package strategy implements the fallback momentum signal engine.
package strategy

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/sepehrcode/autotrader/internal/indicator"
	"github.com/sepehrcode/autotrader/internal/signal"
)

// Config holds the momentum engine parameters. All fields have working
// defaults from DefaultConfig; zero values are not usable.
type Config struct {
	FastSMAPeriod int
	SlowSMAPeriod int
	RSIPeriod     int

	RSIOversold   float64
	RSIOverbought float64

	RiskFraction    float64 // fraction of equity risked per trade
	RewardRiskRatio float64
	MaxLeverage     float64
	MinNotionalUSD  float64
}

func DefaultConfig() Config {
	return Config{
		FastSMAPeriod:   20,
		SlowSMAPeriod:   50,
		RSIPeriod:       14,
		RSIOversold:     30,
		RSIOverbought:   70,
		RiskFraction:    0.02,
		RewardRiskRatio: 3.0,
		MaxLeverage:     5.0,
		MinNotionalUSD:  100.0,
	}
}

// Momentum grades market state with RSI and a fast/slow SMA pair and turns
// the grade into a sized trade signal. Every degraded path (not enough
// candles, no edge, account too small) yields a hold signal, never an error:
// the scheduler must always receive something actionable.
type Momentum struct {
	cfg    Config
	logger *zap.Logger
}

func NewMomentum(cfg Config, logger *zap.Logger) *Momentum {
	return &Momentum{cfg: cfg, logger: logger}
}

// grade is the raw directional read before position and sizing are applied.
type grade struct {
	direction  signal.Direction // empty when there is no edge
	confidence float64
	reason     string
}

// Evaluate produces this cycle's signal for one coin. closes must be in
// chronological order; markPrice is the live price, equity the account value
// in USD, held the direction of the current position (empty when flat).
func (m *Momentum) Evaluate(coin string, closes []float64, markPrice, equity float64, held signal.Direction) signal.Signal {
	now := time.Now().Unix()

	fastSMA, err := indicator.CalculateLastSMA(closes, m.cfg.FastSMAPeriod)
	if err != nil {
		return m.hold(coin, now, "insufficient data for fast SMA")
	}
	slowSMA, err := indicator.CalculateLastSMA(closes, m.cfg.SlowSMAPeriod)
	if err != nil {
		return m.hold(coin, now, "insufficient data for slow SMA")
	}
	rsiSeries, err := indicator.CalculateRSI(closes, m.cfg.RSIPeriod)
	if err != nil || len(rsiSeries) < m.cfg.RSIPeriod+2 {
		return m.hold(coin, now, "insufficient data for RSI")
	}
	rsi := rsiSeries[len(rsiSeries)-1]
	prevRSI := rsiSeries[len(rsiSeries)-2]

	if markPrice <= 0 {
		return m.hold(coin, now, "no live price")
	}

	g := m.gradeMarket(markPrice, fastSMA, slowSMA, rsi)

	// Exit check first: an open position whose momentum has re-crossed the
	// midline gets closed regardless of whether a fresh edge exists.
	if held != "" && m.exitCross(held, rsi, prevRSI) {
		m.logger.Info("Momentum exit",
			zap.String("coin", coin), zap.String("held", string(held)),
			zap.Float64("rsi", rsi), zap.Float64("prev_rsi", prevRSI))
		return signal.Signal{
			Timestamp:  now,
			Coin:       coin,
			Action:     signal.ActionClose,
			Direction:  held,
			Confidence: 0.7,
			Reason:     "RSI re-crossed midline against position",
			Source:     "momentum",
		}
	}

	if g.direction == "" || g.confidence < 0.5 {
		return m.hold(coin, now, "no momentum edge")
	}
	if held == g.direction {
		return m.hold(coin, now, "already positioned with the trend")
	}

	action := signal.ActionOpen
	if held != "" {
		action = signal.ActionCloseAndReverse
	}

	sized, ok := m.size(g.confidence, markPrice, equity)
	if !ok {
		return m.hold(coin, now, "position below minimum notional")
	}
	stopLoss, takeProfit := m.bracket(g.direction, markPrice, sized.stopLossPct)

	m.logger.Info("Momentum signal",
		zap.String("coin", coin), zap.String("action", string(action)),
		zap.String("direction", string(g.direction)),
		zap.Float64("confidence", g.confidence),
		zap.Float64("rsi", rsi), zap.Float64("fast_sma", fastSMA),
		zap.Float64("slow_sma", slowSMA), zap.String("reason", g.reason))

	return signal.Signal{
		Timestamp:  now,
		Coin:       coin,
		Action:     action,
		Direction:  g.direction,
		Confidence: g.confidence,
		Strategy: signal.Strategy{
			PositionSizeCoin: roundTo(sized.sizeCoin, 6),
			Leverage:         roundTo(sized.leverage, 1),
			StopLoss:         roundTo(stopLoss, 2),
			TakeProfit:       roundTo(takeProfit, 2),
		},
		Reason: g.reason,
		Source: "momentum",
	}
}

// gradeMarket applies the momentum rules in priority order. Extremes beat
// trend entries beat continuation reads.
func (m *Momentum) gradeMarket(price, fastSMA, slowSMA, rsi float64) grade {
	switch {
	case rsi < 20 && price > slowSMA*0.98:
		return grade{signal.DirectionLong, 0.9, "strong oversold with SMA support"}
	case rsi > 80:
		return grade{signal.DirectionShort, 0.9, "extreme overbought condition"}
	case rsi < m.cfg.RSIOversold && fastSMA > slowSMA:
		return grade{signal.DirectionLong, 0.7, "oversold pullback in uptrend"}
	case rsi > m.cfg.RSIOverbought && fastSMA < slowSMA:
		return grade{signal.DirectionShort, 0.7, "overbought rally in downtrend"}
	case price > fastSMA && fastSMA > slowSMA && rsi > 40 && rsi < 60:
		return grade{signal.DirectionLong, 0.5, "uptrend momentum continuation"}
	case price < fastSMA && fastSMA < slowSMA && rsi > 40 && rsi < 60:
		return grade{signal.DirectionShort, 0.5, "downtrend momentum continuation"}
	}
	return grade{}
}

// exitCross reports whether RSI crossed the midline against the held
// direction this candle.
func (m *Momentum) exitCross(held signal.Direction, rsi, prevRSI float64) bool {
	if held == signal.DirectionLong {
		return prevRSI >= 50 && rsi < 50
	}
	return prevRSI <= 50 && rsi > 50
}

type sizing struct {
	sizeCoin    float64
	leverage    float64
	stopLossPct float64
}

// size converts confidence and equity into a position. Higher confidence
// takes a tighter stop, which in turn admits a larger size for the same
// risked amount. Notional is capped at equity times max leverage and floored
// at the minimum trade size.
func (m *Momentum) size(confidence, price, equity float64) (sizing, bool) {
	if equity <= 0 {
		return sizing{}, false
	}

	stopLossPct := 0.015
	if confidence >= 0.8 {
		stopLossPct = 0.01
	}

	riskAmount := equity * m.cfg.RiskFraction
	notionalUSD := math.Min(riskAmount/stopLossPct, equity*m.cfg.MaxLeverage)
	if notionalUSD < m.cfg.MinNotionalUSD {
		return sizing{}, false
	}

	return sizing{
		sizeCoin:    notionalUSD / price,
		leverage:    notionalUSD / equity,
		stopLossPct: stopLossPct,
	}, true
}

func (m *Momentum) bracket(dir signal.Direction, price, stopLossPct float64) (stopLoss, takeProfit float64) {
	if dir == signal.DirectionLong {
		return price * (1 - stopLossPct), price * (1 + stopLossPct*m.cfg.RewardRiskRatio)
	}
	return price * (1 + stopLossPct), price * (1 - stopLossPct*m.cfg.RewardRiskRatio)
}

func (m *Momentum) hold(coin string, ts int64, reason string) signal.Signal {
	s := signal.Hold(coin, ts, reason)
	s.Source = "momentum"
	return s
}

func roundTo(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}

// MinSamples is how many closes Evaluate needs before it can produce a
// non-degraded signal.
func (m *Momentum) MinSamples() int {
	n := m.cfg.SlowSMAPeriod
	if rsiNeed := m.cfg.RSIPeriod + 2; rsiNeed > n {
		n = rsiNeed
	}
	return n
}

// String describes the configured rule set, for startup logging.
func (m *Momentum) String() string {
	return fmt.Sprintf("momentum(rsi=%d sma=%d/%d)", m.cfg.RSIPeriod, m.cfg.FastSMAPeriod, m.cfg.SlowSMAPeriod)
}
