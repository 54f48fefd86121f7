// Package position holds the per-coin position state machine and its risk
// checks. One Manager per coin; the manager is the single writer for that
// coin's exposure.
package position

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sepehrcode/autotrader/internal/exchange"
	"github.com/sepehrcode/autotrader/internal/journal"
	"github.com/sepehrcode/autotrader/internal/order"
	"github.com/sepehrcode/autotrader/internal/signal"
)

// Config bounds what the manager will accept.
type Config struct {
	ConfidenceThreshold float64 // entries below this degrade to hold
	MaxLeverage         float64
}

func DefaultConfig() Config {
	return Config{ConfidenceThreshold: 0.5, MaxLeverage: 5.0}
}

// State is the manager's view of one coin's exposure. Direction empty means
// flat; Size is always >= 0.
type State struct {
	Coin       string
	Direction  signal.Direction
	Size       float64
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
}

func (s State) Flat() bool { return s.Direction == "" || s.Size == 0 }

// Manager applies signals to one coin's position. Every accepted transition
// is exactly one order to the exchange and exactly one ledger record after
// the exchange acknowledges. Exchange failure leaves state untouched; ledger
// failure after the ack surfaces ErrPersistenceFailure so the scheduler
// stops admitting cycles.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	coin     string
	exchange exchange.Exchange
	ledger   journal.Ledger
	logger   *zap.Logger
	state    State
}

func NewManager(coin string, cfg Config, ex exchange.Exchange, ledger journal.Ledger, logger *zap.Logger) *Manager {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfig().ConfidenceThreshold
	}
	if cfg.MaxLeverage <= 0 {
		cfg.MaxLeverage = DefaultConfig().MaxLeverage
	}
	return &Manager{
		cfg:      cfg,
		coin:     coin,
		exchange: ex,
		ledger:   ledger,
		logger:   logger.With(zap.String("coin", coin)),
		state:    State{Coin: coin},
	}
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Restore seeds the manager after a restart. The exchange's view wins; the
// ledger replay is the fallback when the exchange read fails, so a dead
// exchange connection does not erase a known position.
func (m *Manager) Restore(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, err := m.exchange.GetCurrentPosition(ctx, m.coin)
	if err == nil {
		if pos.Flat() {
			m.state = State{Coin: m.coin}
			m.logger.Info("Restored flat from exchange")
			return nil
		}
		m.state = State{
			Coin:       m.coin,
			Direction:  pos.Direction,
			Size:       pos.Size,
			EntryPrice: pos.EntryPrice,
		}
		// The exchange does not report our bracket; recover it from the
		// last ledger entry when one exists.
		if records, lerr := m.ledger.Trades(ctx, m.coin); lerr == nil {
			if last := journal.LastState(records); !last.Flat() && last.Direction == pos.Direction {
				m.state.StopLoss = last.StopLoss
				m.state.TakeProfit = last.TakeProfit
			}
		}
		m.logger.Info("Restored position from exchange",
			zap.String("direction", string(pos.Direction)), zap.Float64("size", pos.Size))
		return nil
	}

	m.logger.Warn("Exchange position read failed, replaying ledger", zap.Error(err))
	records, lerr := m.ledger.Trades(ctx, m.coin)
	if lerr != nil {
		return fmt.Errorf("restore %s: exchange: %v, ledger: %w", m.coin, err, lerr)
	}
	last := journal.LastState(records)
	m.state = State{
		Coin:       m.coin,
		Direction:  last.Direction,
		Size:       last.Size,
		EntryPrice: last.EntryPrice,
		StopLoss:   last.StopLoss,
		TakeProfit: last.TakeProfit,
	}
	m.logger.Info("Restored position from ledger", zap.Bool("flat", m.state.Flat()))
	return nil
}

// MarkPrice checks the live price against the recorded bracket and closes
// the position when either side is breached. This runs every tick,
// independent of whatever the signal source says.
func (m *Manager) MarkPrice(ctx context.Context, price float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Flat() || price <= 0 {
		return nil
	}

	var reason string
	switch m.state.Direction {
	case signal.DirectionLong:
		if m.state.StopLoss > 0 && price <= m.state.StopLoss {
			reason = "stop loss breached"
		} else if m.state.TakeProfit > 0 && price >= m.state.TakeProfit {
			reason = "take profit reached"
		}
	case signal.DirectionShort:
		if m.state.StopLoss > 0 && price >= m.state.StopLoss {
			reason = "stop loss breached"
		} else if m.state.TakeProfit > 0 && price <= m.state.TakeProfit {
			reason = "take profit reached"
		}
	}
	if reason == "" {
		return nil
	}

	m.logger.Info("Bracket breach, closing position",
		zap.String("reason", reason), zap.Float64("price", price),
		zap.Float64("stop_loss", m.state.StopLoss), zap.Float64("take_profit", m.state.TakeProfit))
	return m.closeLocked(ctx, reason)
}

// Apply executes one signal against the position. markPrice is the live
// price: it is the entry price for any opened exposure and the reference for
// bracket validation, regardless of what price the signal was computed from.
func (m *Manager) Apply(ctx context.Context, sig signal.Signal, markPrice float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sig.Action == signal.ActionHold {
		return nil
	}

	if sig.Action.IsEntry() && sig.Confidence < m.cfg.ConfidenceThreshold {
		m.logger.Info("Signal confidence below threshold, holding",
			zap.Float64("confidence", sig.Confidence),
			zap.Float64("threshold", m.cfg.ConfidenceThreshold))
		if err := m.ledger.LogEvent(ctx, journal.Event{
			Time:        time.Now(),
			Type:        "signal_rejected",
			Description: "confidence below threshold",
			Data: map[string]any{
				"coin":       m.coin,
				"action":     string(sig.Action),
				"confidence": sig.Confidence,
				"threshold":  m.cfg.ConfidenceThreshold,
			},
		}); err != nil {
			m.logger.Warn("Audit event write failed", zap.Error(err))
		}
		return nil
	}

	if err := sig.Validate(markPrice, m.cfg.MaxLeverage); err != nil {
		m.logger.Warn("Signal rejected", zap.Error(err))
		return err
	}

	switch sig.Action {
	case signal.ActionClose:
		if m.state.Flat() {
			m.logger.Debug("Close requested while flat, nothing to do")
			return nil
		}
		return m.closeLocked(ctx, "signal close")

	case signal.ActionOpen:
		if !m.state.Flat() {
			return fmt.Errorf("%w: open requested while %s", signal.ErrInvalidSignal, m.state.Direction)
		}
		return m.enterLocked(ctx, sig, markPrice, signal.ActionOpen)

	case signal.ActionAdjust:
		if m.state.Flat() {
			return fmt.Errorf("%w: adjust requested while flat", signal.ErrInvalidSignal)
		}
		if sig.Direction != m.state.Direction {
			return fmt.Errorf("%w: adjust direction %s does not match position %s",
				signal.ErrInvalidSignal, sig.Direction, m.state.Direction)
		}
		return m.enterLocked(ctx, sig, markPrice, signal.ActionAdjust)

	case signal.ActionCloseAndReverse:
		if m.state.Flat() {
			// Nothing to reverse; treat it as a plain open.
			return m.enterLocked(ctx, sig, markPrice, signal.ActionOpen)
		}
		if sig.Direction == m.state.Direction {
			return fmt.Errorf("%w: reverse into the same direction %s", signal.ErrInvalidSignal, sig.Direction)
		}
		if err := m.closeLocked(ctx, "reversing position"); err != nil {
			return err
		}
		return m.enterLocked(ctx, sig, markPrice, signal.ActionCloseAndReverse)
	}
	return nil
}

// enterLocked opens or resizes exposure: cancel resting orders, one order to
// the exchange, then one ledger record once the fill is acknowledged.
func (m *Manager) enterLocked(ctx context.Context, sig signal.Signal, markPrice float64, action signal.Action) error {
	if err := m.exchange.CancelAllOrders(ctx, m.coin); err != nil {
		m.logger.Warn("Cancel all orders failed", zap.Error(err))
	}

	res, err := m.exchange.SubmitOrder(ctx, order.Request{
		Coin:       m.coin,
		Direction:  sig.Direction,
		Size:       sig.Strategy.PositionSizeCoin,
		Leverage:   sig.Strategy.Leverage,
		StopLoss:   sig.Strategy.StopLoss,
		TakeProfit: sig.Strategy.TakeProfit,
	})
	if err != nil {
		return fmt.Errorf("%s %s: %w", action, m.coin, err)
	}

	entry := res.FillPrice
	if entry <= 0 {
		entry = markPrice
	}
	prev := m.state
	m.state = State{
		Coin:       m.coin,
		Direction:  sig.Direction,
		Size:       sig.Strategy.PositionSizeCoin,
		EntryPrice: entry,
		StopLoss:   sig.Strategy.StopLoss,
		TakeProfit: sig.Strategy.TakeProfit,
	}
	m.logger.Info("Position entered",
		zap.String("action", string(action)), zap.String("direction", string(sig.Direction)),
		zap.Float64("size", m.state.Size), zap.Float64("entry", entry),
		zap.String("order_id", res.OrderID))

	if err := m.ledger.AppendTrade(ctx, journal.Record{
		Time:       time.Now(),
		Coin:       m.coin,
		Action:     action,
		Direction:  sig.Direction,
		Size:       m.state.Size,
		EntryPrice: entry,
		StopLoss:   m.state.StopLoss,
		TakeProfit: m.state.TakeProfit,
		OrderID:    res.OrderID,
	}); err != nil {
		m.logger.Error("Ledger append failed after fill",
			zap.String("prev_direction", string(prev.Direction)), zap.Error(err))
		return err
	}
	return nil
}

// closeLocked flattens the position with a reduce-only order and records the
// realized pnl.
func (m *Manager) closeLocked(ctx context.Context, reason string) error {
	closing := m.state

	res, err := m.exchange.SubmitOrder(ctx, order.Request{
		Coin:       m.coin,
		Direction:  closing.Direction,
		Size:       closing.Size,
		ReduceOnly: true,
	})
	if err != nil {
		return fmt.Errorf("close %s: %w", m.coin, err)
	}

	exit := res.FillPrice
	pnl := realizedPnL(closing, exit)
	m.state = State{Coin: m.coin}
	m.logger.Info("Position closed",
		zap.String("reason", reason), zap.Float64("exit", exit),
		zap.Float64("pnl", pnl), zap.String("order_id", res.OrderID))

	if err := m.ledger.AppendTrade(ctx, journal.Record{
		Time:       time.Now(),
		Coin:       m.coin,
		Action:     signal.ActionClose,
		Direction:  closing.Direction,
		Size:       closing.Size,
		EntryPrice: closing.EntryPrice,
		ExitPrice:  exit,
		PnL:        pnl,
		OrderID:    res.OrderID,
	}); err != nil {
		m.logger.Error("Ledger append failed after close", zap.Error(err))
		return err
	}
	return nil
}

func realizedPnL(s State, exit float64) float64 {
	if exit <= 0 || s.EntryPrice <= 0 {
		return 0
	}
	if s.Direction == signal.DirectionLong {
		return (exit - s.EntryPrice) * s.Size
	}
	return (s.EntryPrice - exit) * s.Size
}
