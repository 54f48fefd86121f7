// Package signal
package signal

import (
	"errors"
	"fmt"
)

// ErrInvalidSignal is returned when a signal violates its shape or bracket
// invariants. Invalid signals are rejected, never repaired.
var ErrInvalidSignal = errors.New("invalid signal")

// Action is the trade action requested by a signal.
type Action string

const (
	ActionOpen   Action = "open"
	ActionClose  Action = "close"
	ActionHold   Action = "hold"
	ActionAdjust Action = "adjust"
	// ActionCloseAndReverse closes the current position and opens the
	// opposite direction within the same cycle.
	ActionCloseAndReverse Action = "close_and_reverse"
)

// Direction of an open or adjust action.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Strategy carries the sizing and risk parameters attached to a signal.
type Strategy struct {
	PositionSizeCoin float64 `json:"position_size_coin"`
	Leverage         float64 `json:"leverage"`
	StopLoss         float64 `json:"stop_loss"`
	TakeProfit       float64 `json:"take_profit"`
}

// Signal is one cycle's trade recommendation. It is a value: produced once,
// never mutated.
type Signal struct {
	Timestamp  int64     `json:"timestamp"`
	Coin       string    `json:"coin"`
	Action     Action    `json:"action"`
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"`
	Strategy   Strategy  `json:"strategy"`
	Reason     string    `json:"reason,omitempty"`
	Source     string    `json:"source,omitempty"`
}

// Hold returns the degraded no-op signal for a coin (confidence 0). It is
// what every failure path in signal acquisition collapses to.
func Hold(coin string, ts int64, reason string) Signal {
	return Signal{
		Timestamp:  ts,
		Coin:       coin,
		Action:     ActionHold,
		Confidence: 0,
		Reason:     reason,
	}
}

// IsEntry reports whether the action establishes or resizes exposure and
// therefore requires direction, sizing, and bracket data.
func (a Action) IsEntry() bool {
	return a == ActionOpen || a == ActionAdjust || a == ActionCloseAndReverse
}

func validAction(a Action) bool {
	switch a {
	case ActionOpen, ActionClose, ActionHold, ActionAdjust, ActionCloseAndReverse:
		return true
	}
	return false
}

// Validate checks the signal against the given entry price and leverage cap.
// For entry actions the stop loss and take profit must bracket the entry:
// stop < entry < take for long, reversed for short.
func (s Signal) Validate(entry, maxLeverage float64) error {
	if !validAction(s.Action) {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidSignal, s.Action)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("%w: confidence %.4f outside [0,1]", ErrInvalidSignal, s.Confidence)
	}
	if !s.Action.IsEntry() {
		return nil
	}

	if s.Direction != DirectionLong && s.Direction != DirectionShort {
		return fmt.Errorf("%w: %s requires a direction, got %q", ErrInvalidSignal, s.Action, s.Direction)
	}
	if s.Strategy.PositionSizeCoin <= 0 {
		return fmt.Errorf("%w: non-positive position size %.8f", ErrInvalidSignal, s.Strategy.PositionSizeCoin)
	}
	if s.Strategy.Leverage <= 0 || s.Strategy.Leverage > maxLeverage {
		return fmt.Errorf("%w: leverage %.2f outside (0, %.2f]", ErrInvalidSignal, s.Strategy.Leverage, maxLeverage)
	}
	if s.Strategy.StopLoss <= 0 || s.Strategy.TakeProfit <= 0 {
		return fmt.Errorf("%w: non-positive stop loss or take profit", ErrInvalidSignal)
	}
	if entry <= 0 {
		return fmt.Errorf("%w: non-positive entry price %.8f", ErrInvalidSignal, entry)
	}

	switch s.Direction {
	case DirectionLong:
		if !(s.Strategy.StopLoss < entry && entry < s.Strategy.TakeProfit) {
			return fmt.Errorf("%w: long bracket inverted (stop=%.2f entry=%.2f take=%.2f)",
				ErrInvalidSignal, s.Strategy.StopLoss, entry, s.Strategy.TakeProfit)
		}
	case DirectionShort:
		if !(s.Strategy.TakeProfit < entry && entry < s.Strategy.StopLoss) {
			return fmt.Errorf("%w: short bracket inverted (stop=%.2f entry=%.2f take=%.2f)",
				ErrInvalidSignal, s.Strategy.StopLoss, entry, s.Strategy.TakeProfit)
		}
	}
	return nil
}
