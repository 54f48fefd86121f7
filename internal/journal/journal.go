// Package journal
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/sepehrcode/autotrader/internal/signal"
)

// ErrPersistenceFailure is returned when a ledger write fails after the
// exchange has already acknowledged an order. It is the one failure that must
// halt new-cycle admission: the ledger and the exchange may now disagree.
var ErrPersistenceFailure = errors.New("trade ledger persistence failure")

// Record is one append-only trade ledger entry, written once the execution
// collaborator acknowledges an order. Records are never mutated or deleted;
// replaying them reconstructs the current position after a restart.
type Record struct {
	Time       time.Time        `json:"time"`
	Coin       string           `json:"coin"`
	Action     signal.Action    `json:"action"`
	Direction  signal.Direction `json:"direction"`
	Size       float64          `json:"size"`
	EntryPrice float64          `json:"entry_price"`
	ExitPrice  float64          `json:"exit_price,omitempty"`
	PnL        float64          `json:"pnl,omitempty"`
	StopLoss   float64          `json:"stop_loss,omitempty"`
	TakeProfit float64          `json:"take_profit,omitempty"`
	OrderID    string           `json:"order_id"`
}

// Event is an audit entry: rejected signals, failovers, degraded cycles.
// Events are informational; Records are the source of truth.
type Event struct {
	Time        time.Time      `json:"time"`
	Type        string         `json:"type"` // e.g. "signal_rejected", "failover", "error"
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"`
}

// Ledger is the durable trade history store.
type Ledger interface {
	AppendTrade(ctx context.Context, rec Record) error
	Trades(ctx context.Context, coin string) ([]Record, error)
	LogEvent(ctx context.Context, event Event) error
}

// State is a position snapshot folded out of the ledger.
type State struct {
	Direction  signal.Direction
	Size       float64
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
}

// Flat reports whether the folded state carries no exposure.
func (s State) Flat() bool { return s.Size == 0 }

// LastState replays records in append order and returns the position that
// should currently be open. Closes zero the state; opens and adjusts replace
// it; a close_and_reverse record carries the newly opened side.
func LastState(records []Record) State {
	var st State
	for _, rec := range records {
		switch rec.Action {
		case signal.ActionOpen, signal.ActionAdjust, signal.ActionCloseAndReverse:
			st = State{
				Direction:  rec.Direction,
				Size:       rec.Size,
				EntryPrice: rec.EntryPrice,
				StopLoss:   rec.StopLoss,
				TakeProfit: rec.TakeProfit,
			}
		case signal.ActionClose:
			st = State{}
		}
	}
	return st
}
