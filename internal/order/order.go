// Package order
package order

import (
	"time"

	"github.com/sepehrcode/autotrader/internal/signal"
)

// Request is the bounded order intent handed to the execution collaborator.
// At most one request per instrument is in flight at a time; sequencing is
// enforced by the cycle, not by locking.
type Request struct {
	Coin       string           `json:"coin"`
	Direction  signal.Direction `json:"direction"`
	Size       float64          `json:"size"`
	Leverage   float64          `json:"leverage"`
	StopLoss   float64          `json:"stop_loss"`
	TakeProfit float64          `json:"take_profit"`
	ReduceOnly bool             `json:"reduce_only"`
}

// Result is the execution collaborator's acknowledgment.
type Result struct {
	Accepted  bool      `json:"accepted"`
	OrderID   string    `json:"order_id"`
	FillPrice float64   `json:"fill_price"`
	Timestamp time.Time `json:"timestamp"`
}
