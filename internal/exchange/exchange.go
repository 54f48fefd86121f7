// Package exchange
package exchange

import (
	"context"
	"errors"

	"github.com/sepehrcode/autotrader/internal/order"
	"github.com/sepehrcode/autotrader/internal/signal"
)

// ErrExecutionFailure is returned when the execution collaborator rejects an
// order or times out. The caller must not mutate position state on this
// error; the next scheduled cycle is the retry.
var ErrExecutionFailure = errors.New("order execution failure")

// Position is the exchange-reported position for one instrument. It seeds
// the position manager on startup so ledger and exchange cannot silently
// diverge across a crash.
type Position struct {
	Coin       string
	Direction  signal.Direction // empty when flat
	Size       float64          // always >= 0; 0 iff flat
	EntryPrice float64
}

// Flat reports whether there is no exposure.
func (p Position) Flat() bool { return p.Size == 0 }

// Exchange is the interface to the execution collaborator. Implementations
// must bound every call with the context deadline.
type Exchange interface {
	Name() string
	SubmitOrder(ctx context.Context, req order.Request) (order.Result, error)
	CancelAllOrders(ctx context.Context, coin string) error
	GetCurrentPosition(ctx context.Context, coin string) (Position, error)
	GetAccountEquity(ctx context.Context) (float64, error)
	GetCurrentPrice(ctx context.Context, coin string) (float64, error)
}
