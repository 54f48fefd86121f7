// Package signalsource acquires trade signals from a remote service with a
// local engine as fallback.
package signalsource

import (
	"context"
	"errors"

	"github.com/sepehrcode/autotrader/internal/signal"
)

// ErrSignalUnavailable is returned by Failover when no source produced a
// signal before the acquisition deadline. The accompanying signal is still a
// usable hold; the error exists to be logged and counted, not to stop the
// cycle.
var ErrSignalUnavailable = errors.New("no signal source available")

// Source produces a trade signal for one coin. Health is a cheap liveness
// probe run before Get so a dead source fails fast instead of burning the
// cycle deadline.
type Source interface {
	Name() string
	Health(ctx context.Context) error
	Get(ctx context.Context, coin string) (signal.Signal, error)
}
