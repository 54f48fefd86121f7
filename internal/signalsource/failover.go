package signalsource

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sepehrcode/autotrader/internal/signal"
)

// Failover tries each source in order until one yields a signal. The whole
// acquisition is bounded by a hard deadline; when it expires or every source
// fails, the caller still gets a hold signal so the cycle can complete.
type Failover struct {
	sources  []Source
	deadline time.Duration
	logger   *zap.Logger

	// OnFailover is called once per skipped source with the skip reason.
	// Used for the failover counter; may be nil.
	OnFailover func(source, reason string)
}

const defaultAcquireDeadline = 30 * time.Second

func NewFailover(sources []Source, deadline time.Duration, logger *zap.Logger) *Failover {
	if deadline <= 0 {
		deadline = defaultAcquireDeadline
	}
	return &Failover{sources: sources, deadline: deadline, logger: logger}
}

// Get acquires a signal for coin. The returned signal is always usable: when
// every source fails it is signal.Hold with confidence 0 and the error is
// ErrSignalUnavailable, which callers log and count but do not act on.
func (f *Failover) Get(ctx context.Context, coin string) (signal.Signal, error) {
	ctx, cancel := context.WithTimeout(ctx, f.deadline)
	defer cancel()

	for _, src := range f.sources {
		if err := ctx.Err(); err != nil {
			f.skip(coin, "deadline", fmt.Sprintf("acquisition deadline reached: %v", err))
			break
		}
		if err := src.Health(ctx); err != nil {
			f.skip(coin, src.Name(), err.Error())
			continue
		}
		sig, err := src.Get(ctx, coin)
		if err != nil {
			f.skip(coin, src.Name(), err.Error())
			continue
		}
		f.logger.Debug("Signal acquired",
			zap.String("coin", coin), zap.String("source", src.Name()),
			zap.String("action", string(sig.Action)), zap.Float64("confidence", sig.Confidence))
		return sig, nil
	}

	f.logger.Warn("All signal sources failed, degrading to hold", zap.String("coin", coin))
	return signal.Hold(coin, time.Now().Unix(), "all signal sources unavailable"), ErrSignalUnavailable
}

func (f *Failover) skip(coin, source, reason string) {
	f.logger.Warn("Signal source skipped",
		zap.String("coin", coin), zap.String("source", source), zap.String("reason", reason))
	if f.OnFailover != nil {
		f.OnFailover(source, reason)
	}
}

// WaitHealthy blocks until the first source passes its health probe, backing
// off between attempts (1s doubling to maxWait). Used at startup so the
// scheduler does not begin cycling against a service that is still booting.
// Returns the context error if it is cancelled first.
func (f *Failover) WaitHealthy(ctx context.Context, maxWait time.Duration) error {
	if len(f.sources) == 0 {
		return fmt.Errorf("no signal sources configured")
	}
	if maxWait <= 0 {
		maxWait = time.Minute
	}

	backoff := time.Second
	for {
		err := f.sources[0].Health(ctx)
		if err == nil {
			return nil
		}
		f.logger.Info("Waiting for signal source",
			zap.String("source", f.sources[0].Name()),
			zap.Duration("retry_in", backoff), zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxWait {
			backoff = maxWait
		}
	}
}
