// Package scheduler drives the fixed-period decision loop, one instance per
// coin.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sepehrcode/autotrader/internal/exchange"
	"github.com/sepehrcode/autotrader/internal/journal"
	"github.com/sepehrcode/autotrader/internal/market"
	"github.com/sepehrcode/autotrader/internal/metrics"
	"github.com/sepehrcode/autotrader/internal/notifier"
	"github.com/sepehrcode/autotrader/internal/position"
	"github.com/sepehrcode/autotrader/internal/signal"
	"github.com/sepehrcode/autotrader/internal/signalsource"
)

// Config holds per-coin loop parameters.
type Config struct {
	Coin          string
	Interval      time.Duration // cycle period, default 1h
	KlineInterval string        // candle interval for the price series
	KlineLimit    int
	TickMaxAge    time.Duration // how fresh a websocket tick must be to mark with
}

const (
	defaultInterval   = time.Hour
	defaultKlineLimit = 100
	defaultTickMaxAge = 30 * time.Second
)

// markSetter is implemented by the paper exchange so simulated fills track
// the live price.
type markSetter interface {
	SetMarkPrice(coin string, price float64)
}

// Scheduler runs one coin's cycle: refresh prices, check the bracket,
// acquire a signal, apply it, report. A persistence failure halts admission
// of new cycles until the process is restarted and reconciled; every other
// failure degrades and the next tick retries.
type Scheduler struct {
	cfg      Config
	market   *market.Client
	feed     *market.TickFeed // may be nil
	series   *market.PriceSeries
	signals  *signalsource.Failover
	manager  *position.Manager
	exchange exchange.Exchange
	notify   notifier.Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger

	halted   atomic.Bool
	activity *activityRing
}

func New(cfg Config, mkt *market.Client, feed *market.TickFeed, signals *signalsource.Failover,
	manager *position.Manager, ex exchange.Exchange, notify notifier.Notifier,
	m *metrics.Metrics, logger *zap.Logger) *Scheduler {

	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.KlineInterval == "" {
		cfg.KlineInterval = "1h"
	}
	if cfg.KlineLimit <= 0 {
		cfg.KlineLimit = defaultKlineLimit
	}
	if cfg.TickMaxAge <= 0 {
		cfg.TickMaxAge = defaultTickMaxAge
	}
	return &Scheduler{
		cfg:      cfg,
		market:   mkt,
		feed:     feed,
		series:   market.NewPriceSeries(cfg.Coin, market.DefaultRetention),
		signals:  signals,
		manager:  manager,
		exchange: ex,
		notify:   notify,
		metrics:  m,
		logger:   logger.With(zap.String("coin", cfg.Coin)),
		activity: newActivityRing(32),
	}
}

// Halted reports whether cycle admission has stopped after a persistence
// failure.
func (s *Scheduler) Halted() bool { return s.halted.Load() }

// Recent returns the latest cycle activities, newest first.
func (s *Scheduler) Recent() []Activity { return s.activity.recent() }

// Run executes cycles until ctx is cancelled. Cancellation takes effect
// between cycles only; a cycle that is already running finishes. A tick that
// fires while a cycle is still running is discarded, never queued.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Scheduler started", zap.Duration("interval", s.cfg.Interval))
	s.cycle(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return
		case <-ticker.C:
			s.cycle(ctx)
			// Drop the tick that may have fired during a long cycle.
			select {
			case <-ticker.C:
			default:
			}
		}
	}
}

func (s *Scheduler) cycle(ctx context.Context) {
	if s.halted.Load() {
		s.logger.Error("Cycle admission halted, restart and reconcile required")
		s.metrics.Cycles.WithLabelValues(s.cfg.Coin, metrics.CycleHalted).Inc()
		return
	}
	start := time.Now()

	price, ok := s.refreshPrices(ctx)
	if !ok {
		s.record(metrics.CycleDegraded, "hold", "no usable price")
		return
	}
	if ms, isSetter := s.exchange.(markSetter); isSetter {
		ms.SetMarkPrice(s.cfg.Coin, price)
	}

	before := s.manager.Snapshot()
	if err := s.manager.MarkPrice(ctx, price); err != nil {
		s.fail("bracket check", err)
		return
	}
	if after := s.manager.Snapshot(); before.Flat() != after.Flat() {
		s.reportClose(after, price)
	}

	sig, err := s.signals.Get(ctx, s.cfg.Coin)
	degraded := errors.Is(err, signalsource.ErrSignalUnavailable)

	before = s.manager.Snapshot()
	if err := s.manager.Apply(ctx, sig, price); err != nil {
		s.fail(fmt.Sprintf("apply %s", sig.Action), err)
		return
	}
	after := s.manager.Snapshot()

	s.updateGauges(ctx, after)
	if sig.Action != signal.ActionHold && (before != after) {
		s.metrics.Orders.WithLabelValues(s.cfg.Coin, string(sig.Action)).Inc()
		s.reportTrade(sig, after, price)
	}

	result := metrics.CycleOK
	if degraded {
		result = metrics.CycleDegraded
	}
	s.record(result, string(sig.Action), sig.Reason)
	s.logger.Debug("Cycle finished",
		zap.String("action", string(sig.Action)), zap.Float64("price", price),
		zap.Duration("took", time.Since(start)))
}

// refreshPrices pulls fresh candles into the series and resolves the mark
// price: a fresh websocket tick when available, then the REST ticker, then
// the last close already in the series.
func (s *Scheduler) refreshPrices(ctx context.Context) (float64, bool) {
	samples, err := s.market.FetchKlines(ctx, s.cfg.Coin, s.cfg.KlineInterval, s.cfg.KlineLimit)
	if err != nil {
		s.logger.Warn("Candle refresh failed, keeping stale series", zap.Error(err))
	} else {
		s.series.Replace(samples)
	}

	if s.feed != nil && s.feed.HasFreshTick(s.cfg.TickMaxAge) {
		if price, _, ok := s.feed.LastTick(); ok {
			return price, true
		}
	}
	price, err := s.market.CurrentPrice(ctx, s.cfg.Coin)
	if err == nil {
		return price, true
	}
	s.logger.Warn("Price lookup failed", zap.Error(err))
	if last, ok := s.series.Last(); ok {
		return last.Close, true
	}
	return 0, false
}

func (s *Scheduler) fail(stage string, err error) {
	if errors.Is(err, journal.ErrPersistenceFailure) {
		s.halted.Store(true)
		s.logger.Error("Persistence failure, halting cycle admission",
			zap.String("stage", stage), zap.Error(err))
		s.record(metrics.CycleHalted, "halt", err.Error())
		if nerr := s.notify.SendWithRetry(fmt.Sprintf(
			"[%s] trade ledger write failed, agent halted: %v", s.cfg.Coin, err)); nerr != nil {
			s.logger.Error("Halt notification failed", zap.Error(nerr))
		}
		return
	}
	s.logger.Error("Cycle failed", zap.String("stage", stage), zap.Error(err))
	s.record(metrics.CycleError, "error", err.Error())
}

func (s *Scheduler) record(result, action, detail string) {
	s.metrics.Cycles.WithLabelValues(s.cfg.Coin, result).Inc()
	s.activity.add(Activity{Time: time.Now(), Coin: s.cfg.Coin, Action: action, Detail: detail})
}

func (s *Scheduler) updateGauges(ctx context.Context, st position.State) {
	size := st.Size
	if st.Direction == signal.DirectionShort {
		size = -size
	}
	s.metrics.OpenPosition.WithLabelValues(s.cfg.Coin).Set(size)
	if equity, err := s.exchange.GetAccountEquity(ctx); err == nil {
		s.metrics.Equity.Set(equity)
	}
}

func (s *Scheduler) reportTrade(sig signal.Signal, st position.State, price float64) {
	var msg string
	if st.Flat() {
		msg = fmt.Sprintf("[%s] %s at %.2f", s.cfg.Coin, sig.Action, price)
	} else {
		msg = fmt.Sprintf("[%s] %s %s %.6f @ %.2f (stop %.2f, take %.2f, conf %.2f)",
			s.cfg.Coin, sig.Action, st.Direction, st.Size, st.EntryPrice,
			st.StopLoss, st.TakeProfit, sig.Confidence)
	}
	if err := s.notify.SendWithRetry(msg); err != nil {
		s.logger.Warn("Trade notification failed", zap.Error(err))
	}
}

func (s *Scheduler) reportClose(st position.State, price float64) {
	s.metrics.Orders.WithLabelValues(s.cfg.Coin, string(signal.ActionClose)).Inc()
	s.activity.add(Activity{
		Time: time.Now(), Coin: s.cfg.Coin,
		Action: string(signal.ActionClose), Detail: "bracket breach",
	})
	if err := s.notify.SendWithRetry(fmt.Sprintf(
		"[%s] bracket breach closed position at %.2f", s.cfg.Coin, price)); err != nil {
		s.logger.Warn("Close notification failed", zap.Error(err))
	}
}
