package signalsource

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sepehrcode/autotrader/internal/exchange"
	"github.com/sepehrcode/autotrader/internal/market"
	"github.com/sepehrcode/autotrader/internal/signal"
	"github.com/sepehrcode/autotrader/internal/strategy"
)

// LocalSource runs the momentum engine in-process against live market data.
// It is the fallback of last resort before degrading to hold.
type LocalSource struct {
	engine      *strategy.Momentum
	marketData  *market.Client
	exchange    exchange.Exchange
	interval    string
	klineLimit  int
	healthProbe string // coin used by the capability check
	logger      *zap.Logger
}

func NewLocalSource(engine *strategy.Momentum, marketData *market.Client, ex exchange.Exchange, interval string, klineLimit int, healthProbe string, logger *zap.Logger) *LocalSource {
	if interval == "" {
		interval = "1h"
	}
	if klineLimit <= 0 {
		klineLimit = 100
	}
	return &LocalSource{
		engine:      engine,
		marketData:  marketData,
		exchange:    ex,
		interval:    interval,
		klineLimit:  klineLimit,
		healthProbe: healthProbe,
		logger:      logger,
	}
}

func (s *LocalSource) Name() string { return "local" }

// Health verifies the engine's collaborators are reachable: one market price
// lookup and one equity read. Run at startup as the capability check and
// again before each fallback use.
func (s *LocalSource) Health(ctx context.Context) error {
	if _, err := s.marketData.CurrentPrice(ctx, s.healthProbe); err != nil {
		return fmt.Errorf("local source market data: %w", err)
	}
	if _, err := s.exchange.GetAccountEquity(ctx); err != nil {
		return fmt.Errorf("local source exchange: %w", err)
	}
	return nil
}

// Get evaluates the momentum engine for coin from fresh candles, the live
// price, and the exchange's view of equity and position.
func (s *LocalSource) Get(ctx context.Context, coin string) (signal.Signal, error) {
	samples, err := s.marketData.FetchKlines(ctx, coin, s.interval, s.klineLimit)
	if err != nil {
		return signal.Signal{}, fmt.Errorf("local source: %w", err)
	}
	price, err := s.marketData.CurrentPrice(ctx, coin)
	if err != nil {
		return signal.Signal{}, fmt.Errorf("local source: %w", err)
	}
	equity, err := s.exchange.GetAccountEquity(ctx)
	if err != nil {
		return signal.Signal{}, fmt.Errorf("local source: %w", err)
	}
	pos, err := s.exchange.GetCurrentPosition(ctx, coin)
	if err != nil {
		return signal.Signal{}, fmt.Errorf("local source: %w", err)
	}

	closes := make([]float64, len(samples))
	for i, sample := range samples {
		closes[i] = sample.Close
	}

	sig := s.engine.Evaluate(coin, closes, price, equity, pos.Direction)
	sig.Source = s.Name()
	return sig, nil
}
