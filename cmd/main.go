package main

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sepehrcode/autotrader/internal/config"
	"github.com/sepehrcode/autotrader/internal/exchange"
	"github.com/sepehrcode/autotrader/internal/journal"
	"github.com/sepehrcode/autotrader/internal/market"
	"github.com/sepehrcode/autotrader/internal/metrics"
	"github.com/sepehrcode/autotrader/internal/notifier"
	"github.com/sepehrcode/autotrader/internal/position"
	"github.com/sepehrcode/autotrader/internal/scheduler"
	"github.com/sepehrcode/autotrader/internal/signalsource"
	"github.com/sepehrcode/autotrader/internal/strategy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	metricsServer := metrics.NewServer(cfg.MetricsAddr, registry, logger)
	metricsServer.Start()

	marketClient := market.NewClient(cfg.MarketBaseURL, cfg.MarketTimeout.Std(), logger)

	ex := exchange.NewPaperExchange(cfg.PaperEquity, cfg.SlippagePercent, logger)
	logger.Info("Exchange ready", zap.String("exchange", ex.Name()),
		zap.Float64("equity", cfg.PaperEquity))

	ledger, closeLedger, err := buildLedger(cfg)
	if err != nil {
		logger.Fatal("Ledger setup failed", zap.Error(err))
	}
	defer closeLedger()

	failover := buildSignalSources(ctx, cfg, marketClient, ex, logger)
	failover.OnFailover = func(source, reason string) {
		m.Failovers.WithLabelValues(source).Inc()
	}
	waitCtx, cancelWait := context.WithTimeout(ctx, 2*cfg.StartupHealthWait.Std())
	if err := failover.WaitHealthy(waitCtx, cfg.StartupHealthWait.Std()); err != nil {
		logger.Warn("Primary source still unhealthy, starting with fallback", zap.Error(err))
	}
	cancelWait()
	if ctx.Err() != nil {
		return
	}

	var notify notifier.Notifier = notifier.Noop{}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		notify = notifier.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID)
		logger.Info("Telegram notifications enabled")
	}

	var wg sync.WaitGroup
	for _, coin := range cfg.Coins {
		manager := position.NewManager(coin, position.Config{
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			MaxLeverage:         cfg.MaxLeverage,
		}, ex, ledger, logger)
		if err := manager.Restore(ctx); err != nil {
			logger.Fatal("Position restore failed", zap.String("coin", coin), zap.Error(err))
		}

		var feed *market.TickFeed
		if cfg.TickFeed {
			feed = market.NewTickFeed(cfg.WSBaseURL, coin, logger)
			feed.Start(ctx)
		}

		sched := scheduler.New(scheduler.Config{
			Coin:          coin,
			Interval:      cfg.CycleInterval.Std(),
			KlineInterval: cfg.KlineInterval,
			KlineLimit:    cfg.KlineLimit,
			TickMaxAge:    cfg.TickMaxAge.Std(),
		}, marketClient, feed, failover, manager, ex, notify, m, logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.Run(ctx)
		}()
	}

	logger.Info("Agent running",
		zap.Strings("coins", cfg.Coins),
		zap.Duration("cycle_interval", cfg.CycleInterval.Std()))
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Metrics server shutdown failed", zap.Error(err))
	}
	logger.Info("Agent stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	zcfg.EncoderConfig.TimeKey = "ts"
	return zcfg.Build()
}

func buildLedger(cfg config.Config) (journal.Ledger, func(), error) {
	switch cfg.LedgerBackend {
	case "postgres":
		pg, err := journal.NewPostgresLedger(cfg.DBConnStr, cfg.DBMaxOpen, cfg.DBMaxIdle)
		if err != nil {
			return nil, nil, err
		}
		return pg, func() { pg.Close() }, nil
	default:
		fl, err := journal.NewFileLedger(cfg.LedgerDir)
		if err != nil {
			return nil, nil, err
		}
		return fl, func() {}, nil
	}
}

// buildSignalSources assembles the failover chain: the remote service first
// when one is configured, then the local momentum engine if its
// collaborators answer the capability check.
func buildSignalSources(ctx context.Context, cfg config.Config, marketClient *market.Client,
	ex exchange.Exchange, logger *zap.Logger) *signalsource.Failover {

	var sources []signalsource.Source
	if cfg.SignalServiceURL != "" {
		sources = append(sources, signalsource.NewHTTPSource("primary", cfg.SignalServiceURL,
			cfg.SignalResponseTimeout.Std(), cfg.SignalHealthTimeout.Std(), logger))
	}

	engine := strategy.NewMomentum(strategy.Config{
		FastSMAPeriod:   20,
		SlowSMAPeriod:   50,
		RSIPeriod:       14,
		RSIOversold:     30,
		RSIOverbought:   70,
		RiskFraction:    cfg.RiskFraction,
		RewardRiskRatio: cfg.RewardRiskRatio,
		MaxLeverage:     cfg.MaxLeverage,
		MinNotionalUSD:  cfg.MinNotionalUSD,
	}, logger)
	local := signalsource.NewLocalSource(engine, marketClient, ex,
		cfg.KlineInterval, cfg.KlineLimit, cfg.Coins[0], logger)

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := local.Health(checkCtx); err != nil {
		logger.Warn("Local engine capability check failed, running without fallback", zap.Error(err))
	} else {
		sources = append(sources, local)
		logger.Info("Local fallback engine ready", zap.String("engine", engine.String()))
	}

	return signalsource.NewFailover(sources, cfg.AcquireDeadline.Std(), logger)
}
