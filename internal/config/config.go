// Package config
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

/*
YAML config example:
mode: "paper"
coins: ["BTC", "ETH"]
cycle_interval: 1h
market_base_url: "https://api.binance.us/api/v3"
ws_base_url: "wss://stream.binance.com:9443/ws"
signal_service_url: "http://signal-service:8000"
confidence_threshold: 0.5
max_leverage: 5.0
min_notional_usd: 100.0
risk_fraction: 0.02
reward_risk_ratio: 3.0
ledger_backend: "file"
ledger_dir: "data"
metrics_addr: ":9090"
*/

// Duration wraps time.Duration so YAML configs can say "30m" or "1h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Mode  string   `yaml:"mode"` // paper only, live is a future backend
	Coins []string `yaml:"coins"`

	CycleInterval Duration `yaml:"cycle_interval"`
	KlineInterval string   `yaml:"kline_interval"`
	KlineLimit    int      `yaml:"kline_limit"`

	MarketBaseURL string   `yaml:"market_base_url"`
	MarketTimeout Duration `yaml:"market_timeout"`
	WSBaseURL     string   `yaml:"ws_base_url"`
	TickFeed      bool     `yaml:"tick_feed"`
	TickMaxAge    Duration `yaml:"tick_max_age"`

	SignalServiceURL      string   `yaml:"signal_service_url"`
	SignalResponseTimeout Duration `yaml:"signal_response_timeout"`
	SignalHealthTimeout   Duration `yaml:"signal_health_timeout"`
	AcquireDeadline       Duration `yaml:"acquire_deadline"`
	StartupHealthWait     Duration `yaml:"startup_health_wait"`

	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	MaxLeverage         float64 `yaml:"max_leverage"`
	MinNotionalUSD      float64 `yaml:"min_notional_usd"`
	RiskFraction        float64 `yaml:"risk_fraction"`
	RewardRiskRatio     float64 `yaml:"reward_risk_ratio"`

	LedgerBackend string `yaml:"ledger_backend"` // file or postgres
	LedgerDir     string `yaml:"ledger_dir"`
	DBConnStr     string `yaml:"db_conn_str"`
	DBMaxOpen     int    `yaml:"db_max_open"`
	DBMaxIdle     int    `yaml:"db_max_idle"`

	PaperEquity     float64 `yaml:"paper_equity"`
	SlippagePercent float64 `yaml:"slippage_percent"`

	MetricsAddr    string `yaml:"metrics_addr"`
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id"`
	LogLevel       string `yaml:"log_level"`
}

// Load builds the configuration from flags, with env vars for secrets. A
// -config YAML file, when given, replaces the flag values wholesale.
func Load() (Config, error) {
	mode := flag.String("mode", "paper", "Mode: paper (live is not wired yet)")
	coinsFlag := flag.String("coins", "BTC", "Comma-separated list of coins to trade")
	cycleInterval := flag.Duration("cycle-interval", time.Hour, "Decision cycle period")
	klineInterval := flag.String("kline-interval", "1h", "Candle interval for the price series")
	klineLimit := flag.Int("kline-limit", 100, "Candles fetched per refresh")
	marketBaseURL := flag.String("market-url", "https://api.binance.us/api/v3", "Market data REST base URL")
	marketTimeout := flag.Duration("market-timeout", 10*time.Second, "Market data request timeout")
	wsBaseURL := flag.String("ws-url", "wss://stream.binance.com:9443/ws", "Market data websocket base URL")
	tickFeed := flag.Bool("tick-feed", false, "Keep a websocket tick feed for marking prices")
	tickMaxAge := flag.Duration("tick-max-age", 30*time.Second, "How fresh a tick must be to mark with")
	signalURL := flag.String("signal-url", "", "Primary signal service base URL (empty disables the primary)")
	signalResponseTimeout := flag.Duration("signal-timeout", 15*time.Second, "Signal fetch timeout")
	signalHealthTimeout := flag.Duration("signal-health-timeout", 3*time.Second, "Signal health probe timeout")
	acquireDeadline := flag.Duration("acquire-deadline", 30*time.Second, "Hard deadline for signal acquisition per cycle")
	startupHealthWait := flag.Duration("startup-health-wait", time.Minute, "Max backoff while waiting for the primary source at startup")
	confidenceThreshold := flag.Float64("confidence-threshold", 0.5, "Minimum confidence to act on an entry signal")
	maxLeverage := flag.Float64("max-leverage", 5.0, "Maximum accepted signal leverage")
	minNotionalUSD := flag.Float64("min-notional", 100.0, "Minimum trade notional in USD")
	riskFraction := flag.Float64("risk-fraction", 0.02, "Fraction of equity risked per trade")
	rewardRiskRatio := flag.Float64("reward-risk-ratio", 3.0, "Take profit distance as a multiple of the stop distance")
	ledgerBackend := flag.String("ledger", "file", "Ledger backend: file or postgres")
	ledgerDir := flag.String("ledger-dir", "data", "Directory for the file ledger")
	dbMaxOpen := flag.Int("db-max-open", 10, "Max open DB connections")
	dbMaxIdle := flag.Int("db-max-idle", 5, "Max idle DB connections")
	paperEquity := flag.Float64("paper-equity", 10000.0, "Starting equity for the paper exchange")
	slippagePercent := flag.Float64("slippage-percent", 0.05, "Simulated slippage percent per fill")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics listen address")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	configFile := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	if *configFile != "" {
		data, err := os.ReadFile(*configFile)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
		fileCfg.fillSecrets()
		return fileCfg, fileCfg.Validate()
	}

	cfg := Config{
		Mode:                  *mode,
		Coins:                 splitCoins(*coinsFlag),
		CycleInterval:         Duration(*cycleInterval),
		KlineInterval:         *klineInterval,
		KlineLimit:            *klineLimit,
		MarketBaseURL:         *marketBaseURL,
		MarketTimeout:         Duration(*marketTimeout),
		WSBaseURL:             *wsBaseURL,
		TickFeed:              *tickFeed,
		TickMaxAge:            Duration(*tickMaxAge),
		SignalServiceURL:      *signalURL,
		SignalResponseTimeout: Duration(*signalResponseTimeout),
		SignalHealthTimeout:   Duration(*signalHealthTimeout),
		AcquireDeadline:       Duration(*acquireDeadline),
		StartupHealthWait:     Duration(*startupHealthWait),
		ConfidenceThreshold:   *confidenceThreshold,
		MaxLeverage:           *maxLeverage,
		MinNotionalUSD:        *minNotionalUSD,
		RiskFraction:          *riskFraction,
		RewardRiskRatio:       *rewardRiskRatio,
		LedgerBackend:         *ledgerBackend,
		LedgerDir:             *ledgerDir,
		DBMaxOpen:             *dbMaxOpen,
		DBMaxIdle:             *dbMaxIdle,
		PaperEquity:           *paperEquity,
		SlippagePercent:       *slippagePercent,
		MetricsAddr:           *metricsAddr,
		LogLevel:              *logLevel,
	}
	cfg.fillSecrets()
	return cfg, cfg.Validate()
}

// fillSecrets pulls credentials from the environment so they never live in
// files or flags.
func (c *Config) fillSecrets() {
	if c.DBConnStr == "" {
		c.DBConnStr = os.Getenv("DB_CONN_STR")
	}
	if c.TelegramToken == "" {
		c.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	}
	if c.TelegramChatID == "" {
		c.TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")
	}
}

// Validate rejects configurations the agent cannot run safely with.
func (c Config) Validate() error {
	if c.Mode != "paper" {
		return fmt.Errorf("unsupported mode %q", c.Mode)
	}
	if len(c.Coins) == 0 {
		return fmt.Errorf("at least one coin is required")
	}
	if c.CycleInterval <= 0 {
		return fmt.Errorf("cycle interval must be positive, got %v", c.CycleInterval.Std())
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold %.2f outside [0,1]", c.ConfidenceThreshold)
	}
	if c.MaxLeverage <= 0 {
		return fmt.Errorf("max leverage must be positive, got %.2f", c.MaxLeverage)
	}
	if c.RiskFraction <= 0 || c.RiskFraction >= 1 {
		return fmt.Errorf("risk fraction %.4f outside (0,1)", c.RiskFraction)
	}
	if c.RewardRiskRatio <= 0 {
		return fmt.Errorf("reward/risk ratio must be positive, got %.2f", c.RewardRiskRatio)
	}
	switch c.LedgerBackend {
	case "file":
		if c.LedgerDir == "" {
			return fmt.Errorf("file ledger requires -ledger-dir")
		}
	case "postgres":
		if c.DBConnStr == "" {
			return fmt.Errorf("postgres ledger requires DB_CONN_STR")
		}
	default:
		return fmt.Errorf("unknown ledger backend %q", c.LedgerBackend)
	}
	return nil
}

func splitCoins(s string) []string {
	var coins []string
	for _, coin := range strings.Split(s, ",") {
		if coin = strings.TrimSpace(strings.ToUpper(coin)); coin != "" {
			coins = append(coins, coin)
		}
	}
	return coins
}
