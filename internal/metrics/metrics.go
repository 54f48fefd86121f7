// Package metrics exposes the agent's Prometheus instrumentation.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds every instrument the agent updates. Create one per process
// with New and share it across schedulers.
type Metrics struct {
	Cycles       *prometheus.CounterVec
	Failovers    *prometheus.CounterVec
	Orders       *prometheus.CounterVec
	OpenPosition *prometheus.GaugeVec
	Equity       prometheus.Gauge
}

// Cycle result label values.
const (
	CycleOK       = "ok"
	CycleDegraded = "degraded"
	CycleError    = "error"
	CycleHalted   = "halted"
)

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_cycles_total",
			Help: "Completed decision cycles by result.",
		}, []string{"coin", "result"}),
		Failovers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_failover_total",
			Help: "Signal sources skipped during acquisition.",
		}, []string{"source"}),
		Orders: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_orders_total",
			Help: "Orders submitted to the exchange by action.",
		}, []string{"coin", "action"}),
		OpenPosition: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autotrader_open_position_size",
			Help: "Open position size in coin units, signed by direction.",
		}, []string{"coin"}),
		Equity: factory.NewGauge(prometheus.GaugeOpts{
			Name: "autotrader_account_equity_usd",
			Help: "Last observed account equity.",
		}),
	}
}

// Server serves /metrics and a trivial /health endpoint.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

func NewServer(addr string, reg *prometheus.Registry, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "healthy"}`))
	})
	return &Server{
		srv:    &http.Server{Addr: addr, Handler: mux},
		logger: logger,
	}
}

// Start runs the listener until Shutdown.
func (s *Server) Start() {
	go func() {
		s.logger.Info("Metrics server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
