package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

// fakeMarket serves the kline and ticker endpoints with a controllable
// price.
type fakeMarket struct {
	price atomic.Value // float64
	srv   *httptest.Server
}

func newFakeMarket(t *testing.T, price float64) *fakeMarket {
	t.Helper()
	fm := &fakeMarket{}
	fm.price.Store(price)
	fm.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := fm.price.Load().(float64)
		switch r.URL.Path {
		case "/klines":
			rows := make([][]any, 0, 60)
			base := time.Now().Add(-60 * time.Hour)
			for i := 0; i < 60; i++ {
				rows = append(rows, []any{
					float64(base.Add(time.Duration(i) * time.Hour).UnixMilli()),
					"0", "0", "0", fmt.Sprintf("%.2f", p), "0",
				})
			}
			json.NewEncoder(w).Encode(rows)
		case "/ticker/price":
			fmt.Fprintf(w, `{"symbol": "BTCUSDT", "price": "%.2f"}`, p)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(fm.srv.Close)
	return fm
}

type stubSource struct {
	sig signal.Signal
	err error
}

func (s *stubSource) Name() string                     { return "stub" }
func (s *stubSource) Health(ctx context.Context) error { return nil }
func (s *stubSource) Get(ctx context.Context, coin string) (signal.Signal, error) {
	return s.sig, s.err
}

type harness struct {
	sched  *Scheduler
	ex     *exchange.PaperExchange
	ledger *journal.MemoryLedger
	source *stubSource
	mkt    *fakeMarket
	m      *metrics.Metrics
}

func newHarness(t *testing.T, price float64) *harness {
	t.Helper()
	mkt := newFakeMarket(t, price)
	client := market.NewClient(mkt.srv.URL, time.Second, zap.NewNop())
	ex := exchange.NewPaperExchange(10000, 0, zap.NewNop())
	ledger := journal.NewMemoryLedger()
	manager := position.NewManager("BTC", position.DefaultConfig(), ex, ledger, zap.NewNop())
	source := &stubSource{sig: signal.Hold("BTC", time.Now().Unix(), "")}
	failover := signalsource.NewFailover([]signalsource.Source{source}, time.Second, zap.NewNop())
	m := metrics.New(prometheus.NewRegistry())

	sched := New(Config{Coin: "BTC", Interval: time.Hour}, client, nil,
		failover, manager, ex, notifier.Noop{}, m, zap.NewNop())
	return &harness{sched: sched, ex: ex, ledger: ledger, source: source, mkt: mkt, m: m}
}

func openLong() signal.Signal {
	return signal.Signal{
		Timestamp:  time.Now().Unix(),
		Coin:       "BTC",
		Action:     signal.ActionOpen,
		Direction:  signal.DirectionLong,
		Confidence: 0.7,
		Strategy:   signal.Strategy{PositionSizeCoin: 0.1, Leverage: 2, StopLoss: 49000, TakeProfit: 53000},
	}
}

func TestCycleOpensPosition(t *testing.T) {
	h := newHarness(t, 50000)
	h.source.sig = openLong()

	h.sched.cycle(context.Background())

	pos, err := h.ex.GetCurrentPosition(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, signal.DirectionLong, pos.Direction)

	trades, err := h.ledger.Trades(context.Background(), "BTC")
	require.NoError(t, err)
	require.Len(t, trades, 1)

	assert.InDelta(t, 1.0, testutil.ToFloat64(h.m.Cycles.WithLabelValues("BTC", metrics.CycleOK)), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(h.m.Orders.WithLabelValues("BTC", "open")), 1e-9)

	recent := h.sched.Recent()
	require.NotEmpty(t, recent)
	assert.Equal(t, "open", recent[0].Action)
}

func TestCycleHoldIsQuiet(t *testing.T) {
	h := newHarness(t, 50000)

	h.sched.cycle(context.Background())
	h.sched.cycle(context.Background())

	trades, err := h.ledger.Trades(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.InDelta(t, 2.0, testutil.ToFloat64(h.m.Cycles.WithLabelValues("BTC", metrics.CycleOK)), 1e-9)
}

func TestCycleDegradedOnSignalUnavailable(t *testing.T) {
	h := newHarness(t, 50000)
	h.source.err = errors.New("service down")

	h.sched.cycle(context.Background())

	assert.InDelta(t, 1.0, testutil.ToFloat64(h.m.Cycles.WithLabelValues("BTC", metrics.CycleDegraded)), 1e-9)
	assert.False(t, h.sched.Halted())
}

func TestCycleBracketBreachCloses(t *testing.T) {
	h := newHarness(t, 50000)
	h.source.sig = openLong()
	h.sched.cycle(context.Background())

	// Next cycle sees the price through the stop; the hold signal changes
	// nothing but the bracket check flattens the position.
	h.source.sig = signal.Hold("BTC", time.Now().Unix(), "")
	h.mkt.price.Store(48900.0)
	h.sched.cycle(context.Background())

	pos, err := h.ex.GetCurrentPosition(context.Background(), "BTC")
	require.NoError(t, err)
	assert.True(t, pos.Flat())

	trades, err := h.ledger.Trades(context.Background(), "BTC")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, signal.ActionClose, trades[1].Action)
	assert.Negative(t, trades[1].PnL)
}

func TestCyclePersistenceFailureHalts(t *testing.T) {
	h := newHarness(t, 50000)
	h.source.sig = openLong()
	h.ledger.FailAppend = true

	h.sched.cycle(context.Background())
	assert.True(t, h.sched.Halted())

	// A halted scheduler admits no further cycles: the halting failure and
	// the refused admission both count as halted.
	h.ledger.FailAppend = false
	h.sched.cycle(context.Background())
	assert.InDelta(t, 2.0, testutil.ToFloat64(h.m.Cycles.WithLabelValues("BTC", metrics.CycleHalted)), 1e-9)

	trades, err := h.ledger.Trades(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestRunStopsBetweenCycles(t *testing.T) {
	h := newHarness(t, 50000)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.sched.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func TestActivityRing(t *testing.T) {
	r := newActivityRing(3)
	for i := 0; i < 5; i++ {
		r.add(Activity{Coin: "BTC", Action: fmt.Sprintf("a%d", i)})
	}

	recent := r.recent()
	require.Len(t, recent, 3)
	assert.Equal(t, "a4", recent[0].Action)
	assert.Equal(t, "a2", recent[2].Action)
}
