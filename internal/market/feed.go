package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// TickFeed streams trades for one instrument over a websocket and keeps only
// the most recent tick. Consumers poll LastTick on their own schedule instead
// of being pushed every trade, so a slow consumer can never fall behind.
type TickFeed struct {
	wsURL  string
	coin   string
	logger *zap.Logger

	mu        sync.RWMutex
	lastPrice float64
	lastTime  time.Time
}

// NewTickFeed creates a feed for coin against the trade stream at wsURL
// (e.g. wss://stream.binance.com:9443/ws).
func NewTickFeed(wsURL, coin string, logger *zap.Logger) *TickFeed {
	return &TickFeed{
		wsURL:  strings.TrimRight(wsURL, "/"),
		coin:   coin,
		logger: logger.With(zap.String("coin", coin)),
	}
}

// Start runs the read loop until ctx is cancelled, reconnecting with backoff
// on failure.
func (f *TickFeed) Start(ctx context.Context) {
	go f.run(ctx)
}

func (f *TickFeed) run(ctx context.Context) {
	backoff := time.Second
	const maxBackoff = time.Minute

	for {
		if ctx.Err() != nil {
			return
		}

		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return
		}
		f.logger.Warn("Tick feed disconnected, reconnecting",
			zap.Error(err), zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (f *TickFeed) connectAndRead(ctx context.Context) error {
	streamURL := fmt.Sprintf("%s/%s@trade", f.wsURL, strings.ToLower(pairSymbol(f.coin)))
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", streamURL, err)
	}
	defer conn.Close()

	f.logger.Info("Tick feed connected", zap.String("url", streamURL))

	// Close the connection when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := f.handleMessage(msg); err != nil {
			f.logger.Warn("Dropping malformed tick", zap.Error(err))
		}
	}
}

// handleMessage parses one trade event and updates the last tick.
func (f *TickFeed) handleMessage(msg []byte) error {
	var trade struct {
		Event     string `json:"e"`
		Price     string `json:"p"`
		TradeTime int64  `json:"T"`
	}
	if err := json.Unmarshal(msg, &trade); err != nil {
		return err
	}
	if trade.Event != "trade" {
		return nil
	}

	price, err := strconv.ParseFloat(trade.Price, 64)
	if err != nil {
		return fmt.Errorf("parse trade price %q: %w", trade.Price, err)
	}
	if price <= 0 {
		return fmt.Errorf("non-positive trade price %.8f", price)
	}

	f.mu.Lock()
	f.lastPrice = price
	f.lastTime = time.UnixMilli(trade.TradeTime)
	f.mu.Unlock()
	return nil
}

// LastTick returns the most recent price and its time. ok is false until the
// first tick arrives.
func (f *TickFeed) LastTick() (price float64, at time.Time, ok bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastPrice, f.lastTime, f.lastPrice > 0
}

// HasFreshTick reports whether a tick newer than maxAge is available.
func (f *TickFeed) HasFreshTick(maxAge time.Duration) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastPrice > 0 && time.Since(f.lastTime) <= maxAge
}
