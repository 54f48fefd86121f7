package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sepehrcode/autotrader/internal/order"
	"github.com/sepehrcode/autotrader/internal/signal"
)

// PaperExchange simulates fills against an externally supplied mark price.
// It is the default execution collaborator for unattended dry runs: same
// interface, no capital at risk.
type PaperExchange struct {
	mu          sync.Mutex
	equity      float64
	slippagePct float64 // e.g. 0.05 for 0.05%
	marks       map[string]float64
	positions   map[string]Position
	nextOrderID int
	logger      *zap.Logger
}

func NewPaperExchange(startingEquity, slippagePct float64, logger *zap.Logger) *PaperExchange {
	return &PaperExchange{
		equity:      startingEquity,
		slippagePct: slippagePct,
		marks:       make(map[string]float64),
		positions:   make(map[string]Position),
		logger:      logger,
	}
}

func (p *PaperExchange) Name() string { return "paper" }

// SetMarkPrice updates the price the next fill will execute around.
func (p *PaperExchange) SetMarkPrice(coin string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marks[coin] = price
}

func (p *PaperExchange) GetCurrentPrice(ctx context.Context, coin string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.marks[coin]
	if !ok || price <= 0 {
		return 0, fmt.Errorf("no mark price for %s", coin)
	}
	return price, nil
}

func (p *PaperExchange) GetAccountEquity(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.equity, nil
}

func (p *PaperExchange) GetCurrentPosition(ctx context.Context, coin string) (Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positions[coin], nil
}

func (p *PaperExchange) CancelAllOrders(ctx context.Context, coin string) error {
	// Paper fills are immediate; there is never a resting order to cancel.
	return nil
}

// SubmitOrder fills immediately at the mark price adjusted by slippage.
// Reduce-only requests close the tracked position and realize pnl into
// equity; entry requests replace it.
func (p *PaperExchange) SubmitOrder(ctx context.Context, req order.Request) (order.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	mark, ok := p.marks[req.Coin]
	if !ok || mark <= 0 {
		return order.Result{}, fmt.Errorf("%w: no mark price for %s", ErrExecutionFailure, req.Coin)
	}
	if req.Size <= 0 {
		return order.Result{}, fmt.Errorf("%w: non-positive size %.8f", ErrExecutionFailure, req.Size)
	}

	fill := p.fillPrice(mark, req)
	p.nextOrderID++
	res := order.Result{
		Accepted:  true,
		OrderID:   fmt.Sprintf("paper-%d", p.nextOrderID),
		FillPrice: fill,
		Timestamp: time.Now(),
	}

	if req.ReduceOnly {
		pos := p.positions[req.Coin]
		if pos.Flat() {
			return order.Result{}, fmt.Errorf("%w: no position in %s to reduce", ErrExecutionFailure, req.Coin)
		}
		pnl := realizedPnL(pos, fill)
		p.equity += pnl
		delete(p.positions, req.Coin)
		p.logger.Info("Paper close filled",
			zap.String("coin", req.Coin), zap.Float64("fill", fill),
			zap.Float64("pnl", pnl), zap.Float64("equity", p.equity))
		return res, nil
	}

	p.positions[req.Coin] = Position{
		Coin:       req.Coin,
		Direction:  req.Direction,
		Size:       req.Size,
		EntryPrice: fill,
	}
	p.logger.Info("Paper entry filled",
		zap.String("coin", req.Coin), zap.String("direction", string(req.Direction)),
		zap.Float64("size", req.Size), zap.Float64("fill", fill))
	return res, nil
}

// fillPrice moves the mark against the taker by the configured slippage.
func (p *PaperExchange) fillPrice(mark float64, req order.Request) float64 {
	adj := p.slippagePct / 100
	buying := req.Direction == signal.DirectionLong
	if req.ReduceOnly {
		buying = !buying
	}
	if buying {
		return mark * (1 + adj)
	}
	return mark * (1 - adj)
}

func realizedPnL(pos Position, exit float64) float64 {
	if pos.Direction == signal.DirectionLong {
		return (exit - pos.EntryPrice) * pos.Size
	}
	return (pos.EntryPrice - exit) * pos.Size
}
