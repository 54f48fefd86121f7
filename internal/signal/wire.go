package signal

import (
	"fmt"
	"strings"
	"time"
)

// Wire types for the signal service HTTP contract:
//
//	GET /health        -> 200 {"status": "healthy"}
//	GET /signal/{coin} -> 200 Response
//
// Both the primary service and the local fallback engine speak this shape.

// TradeDecision is the wire form of a trade recommendation. A null decision
// means no action is needed this cycle.
type TradeDecision struct {
	Action     Action    `json:"action"`
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"`
	Coin       string    `json:"coin"`
	Strategy   Strategy  `json:"strategy"`
	Reason     string    `json:"reason,omitempty"`
}

// CurrentPosition is the position snapshot reported alongside a decision.
// Direction is uppercase on the wire (LONG/SHORT/FLAT).
type CurrentPosition struct {
	Size       float64 `json:"size"`
	Direction  string  `json:"direction"`
	EntryPrice float64 `json:"entry_price,omitempty"`
}

// Response is the full signal service response body.
type Response struct {
	Timestamp       int64            `json:"timestamp"`
	TradeDecision   *TradeDecision   `json:"trade_decision"`
	CurrentPosition *CurrentPosition `json:"current_position"`
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status string `json:"status"`
}

// Healthy reports whether a health body indicates a usable service.
func (h HealthResponse) Healthy() bool {
	return strings.EqualFold(h.Status, "healthy")
}

// Signal converts a wire response into the internal Signal value. A missing
// trade decision yields a hold. Shape violations return ErrInvalidSignal;
// the bracket invariant is checked later against the live mark price.
func (r Response) Signal(coin string) (Signal, error) {
	ts := r.Timestamp
	if ts == 0 {
		return Signal{}, fmt.Errorf("%w: missing timestamp", ErrInvalidSignal)
	}

	td := r.TradeDecision
	if td == nil {
		return Hold(coin, ts, "no trade decision"), nil
	}

	if !validAction(td.Action) {
		return Signal{}, fmt.Errorf("%w: unknown action %q", ErrInvalidSignal, td.Action)
	}
	if td.Confidence < 0 || td.Confidence > 1 {
		return Signal{}, fmt.Errorf("%w: confidence %.4f outside [0,1]", ErrInvalidSignal, td.Confidence)
	}
	if td.Action.IsEntry() && td.Direction != DirectionLong && td.Direction != DirectionShort {
		return Signal{}, fmt.Errorf("%w: %s requires a direction, got %q", ErrInvalidSignal, td.Action, td.Direction)
	}

	sigCoin := td.Coin
	if sigCoin == "" {
		sigCoin = coin
	}
	if !strings.EqualFold(sigCoin, coin) {
		return Signal{}, fmt.Errorf("%w: decision is for %q, requested %q", ErrInvalidSignal, td.Coin, coin)
	}

	return Signal{
		Timestamp:  ts,
		Coin:       coin,
		Action:     td.Action,
		Direction:  td.Direction,
		Confidence: td.Confidence,
		Strategy:   td.Strategy,
		Reason:     td.Reason,
	}, nil
}

// WireResponse builds the wire form of a signal, used by the local engine
// when it serves the same HTTP contract.
func WireResponse(s Signal, pos *CurrentPosition) Response {
	ts := s.Timestamp
	if ts == 0 {
		ts = time.Now().Unix()
	}
	resp := Response{Timestamp: ts, CurrentPosition: pos}
	if s.Action == ActionHold {
		return resp
	}
	resp.TradeDecision = &TradeDecision{
		Action:     s.Action,
		Direction:  s.Direction,
		Confidence: s.Confidence,
		Coin:       s.Coin,
		Strategy:   s.Strategy,
		Reason:     s.Reason,
	}
	return resp
}
