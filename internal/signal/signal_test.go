package signal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOpenLong() Signal {
	return Signal{
		Timestamp:  1700000000,
		Coin:       "BTC",
		Action:     ActionOpen,
		Direction:  DirectionLong,
		Confidence: 0.7,
		Strategy: Strategy{
			PositionSizeCoin: 0.02,
			Leverage:         3,
			StopLoss:         49000,
			TakeProfit:       53000,
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Signal)
		entry   float64
		wantErr bool
	}{
		{
			name:   "valid open long",
			mutate: func(s *Signal) {},
			entry:  50000,
		},
		{
			name: "valid open short",
			mutate: func(s *Signal) {
				s.Direction = DirectionShort
				s.Strategy.StopLoss = 51000
				s.Strategy.TakeProfit = 47000
			},
			entry: 50000,
		},
		{
			name:   "hold needs no bracket",
			mutate: func(s *Signal) { s.Action = ActionHold; s.Strategy = Strategy{} },
			entry:  50000,
		},
		{
			name:   "close needs no bracket",
			mutate: func(s *Signal) { s.Action = ActionClose; s.Strategy = Strategy{} },
			entry:  50000,
		},
		{
			name:    "long bracket inverted",
			mutate:  func(s *Signal) { s.Strategy.StopLoss = 53000; s.Strategy.TakeProfit = 49000 },
			entry:   50000,
			wantErr: true,
		},
		{
			name:    "long stop above entry",
			mutate:  func(s *Signal) { s.Strategy.StopLoss = 50500 },
			entry:   50000,
			wantErr: true,
		},
		{
			name: "short bracket inverted",
			mutate: func(s *Signal) {
				s.Direction = DirectionShort
				// Long-style bracket on a short: must be rejected.
			},
			entry:   50000,
			wantErr: true,
		},
		{
			name:    "leverage above cap",
			mutate:  func(s *Signal) { s.Strategy.Leverage = 6 },
			entry:   50000,
			wantErr: true,
		},
		{
			name:    "zero leverage",
			mutate:  func(s *Signal) { s.Strategy.Leverage = 0 },
			entry:   50000,
			wantErr: true,
		},
		{
			name:    "confidence above one",
			mutate:  func(s *Signal) { s.Confidence = 1.2 },
			entry:   50000,
			wantErr: true,
		},
		{
			name:    "missing direction on open",
			mutate:  func(s *Signal) { s.Direction = "" },
			entry:   50000,
			wantErr: true,
		},
		{
			name:    "zero size on open",
			mutate:  func(s *Signal) { s.Strategy.PositionSizeCoin = 0 },
			entry:   50000,
			wantErr: true,
		},
		{
			name:    "unknown action",
			mutate:  func(s *Signal) { s.Action = "liquidate" },
			entry:   50000,
			wantErr: true,
		},
		{
			name:    "adjust obeys bracket invariant",
			mutate:  func(s *Signal) { s.Action = ActionAdjust; s.Strategy.StopLoss = 50500 },
			entry:   50000,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validOpenLong()
			tt.mutate(&s)
			err := s.Validate(tt.entry, 5)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSignal)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResponseDecode(t *testing.T) {
	body := `{
		"timestamp": 1700000000,
		"trade_decision": {
			"action": "open",
			"direction": "long",
			"confidence": 0.7,
			"coin": "BTC",
			"strategy": {
				"position_size_coin": 0.02,
				"leverage": 3.0,
				"stop_loss": 49000.0,
				"take_profit": 53000.0
			}
		},
		"current_position": {"size": 0.0, "direction": "FLAT", "entry_price": 0.0}
	}`

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(body), &resp))

	sig, err := resp.Signal("BTC")
	require.NoError(t, err)
	assert.Equal(t, ActionOpen, sig.Action)
	assert.Equal(t, DirectionLong, sig.Direction)
	assert.InDelta(t, 0.7, sig.Confidence, 1e-9)
	assert.InDelta(t, 49000.0, sig.Strategy.StopLoss, 1e-9)
	assert.InDelta(t, 53000.0, sig.Strategy.TakeProfit, 1e-9)
	assert.NoError(t, sig.Validate(50000, 5))
}

func TestResponseDecodeNoDecision(t *testing.T) {
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(`{"timestamp": 1700000000, "trade_decision": null}`), &resp))

	sig, err := resp.Signal("ETH")
	require.NoError(t, err)
	assert.Equal(t, ActionHold, sig.Action)
	assert.Zero(t, sig.Confidence)
	assert.Equal(t, "ETH", sig.Coin)
}

func TestResponseDecodeInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing timestamp", `{"trade_decision": null}`},
		{"unknown action", `{"timestamp": 1, "trade_decision": {"action": "yolo", "direction": "long", "confidence": 0.5, "coin": "BTC", "strategy": {}}}`},
		{"confidence out of range", `{"timestamp": 1, "trade_decision": {"action": "open", "direction": "long", "confidence": 1.5, "coin": "BTC", "strategy": {}}}`},
		{"wrong coin", `{"timestamp": 1, "trade_decision": {"action": "open", "direction": "long", "confidence": 0.5, "coin": "DOGE", "strategy": {}}}`},
		{"entry without direction", `{"timestamp": 1, "trade_decision": {"action": "open", "confidence": 0.5, "coin": "BTC", "strategy": {}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp Response
			require.NoError(t, json.Unmarshal([]byte(tt.body), &resp))
			_, err := resp.Signal("BTC")
			assert.ErrorIs(t, err, ErrInvalidSignal)
		})
	}
}

func TestWireResponseRoundTrip(t *testing.T) {
	s := validOpenLong()
	resp := WireResponse(s, &CurrentPosition{Size: 0, Direction: "FLAT"})

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded Response
	require.NoError(t, json.Unmarshal(data, &decoded))

	got, err := decoded.Signal("BTC")
	require.NoError(t, err)
	assert.Equal(t, s.Action, got.Action)
	assert.Equal(t, s.Strategy, got.Strategy)
}

func TestWireResponseHoldHasNoDecision(t *testing.T) {
	resp := WireResponse(Hold("BTC", 42, "degraded"), nil)
	assert.Nil(t, resp.TradeDecision)
	assert.EqualValues(t, 42, resp.Timestamp)
}
