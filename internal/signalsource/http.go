package signalsource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sepehrcode/autotrader/internal/signal"
)

// HTTPSource talks to a signal service over its HTTP contract:
// GET /health for the probe, GET /signal/{coin} for the decision.
type HTTPSource struct {
	name          string
	baseURL       string
	httpClient    *http.Client
	healthTimeout time.Duration
	logger        *zap.Logger
}

const (
	defaultResponseTimeout = 15 * time.Second
	defaultHealthTimeout   = 3 * time.Second
)

func NewHTTPSource(name, baseURL string, responseTimeout, healthTimeout time.Duration, logger *zap.Logger) *HTTPSource {
	if responseTimeout <= 0 {
		responseTimeout = defaultResponseTimeout
	}
	if healthTimeout <= 0 {
		healthTimeout = defaultHealthTimeout
	}
	return &HTTPSource{
		name:          name,
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{Timeout: responseTimeout},
		healthTimeout: healthTimeout,
		logger:        logger,
	}
}

func (s *HTTPSource) Name() string { return s.name }

// Health probes /health under its own short timeout. Anything other than a
// 200 with a healthy status is an error.
func (s *HTTPSource) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.healthTimeout)
	defer cancel()

	var body signal.HealthResponse
	if err := s.getJSON(ctx, "/health", &body); err != nil {
		return fmt.Errorf("%s health check: %w", s.name, err)
	}
	if !body.Healthy() {
		return fmt.Errorf("%s health check: status %q", s.name, body.Status)
	}
	return nil
}

// Get fetches and decodes the signal for coin. Non-200, decode failure, and
// shape violations are all errors; the caller decides whether to fall back.
func (s *HTTPSource) Get(ctx context.Context, coin string) (signal.Signal, error) {
	var resp signal.Response
	if err := s.getJSON(ctx, "/signal/"+strings.ToUpper(coin), &resp); err != nil {
		return signal.Signal{}, fmt.Errorf("%s signal fetch for %s: %w", s.name, coin, err)
	}

	sig, err := resp.Signal(coin)
	if err != nil {
		return signal.Signal{}, fmt.Errorf("%s signal for %s: %w", s.name, coin, err)
	}
	sig.Source = s.name
	return sig, nil
}

func (s *HTTPSource) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
