package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client fetches candles and spot prices over the exchange's public REST API
// (Binance kline shape). All requests carry a bounded timeout.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

const defaultRequestTimeout = 10 * time.Second

// NewClient creates a market data client against baseURL
// (e.g. https://api.binance.us/api/v3).
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// pairSymbol maps a coin to its quoted pair (BTC -> BTCUSDT).
func pairSymbol(coin string) string {
	coin = strings.ToUpper(coin)
	if strings.HasSuffix(coin, "USDT") {
		return coin
	}
	return coin + "USDT"
}

// FetchKlines returns up to limit closed candles for coin at the given
// interval, oldest first.
func (c *Client) FetchKlines(ctx context.Context, coin, interval string, limit int) ([]Sample, error) {
	q := url.Values{}
	q.Set("symbol", pairSymbol(coin))
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))

	var raw [][]any
	if err := c.getJSON(ctx, "/klines?"+q.Encode(), &raw); err != nil {
		return nil, fmt.Errorf("fetch klines for %s: %w", coin, err)
	}

	samples := make([]Sample, 0, len(raw))
	for _, k := range raw {
		// Kline rows are [openTime, open, high, low, close, volume, ...]
		// with prices as strings.
		if len(k) < 5 {
			continue
		}
		ts, ok := k[0].(float64)
		if !ok {
			continue
		}
		closeStr, ok := k[4].(string)
		if !ok {
			continue
		}
		closePrice, err := strconv.ParseFloat(closeStr, 64)
		if err != nil {
			c.logger.Warn("Skipping kline with unparsable close",
				zap.String("coin", coin), zap.String("close", closeStr))
			continue
		}
		samples = append(samples, Sample{
			Time:  time.UnixMilli(int64(ts)),
			Close: closePrice,
		})
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("fetch klines for %s: empty response", coin)
	}
	return samples, nil
}

// CurrentPrice returns the latest traded price for coin.
func (c *Client) CurrentPrice(ctx context.Context, coin string) (float64, error) {
	q := url.Values{}
	q.Set("symbol", pairSymbol(coin))

	var body struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := c.getJSON(ctx, "/ticker/price?"+q.Encode(), &body); err != nil {
		return 0, fmt.Errorf("fetch price for %s: %w", coin, err)
	}

	price, err := strconv.ParseFloat(body.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("fetch price for %s: parse %q: %w", coin, body.Price, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("fetch price for %s: non-positive price %.8f", coin, price)
	}
	return price, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
