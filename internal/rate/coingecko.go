// Package rate fetches the SOL/USD conversion rate used to express SOL
// amounts in fiat for analytics.
package rate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/gyaneshwarpardhi/trackrelay/internal/metrics"
)

// Coingecko reads simple prices from the CoinGecko API. Concurrent callers
// share one in-flight request.
type Coingecko struct {
	endpoint string
	client   *http.Client
	group    singleflight.Group
}

// NewCoingecko creates a fetcher for the API rooted at endpoint
// (e.g. https://api.coingecko.com/api/v3).
func NewCoingecko(endpoint string, client *http.Client) *Coingecko {
	if client == nil {
		client = http.DefaultClient
	}
	return &Coingecko{endpoint: strings.TrimRight(endpoint, "/"), client: client}
}

// SolUSD returns the current price of one SOL in USD.
func (c *Coingecko) SolUSD(ctx context.Context) (float64, error) {
	v, err, _ := c.group.Do("solana/usd", func() (interface{}, error) {
		return c.fetch(ctx, "solana", "usd")
	})
	if err != nil {
		metrics.RateFetches.WithLabelValues("error").Inc()
		return 0, err
	}
	metrics.RateFetches.WithLabelValues("ok").Inc()
	return v.(float64), nil
}

func (c *Coingecko) fetch(ctx context.Context, id, currency string) (float64, error) {
	q := url.Values{}
	q.Set("ids", id)
	q.Set("vs_currencies", currency)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("rate request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("rate fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("rate fetch: unexpected status %d", resp.StatusCode)
	}

	var body map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("rate decode: %w", err)
	}
	r := body[id][currency]
	if r <= 0 {
		return 0, fmt.Errorf("rate fetch: no %s/%s price in response", id, currency)
	}
	return r, nil
}
