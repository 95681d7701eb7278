// Package price resolves unit USD token prices from the price service.
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/inoutflow/internal/domain"
)

// Client is an HTTP client for the price service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a price client for baseURL, e.g. "http://localhost:8080".
// A zero timeout defaults to 10 seconds.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type priceResponse struct {
	Price decimal.NullDecimal `json:"price"`
}

// Price returns the USD price of token on chain at the given time. A 404, a
// null price or a zero price all yield a nil price.
func (c *Client) Price(ctx context.Context, chain, token string, at time.Time) (*decimal.Decimal, error) {
	q := url.Values{}
	q.Set("chain", chain)
	q.Set("token", strings.ToLower(token))
	q.Set("timestamp", strconv.FormatInt(at.Unix(), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/price?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("price: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price: get %s/%s: %w", chain, token, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("price: read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price: get %s/%s: unexpected status %d: %s",
			chain, token, resp.StatusCode, truncate(string(body), 200))
	}

	var out priceResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("price: decode response: %w", err)
	}
	if !out.Price.Valid || out.Price.Decimal.IsZero() {
		return nil, nil
	}
	p := out.Price.Decimal
	return &p, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ domain.PriceLookup = (*Client)(nil)
