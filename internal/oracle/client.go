// Package oracle implements the REST client for the external market-data
// feed and its normalization into domain markets.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sidebook/sidebook/internal/domain"
)

// Client fetches markets from the oracle's REST API.
type Client struct {
	baseURL    string
	source     string
	httpClient *http.Client
}

// NewClient creates an oracle feed client.
//
// baseURL is the feed root, e.g. "https://gamma-api.polymarket.com"; source
// tags every normalized market with the feed it came from.
func NewClient(baseURL, source string) *Client {
	return &Client{
		baseURL: baseURL,
		source:  source,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FetchMarkets returns up to limit normalized markets. The raw payload of
// each entry is preserved verbatim on the domain record.
func (c *Client) FetchMarkets(ctx context.Context, limit int) ([]domain.Market, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("oracle: fetch markets: %w", err)
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("oracle: decode markets: %w", err)
	}

	markets := make([]domain.Market, 0, len(raws))
	for _, raw := range raws {
		var am apiMarket
		if err := json.Unmarshal(raw, &am); err != nil {
			return nil, fmt.Errorf("oracle: decode market entry: %w", err)
		}
		markets = append(markets, am.toDomain(c.source, raw))
	}

	return markets, nil
}

// doGet performs a GET request against the feed and returns the body, or an
// error for any non-2xx status.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 256))
	}

	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Compile-time interface check.
var _ domain.OracleFeed = (*Client)(nil)
