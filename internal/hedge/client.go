// Package hedge places fire-and-forget orders against a secondary liquidity
// venue to offset house exposure on freshly opened positions.
package hedge

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sidebook/sidebook/internal/domain"
)

// Client submits hedge orders over REST.
type Client struct {
	http *resty.Client
}

// NewClient creates a hedge venue client.
func NewClient(baseURL, apiKey string) *Client {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(300 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	if apiKey != "" {
		rc.SetHeader("X-API-Key", apiKey)
	}
	return &Client{http: rc}
}

type orderRequest struct {
	MarketID string  `json:"marketId"`
	Side     string  `json:"side"`
	Stake    float64 `json:"stake"`
	Price    float64 `json:"price"`
}

// PlaceHedge submits an order mirroring the player's position. Callers treat
// failures as advisory; the position is already escrowed by the time a hedge
// is attempted.
func (c *Client) PlaceHedge(ctx context.Context, order domain.HedgeOrder) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(orderRequest{
			MarketID: order.MarketID,
			Side:     string(order.Side),
			Stake:    order.Stake,
			Price:    order.Price,
		}).
		Post("/orders")
	if err != nil {
		return fmt.Errorf("hedge: place order: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("hedge: place order: status %d", resp.StatusCode())
	}
	return nil
}

// Compile-time interface check.
var _ domain.HedgeVenue = (*Client)(nil)
