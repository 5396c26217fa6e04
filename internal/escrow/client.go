// Package escrow implements the REST adapter for the external escrow
// service, the boundary through which all player money moves.
package escrow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sidebook/sidebook/internal/domain"
)

// Client talks to the escrow service. Every mutating call carries the bet ID
// so the service can deduplicate retries.
type Client struct {
	http *resty.Client
}

// NewClient creates an escrow adapter. Transient failures (network errors and
// 5xx responses) are retried with backoff; 4xx responses are returned as-is
// since they carry the adapter's rejection verdict.
func NewClient(baseURL, apiKey string) *Client {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	if apiKey != "" {
		rc.SetHeader("X-API-Key", apiKey)
	}
	return &Client{http: rc}
}

type preflightRequest struct {
	ChallengerWalletID string  `json:"challengerWalletId"`
	OpponentWalletID   string  `json:"opponentWalletId"`
	Amount             float64 `json:"amount"`
}

type preflightResponse struct {
	OK         bool   `json:"ok"`
	Reason     string `json:"reason,omitempty"`
	ReasonCode string `json:"reasonCode,omitempty"`
	ReasonText string `json:"reasonText,omitempty"`
}

// PreflightStake dry-runs a stake against both wallets without moving money.
func (c *Client) PreflightStake(ctx context.Context, req domain.EscrowPreflight) (domain.EscrowPreflightResult, error) {
	var out preflightResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(preflightRequest{
			ChallengerWalletID: req.ChallengerWalletID,
			OpponentWalletID:   req.OpponentWalletID,
			Amount:             req.Amount,
		}).
		SetResult(&out).
		SetError(&out).
		Post("/escrow/preflight")
	if err != nil {
		return domain.EscrowPreflightResult{}, fmt.Errorf("escrow: preflight: %w", err)
	}
	if resp.IsError() && out.Reason == "" && out.ReasonCode == "" {
		return domain.EscrowPreflightResult{}, fmt.Errorf("escrow: preflight: status %d", resp.StatusCode())
	}
	return domain.EscrowPreflightResult{
		OK:         out.OK,
		Reason:     out.Reason,
		ReasonCode: out.ReasonCode,
		ReasonText: out.ReasonText,
		Raw:        json.RawMessage(resp.Body()),
	}, nil
}

type lockRequest struct {
	BetID              string  `json:"betId"`
	ChallengerWalletID string  `json:"challengerWalletId"`
	OpponentWalletID   string  `json:"opponentWalletId"`
	Amount             float64 `json:"amount"`
}

type lockResponse struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// LockStake reserves the stake under the bet ID.
func (c *Client) LockStake(ctx context.Context, req domain.EscrowLock) (domain.EscrowLockResult, error) {
	var out lockResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(lockRequest{
			BetID:              req.BetID,
			ChallengerWalletID: req.ChallengerWalletID,
			OpponentWalletID:   req.OpponentWalletID,
			Amount:             req.Amount,
		}).
		SetResult(&out).
		SetError(&out).
		Post("/escrow/lock")
	if err != nil {
		return domain.EscrowLockResult{}, fmt.Errorf("escrow: lock %s: %w", req.BetID, err)
	}
	if resp.IsError() && out.Reason == "" {
		return domain.EscrowLockResult{}, fmt.Errorf("escrow: lock %s: status %d", req.BetID, resp.StatusCode())
	}
	return domain.EscrowLockResult{
		OK:     out.OK,
		Reason: out.Reason,
		Raw:    json.RawMessage(resp.Body()),
	}, nil
}

type resolveRequest struct {
	BetID          string `json:"betId"`
	WinnerWalletID string `json:"winnerWalletId"`
}

type resolveResponse struct {
	OK     bool     `json:"ok"`
	Payout *float64 `json:"payout,omitempty"`
}

// Resolve releases the escrowed funds to the winner's wallet. The payout in
// the response, when present, reflects what was actually transferred.
func (c *Client) Resolve(ctx context.Context, betID, winnerWalletID string) (domain.EscrowResolveResult, error) {
	var out resolveResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(resolveRequest{BetID: betID, WinnerWalletID: winnerWalletID}).
		SetResult(&out).
		Post("/escrow/resolve")
	if err != nil {
		return domain.EscrowResolveResult{}, fmt.Errorf("escrow: resolve %s: %w", betID, err)
	}
	if resp.IsError() {
		return domain.EscrowResolveResult{}, fmt.Errorf("escrow: resolve %s: status %d", betID, resp.StatusCode())
	}
	return domain.EscrowResolveResult{OK: out.OK, Payout: out.Payout}, nil
}

type refundRequest struct {
	BetID string `json:"betId"`
}

type refundResponse struct {
	OK bool `json:"ok"`
}

// Refund returns the escrowed stake to its owner.
func (c *Client) Refund(ctx context.Context, betID string) (domain.EscrowRefundResult, error) {
	var out refundResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(refundRequest{BetID: betID}).
		SetResult(&out).
		Post("/escrow/refund")
	if err != nil {
		return domain.EscrowRefundResult{}, fmt.Errorf("escrow: refund %s: %w", betID, err)
	}
	if resp.IsError() {
		return domain.EscrowRefundResult{}, fmt.Errorf("escrow: refund %s: status %d", betID, resp.StatusCode())
	}
	return domain.EscrowRefundResult{OK: out.OK}, nil
}

// Compile-time interface check.
var _ domain.EscrowAdapter = (*Client)(nil)
