package handler

import (
	"time"

	"github.com/sidebook/sidebook/internal/domain"
	"github.com/sidebook/sidebook/internal/service"
)

// Wire shapes for API responses. Domain types stay tag-free; the mapping
// lives here.

type marketResponse struct {
	ID             string     `json:"id"`
	Slug           string     `json:"slug"`
	Question       string     `json:"question"`
	Category       string     `json:"category,omitempty"`
	CloseAt        time.Time  `json:"closeAt"`
	ResolveAt      *time.Time `json:"resolveAt,omitempty"`
	Status         string     `json:"status"`
	OracleSource   string     `json:"oracleSource"`
	Outcome        *string    `json:"outcome,omitempty"`
	YesPrice       float64    `json:"yesPrice"`
	NoPrice        float64    `json:"noPrice"`
	Active         bool       `json:"active"`
	MaxWager       float64    `json:"maxWager"`
	HouseSpreadBps int        `json:"houseSpreadBps"`
}

func toMarketResponse(v domain.MarketView) marketResponse {
	resp := marketResponse{
		ID:             v.ID,
		Slug:           v.Slug,
		Question:       v.Question,
		Category:       v.Category,
		CloseAt:        v.CloseAt,
		ResolveAt:      v.ResolveAt,
		Status:         string(v.Status),
		OracleSource:   v.OracleSource,
		YesPrice:       v.YesPrice,
		NoPrice:        v.NoPrice,
		Active:         v.Active,
		MaxWager:       v.MaxWager,
		HouseSpreadBps: v.HouseSpreadBps,
	}
	if v.Outcome != nil {
		o := string(*v.Outcome)
		resp.Outcome = &o
	}
	return resp
}

type quoteResponse struct {
	OK               bool    `json:"ok"`
	Reason           string  `json:"reason,omitempty"`
	ReasonText       string  `json:"reasonText,omitempty"`
	MarketID         string  `json:"marketId,omitempty"`
	Side             string  `json:"side,omitempty"`
	Stake            float64 `json:"stake,omitempty"`
	Price            float64 `json:"price,omitempty"`
	Shares           float64 `json:"shares,omitempty"`
	PotentialPayout  float64 `json:"potentialPayout,omitempty"`
	SameSidePool     float64 `json:"sameSidePool"`
	OppositePool     float64 `json:"oppositePool"`
	ProjectedPayout  float64 `json:"projectedPayout,omitempty"`
	MinPayout        float64 `json:"minPayout,omitempty"`
	LiquidityWarning string  `json:"liquidityWarning,omitempty"`
}

func toQuoteResponse(res domain.QuoteResult) quoteResponse {
	if !res.OK {
		return quoteResponse{
			Reason:     string(res.Reason),
			ReasonText: res.ReasonText,
		}
	}
	q := res.Quote
	return quoteResponse{
		OK:               true,
		MarketID:         q.MarketID,
		Side:             string(q.Side),
		Stake:            q.Stake,
		Price:            q.Price,
		Shares:           q.Shares,
		PotentialPayout:  q.PotentialPayout,
		SameSidePool:     q.SameSidePool,
		OppositePool:     q.OppositePool,
		ProjectedPayout:  q.ProjectedPayout,
		MinPayout:        q.MinPayout,
		LiquidityWarning: q.LiquidityWarning,
	}
}

type positionResponse struct {
	ID                    string     `json:"id"`
	MarketID              string     `json:"marketId"`
	PlayerID              string     `json:"playerId"`
	Side                  string     `json:"side"`
	Stake                 float64    `json:"stake"`
	Price                 float64    `json:"price"`
	Shares                float64    `json:"shares"`
	Status                string     `json:"status"`
	Payout                *float64   `json:"payout,omitempty"`
	SettlementReason      string     `json:"settlementReason,omitempty"`
	EstimatedPayoutAtOpen float64    `json:"estimatedPayoutAtOpen"`
	MinPayoutAtOpen       float64    `json:"minPayoutAtOpen"`
	CreatedAt             time.Time  `json:"createdAt"`
	SettledAt             *time.Time `json:"settledAt,omitempty"`
}

func toPositionResponse(p domain.MarketPosition) positionResponse {
	return positionResponse{
		ID:                    p.ID,
		MarketID:              p.MarketID,
		PlayerID:              p.PlayerID,
		Side:                  string(p.Side),
		Stake:                 p.Stake,
		Price:                 p.Price,
		Shares:                p.Shares,
		Status:                string(p.Status),
		Payout:                p.Payout,
		SettlementReason:      p.SettlementReason,
		EstimatedPayoutAtOpen: p.EstimatedPayoutAtOpen,
		MinPayoutAtOpen:       p.MinPayoutAtOpen,
		CreatedAt:             p.CreatedAt,
		SettledAt:             p.SettledAt,
	}
}

type openPositionResponse struct {
	OK          bool              `json:"ok"`
	Reason      string            `json:"reason,omitempty"`
	ReasonText  string            `json:"reasonText,omitempty"`
	AdapterCode string            `json:"adapterCode,omitempty"`
	Position    *positionResponse `json:"position,omitempty"`
}

func toOpenPositionResponse(res service.OpenPositionResult) openPositionResponse {
	out := openPositionResponse{
		OK:          res.OK,
		Reason:      string(res.Reason),
		ReasonText:  res.ReasonText,
		AdapterCode: res.AdapterCode,
	}
	if res.Position != nil {
		p := toPositionResponse(*res.Position)
		out.Position = &p
	}
	return out
}
