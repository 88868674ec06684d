package api

import (
	"errors"
	"time"
)

// ErrUnsuccessful wraps {"success": false} envelopes.
var ErrUnsuccessful = errors.New("onit api request unsuccessful")

// RemoteError is an in-band {"success": false, "error": "..."} response.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return ErrUnsuccessful.Error()
	}
	return e.Message
}

func (e *RemoteError) Unwrap() error {
	return ErrUnsuccessful
}

// MarketsResponse from GET /api/markets
type MarketsResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    struct {
		Markets []Market `json:"markets"`
	} `json:"data"`
}

// MarketType is the resolution style of a market.
type MarketType string

const (
	MarketTypeNormal     MarketType = "normal"
	MarketTypeDaysUntil  MarketType = "days-until"
	MarketTypeSpread     MarketType = "spread"
	MarketTypePercentage MarketType = "percentage"
)

// Market represents a market from the Onit API.
type Market struct {
	MarketAddress      string     `json:"marketAddress"`
	Question           string     `json:"question"`
	ResolutionCriteria string     `json:"resolutionCriteria"`
	BettingCutoff      *string    `json:"bettingCutoff"`
	MarketType         MarketType `json:"marketType"`
	CreatedAt          string     `json:"createdAt"` // ISO 8601
	Deployer           Deployer   `json:"deployer"`
}

// Created parses CreatedAt, returning the zero time if it is invalid.
func (m Market) Created() time.Time {
	t, err := time.Parse(time.RFC3339Nano, m.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Deployer is the account that created a market.
type Deployer struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	PfpURL *string `json:"pfpUrl"`
}

// GetMarketsOptions configures a GetMarkets request.
type GetMarketsOptions struct {
	Tags   []string
	Sort   string // e.g. "createdAt"
	Order  string // "asc" or "desc"
	Limit  int
	Offset int
}

// RecentMarkets returns the options for the newest markets matching tags.
func RecentMarkets(tags []string, limit int) GetMarketsOptions {
	return GetMarketsOptions{
		Tags:   tags,
		Sort:   "createdAt",
		Order:  "desc",
		Limit:  limit,
		Offset: 0,
	}
}
