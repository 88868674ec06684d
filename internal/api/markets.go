package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DefaultPageSize is the default number of markets listed per command.
const DefaultPageSize = 5

// GetMarkets fetches a page of markets. A {"success": false} body is
// returned as a *RemoteError.
func (c *Client) GetMarkets(ctx context.Context, opts GetMarketsOptions) ([]Market, error) {
	query := url.Values{}

	if tags := NormalizeTags(opts.Tags); len(tags) > 0 {
		query.Set("tags", strings.Join(tags, ","))
	}
	if opts.Sort != "" {
		query.Set("sort", opts.Sort)
	}
	if opts.Order != "" {
		query.Set("order", opts.Order)
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Limit > 0 || opts.Offset > 0 {
		query.Set("offset", strconv.Itoa(opts.Offset))
	}

	var resp MarketsResponse
	if err := c.get(ctx, "/api/markets", query, &resp); err != nil {
		return nil, fmt.Errorf("get markets: %w", err)
	}

	if !resp.Success {
		return nil, fmt.Errorf("get markets: %w", &RemoteError{Message: resp.Error})
	}

	return resp.Data.Markets, nil
}

// GetRecentMarkets fetches the newest markets matching tags.
func (c *Client) GetRecentMarkets(ctx context.Context, tags []string) ([]Market, error) {
	return c.GetMarkets(ctx, RecentMarkets(tags, c.pageSize))
}
