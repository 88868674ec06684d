package market

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"

	"github.com/onit-labs/xmtp-bot/internal/api"
)

// Fetcher lists the newest markets for a tag set.
type Fetcher interface {
	GetRecentMarkets(ctx context.Context, tags []string) ([]api.Market, error)
}

// Config holds catalog configuration.
type Config struct {
	TTL          time.Duration // How long a listing is served without refetching
	FetchTimeout time.Duration // Bound on one shared upstream fetch (0 = none)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TTL:          time.Minute,
		FetchTimeout: 30 * time.Second,
	}
}

// Catalog caches market listings keyed by normalized tag set.
type Catalog struct {
	cfg    Config
	api    Fetcher
	clock  clock.Clock
	logger *slog.Logger

	group singleflight.Group

	mu    sync.RWMutex
	feeds map[string]*feed
}

// feed is the cached listing for one tag set.
type feed struct {
	markets   []api.Market
	fetchedAt time.Time
	seen      map[string]struct{} // market addresses ever listed
	unseen    []api.Market        // added since the last Refresh
	lastErr   error
}

// FeedStats describes one cached listing.
type FeedStats struct {
	Tags      string    `json:"tags"`
	Markets   int       `json:"markets"`
	FetchedAt time.Time `json:"fetchedAt"`
	LastError string    `json:"lastError,omitempty"`
}

// NewCatalog creates an empty catalog.
func NewCatalog(cfg Config, fetcher Fetcher, clk clock.Clock, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.New()
	}

	return &Catalog{
		cfg:    cfg,
		api:    fetcher,
		clock:  clk,
		logger: logger.With("component", "market_catalog"),
		feeds:  make(map[string]*feed),
	}
}

// Recent returns the newest markets for tags, from cache when fresh.
func (c *Catalog) Recent(ctx context.Context, tags []string) ([]api.Market, error) {
	key := api.TagKey(tags)

	c.mu.RLock()
	f, ok := c.feeds[key]
	if ok && f.lastErr == nil && c.clock.Since(f.fetchedAt) < c.cfg.TTL {
		markets := f.markets
		c.mu.RUnlock()
		return markets, nil
	}
	c.mu.RUnlock()

	markets, err := c.fetch(ctx, key)
	if err == nil {
		return markets, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if f, ok := c.feeds[key]; ok && !f.fetchedAt.IsZero() {
		c.logger.Warn("serving stale markets", "tags", key, "age", c.clock.Since(f.fetchedAt), "error", err)
		return f.markets, nil
	}
	return nil, err
}

// Refresh refetches the listing for tags and returns the markets listed since
// the previous Refresh, including ones picked up by fetches Recent triggered in
// between. The first fetch of a feed reports nothing as new.
func (c *Catalog) Refresh(ctx context.Context, tags []string) ([]api.Market, error) {
	key := api.TagKey(tags)
	if _, err := c.fetch(ctx, key); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	f := c.feeds[key]
	added := f.unseen
	f.unseen = nil
	return added, nil
}

// fetch loads one feed, collapsing concurrent calls for the same key. The
// shared fetch runs detached from ctx so one caller giving up does not fail
// the others; ctx only bounds how long this caller waits.
func (c *Catalog) fetch(ctx context.Context, key string) ([]api.Market, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		var tags []string
		if key != "" {
			tags = strings.Split(key, ",")
		}

		fctx := context.WithoutCancel(ctx)
		if c.cfg.FetchTimeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(fctx, c.cfg.FetchTimeout)
			defer cancel()
		}

		markets, err := c.api.GetRecentMarkets(fctx, tags)

		c.mu.Lock()
		defer c.mu.Unlock()

		f, ok := c.feeds[key]
		if !ok {
			f = &feed{seen: make(map[string]struct{})}
			c.feeds[key] = f
		}

		if err != nil {
			f.lastErr = err
			return nil, fmt.Errorf("fetch markets %q: %w", key, err)
		}

		first := f.fetchedAt.IsZero()
		for _, m := range markets {
			if _, ok := f.seen[m.MarketAddress]; ok {
				continue
			}
			f.seen[m.MarketAddress] = struct{}{}
			if !first {
				f.unseen = append(f.unseen, m)
			}
		}

		f.markets = markets
		f.fetchedAt = c.clock.Now()
		f.lastErr = nil

		return markets, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.([]api.Market), nil
	}
}

// Stats returns the cached feeds sorted by tag key.
func (c *Catalog) Stats() []FeedStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := make([]FeedStats, 0, len(c.feeds))
	for key, f := range c.feeds {
		s := FeedStats{
			Tags:      key,
			Markets:   len(f.markets),
			FetchedAt: f.fetchedAt,
		}
		if f.lastErr != nil {
			s.LastError = f.lastErr.Error()
		}
		stats = append(stats, s)
	}

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Tags < stats[j].Tags
	})
	return stats
}
