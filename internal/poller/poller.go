package poller

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onit-labs/xmtp-bot/internal/api"
)

// Refresher refetches one market feed and returns markets new since the last refresh.
type Refresher interface {
	Refresh(ctx context.Context, tags []string) ([]api.Market, error)
}

// FeedHandler receives the result of each feed refresh.
type FeedHandler interface {
	HandleFeed(feed string, added []api.Market, err error)
}

// FeedHandlerFunc is a function adapter for FeedHandler.
type FeedHandlerFunc func(feed string, added []api.Market, err error)

func (f FeedHandlerFunc) HandleFeed(feed string, added []api.Market, err error) {
	f(feed, added, err)
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Poll interval (default: 5m)
	Concurrency int           // Max concurrent requests (default: 4)
	Timeout     time.Duration // Per-request timeout (default: 30s)
	Feeds       []string      // Comma-separated tag sets; "" is the unfiltered feed
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    5 * time.Minute,
		Concurrency: 4,
		Timeout:     30 * time.Second,
		Feeds:       []string{"", "trending"},
	}
}

// Poller periodically refreshes market feeds.
type Poller struct {
	cfg       Config
	refresher Refresher
	handler   FeedHandler
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, refresher Refresher, handler FeedHandler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Poller{
		cfg:       cfg,
		refresher: refresher,
		handler:   handler,
		logger:    logger.With("component", "market_poller"),
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("market poller started",
		"interval", p.cfg.Interval,
		"feeds", len(p.cfg.Feeds),
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("market poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.pollAll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollAll()
		}
	}
}

// pollAll refreshes every feed with bounded concurrency.
func (p *Poller) pollAll() {
	if len(p.cfg.Feeds) == 0 {
		p.logger.Debug("no market feeds to poll")
		return
	}

	start := time.Now()
	var refreshed, added, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)

	for _, feed := range p.cfg.Feeds {
		if p.ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			n, err := p.pollFeed(feed)
			if err != nil {
				p.logger.Warn("failed to refresh market feed",
					"feed", feed,
					"error", err,
				)
				failed.Add(1)
				return nil
			}
			refreshed.Add(1)
			added.Add(int64(n))
			return nil
		})
	}

	g.Wait()

	p.logger.Info("poll cycle complete",
		"feeds", len(p.cfg.Feeds),
		"refreshed", refreshed.Load(),
		"new_markets", added.Load(),
		"errors", failed.Load(),
		"duration", time.Since(start),
	)
}

// pollFeed refreshes one feed and hands the result to the handler.
func (p *Poller) pollFeed(feed string) (int, error) {
	ctx := p.ctx
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(p.ctx, p.cfg.Timeout)
		defer cancel()
	}

	newMarkets, err := p.refresher.Refresh(ctx, splitFeed(feed))

	if p.handler != nil {
		p.handler.HandleFeed(feed, newMarkets, err)
	}
	if err != nil {
		return 0, err
	}

	for _, m := range newMarkets {
		p.logger.Info("new market listed",
			"feed", feed,
			"market", m.MarketAddress,
			"question", m.Question,
		)
	}
	return len(newMarkets), nil
}

func splitFeed(feed string) []string {
	if feed == "" {
		return nil
	}
	return strings.Split(feed, ",")
}
