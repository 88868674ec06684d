package market

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/onit-labs/xmtp-bot/internal/api"
)

// mockFetcher returns canned listings per tag key.
type mockFetcher struct {
	mu       sync.Mutex
	listings map[string][]api.Market
	err      error
	calls    atomic.Int32
	block    chan struct{}
}

func (m *mockFetcher) GetRecentMarkets(ctx context.Context, tags []string) ([]api.Market, error) {
	m.calls.Add(1)
	if m.block != nil {
		<-m.block
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.listings[strings.Join(tags, ",")], nil
}

func (m *mockFetcher) set(key string, markets ...api.Market) {
	m.mu.Lock()
	m.listings[key] = markets
	m.mu.Unlock()
}

func (m *mockFetcher) fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func market(addr string) api.Market {
	return api.Market{MarketAddress: addr, Question: "Q " + addr}
}

func newTestCatalog() (*Catalog, *mockFetcher, *clock.Mock) {
	f := &mockFetcher{listings: make(map[string][]api.Market)}
	mock := clock.NewMock()
	return NewCatalog(Config{TTL: time.Minute}, f, mock, nil), f, mock
}

func TestCatalog_RecentCachesWithinTTL(t *testing.T) {
	c, f, mock := newTestCatalog()
	f.set("nba", market("0x1"), market("0x2"))
	ctx := context.Background()

	got, err := c.Recent(ctx, []string{"NBA"})
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}

	mock.Add(30 * time.Second)
	c.Recent(ctx, []string{"nba"})
	if n := f.calls.Load(); n != 1 {
		t.Errorf("calls within TTL = %d, want 1", n)
	}

	mock.Add(31 * time.Second)
	c.Recent(ctx, []string{"nba"})
	if n := f.calls.Load(); n != 2 {
		t.Errorf("calls after TTL = %d, want 2", n)
	}
}

func TestCatalog_StaleOnError(t *testing.T) {
	c, f, mock := newTestCatalog()
	f.set("", market("0x1"))
	ctx := context.Background()

	if _, err := c.Recent(ctx, nil); err != nil {
		t.Fatalf("Recent failed: %v", err)
	}

	mock.Add(2 * time.Minute)
	f.fail(errors.New("upstream down"))

	got, err := c.Recent(ctx, nil)
	if err != nil {
		t.Fatalf("expected stale listing, got error %v", err)
	}
	if len(got) != 1 || got[0].MarketAddress != "0x1" {
		t.Errorf("stale listing = %+v", got)
	}

	stats := c.Stats()
	if len(stats) != 1 || stats[0].LastError == "" {
		t.Errorf("stats = %+v, want last error recorded", stats)
	}
}

func TestCatalog_ErrorWithoutCache(t *testing.T) {
	c, f, _ := newTestCatalog()
	upstream := errors.New("upstream down")
	f.fail(upstream)

	if _, err := c.Recent(context.Background(), []string{"trending"}); !errors.Is(err, upstream) {
		t.Errorf("error = %v, want %v", err, upstream)
	}
}

func TestCatalog_RefreshReportsNewMarkets(t *testing.T) {
	c, f, _ := newTestCatalog()
	ctx := context.Background()

	f.set("trending", market("0x1"), market("0x2"))
	added, err := c.Refresh(ctx, []string{"trending"})
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if len(added) != 0 {
		t.Errorf("first refresh added = %d, want 0", len(added))
	}

	f.set("trending", market("0x3"), market("0x1"), market("0x2"))
	added, err = c.Refresh(ctx, []string{"trending"})
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if len(added) != 1 || added[0].MarketAddress != "0x3" {
		t.Errorf("added = %+v, want 0x3", added)
	}
}

func TestCatalog_ConcurrentMissesShareFetch(t *testing.T) {
	c, f, _ := newTestCatalog()
	f.set("nba", market("0x1"))
	f.block = make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Recent(context.Background(), []string{"nba"}); err != nil {
				t.Errorf("Recent failed: %v", err)
			}
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for f.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(f.block)
	wg.Wait()

	if n := f.calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestCatalog_RefreshReportsMarketsFetchedByRecent(t *testing.T) {
	c, f, mock := newTestCatalog()
	ctx := context.Background()

	f.set("trending", market("0x1"))
	if _, err := c.Refresh(ctx, []string{"trending"}); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	// A chat lookup after the TTL picks up 0x2 before the poller runs.
	mock.Add(2 * time.Minute)
	f.set("trending", market("0x2"), market("0x1"))
	if _, err := c.Recent(ctx, []string{"trending"}); err != nil {
		t.Fatalf("Recent failed: %v", err)
	}

	f.set("trending", market("0x3"), market("0x2"), market("0x1"))
	added, err := c.Refresh(ctx, []string{"trending"})
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if len(added) != 2 || added[0].MarketAddress != "0x2" || added[1].MarketAddress != "0x3" {
		t.Errorf("added = %+v, want 0x2 and 0x3", added)
	}

	added, err = c.Refresh(ctx, []string{"trending"})
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if len(added) != 0 {
		t.Errorf("repeat refresh added = %+v, want none", added)
	}
}

func TestCatalog_CancelledCallerDoesNotFailSharedFetch(t *testing.T) {
	c, f, _ := newTestCatalog()
	f.set("nba", market("0x1"))
	f.block = make(chan struct{})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Recent(firstCtx, []string{"nba"})
		firstErr <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for f.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	type outcome struct {
		markets []api.Market
		err     error
	}
	second := make(chan outcome, 1)
	go func() {
		m, err := c.Recent(context.Background(), []string{"nba"})
		second <- outcome{m, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("first caller error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first caller did not return after cancel")
	}

	close(f.block)
	select {
	case out := <-second:
		if out.err != nil {
			t.Fatalf("second caller failed: %v", out.err)
		}
		if len(out.markets) != 1 || out.markets[0].MarketAddress != "0x1" {
			t.Errorf("markets = %+v, want 0x1", out.markets)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not return")
	}

	if n := f.calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}
