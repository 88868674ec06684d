package api

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("https://api.example.com/", "test-key")

		if c.baseURL != "https://api.example.com" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "https://api.example.com")
		}
		if c.apiKey != "test-key" {
			t.Errorf("apiKey = %q, want %q", c.apiKey, "test-key")
		}
		if c.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 30*time.Second)
		}
		if c.maxRetries != 3 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 3)
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
		if c.limiter == nil {
			t.Error("limiter should not be nil")
		}
	})

	t.Run("with options", func(t *testing.T) {
		var logs bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logs, nil))
		c := NewClient("https://api.example.com", "key",
			WithTimeout(15*time.Second),
			WithRetries(10, 500*time.Millisecond),
			WithLogger(logger),
			WithRateLimit(2, 4),
		)
		if c.httpClient.Timeout != 15*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 15*time.Second)
		}
		if c.maxRetries != 10 || c.retryBackoff != 500*time.Millisecond {
			t.Errorf("retries = %d/%v, want 10/500ms", c.maxRetries, c.retryBackoff)
		}
		c.logger.Info("probe")
		if !strings.Contains(logs.String(), "component=onit_api") {
			t.Errorf("logger not set correctly, got %q", logs.String())
		}
		if c.limiter.Limit() != 2 || c.limiter.Burst() != 4 {
			t.Errorf("limiter = %v/%d, want 2/4", c.limiter.Limit(), c.limiter.Burst())
		}
	})

	t.Run("with custom HTTP client", func(t *testing.T) {
		customClient := &http.Client{Timeout: 10 * time.Second}
		c := NewClient("https://api.example.com", "", WithHTTPClient(customClient))
		if c.httpClient != customClient {
			t.Error("custom HTTP client not set")
		}
	})
}

// TestAPIError tests the APIError type.
func TestAPIError(t *testing.T) {
	err := &APIError{StatusCode: 404, Message: "Not Found"}
	if got, want := err.Error(), "onit api error 404: Not Found"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	tests := []struct {
		code     int
		expected bool
	}{
		{500, true},
		{502, true},
		{503, true},
		{429, true},
		{400, false},
		{401, false},
		{404, false},
		{499, false},
	}

	for _, tt := range tests {
		err := &APIError{StatusCode: tt.code}
		if got := err.IsRetryable(); got != tt.expected {
			t.Errorf("IsRetryable() for status %d = %v, want %v", tt.code, got, tt.expected)
		}
	}
}

func TestSend(t *testing.T) {
	t.Run("successful request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Accept") != "application/json" {
				t.Errorf("Accept header = %q, want %q", r.Header.Get("Accept"), "application/json")
			}
			if !strings.HasPrefix(r.Header.Get("User-Agent"), "onit-agent/") {
				t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
			}
			if r.Header.Get("Authorization") != "Bearer test-key" {
				t.Errorf("Authorization header = %q, want %q", r.Header.Get("Authorization"), "Bearer test-key")
			}
			w.Write([]byte(`{"status": "ok"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "test-key")
		body, err := c.send(context.Background(), http.MethodGet, "/test", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != `{"status": "ok"}` {
			t.Errorf("body = %q, want %q", string(body), `{"status": "ok"}`)
		}
	})

	t.Run("request without API key", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "" {
				t.Errorf("Authorization header should be empty, got %q", r.Header.Get("Authorization"))
			}
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "")
		if _, err := c.send(context.Background(), http.MethodGet, "/test", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("4xx error uses API message", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"success": false, "error": "invalid api key"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "bad")
		_, err := c.send(context.Background(), http.MethodGet, "/test", nil)

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if apiErr.StatusCode != 401 {
			t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, 401)
		}
		if apiErr.Message != "invalid api key" {
			t.Errorf("Message = %q, want %q", apiErr.Message, "invalid api key")
		}
	})

	t.Run("5xx error without JSON body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`internal error`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		_, err := c.send(context.Background(), http.MethodGet, "/test", nil)

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if apiErr.Message != "Internal Server Error" {
			t.Errorf("Message = %q", apiErr.Message)
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := c.send(ctx, http.MethodGet, "/test", nil)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context canceled", err)
		}
	})
}

func TestDoWithRetry(t *testing.T) {
	t.Run("retries on 5xx and succeeds", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&attempts, 1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(`{"ok": true}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(3, 10*time.Millisecond))
		body, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != `{"ok": true}` {
			t.Errorf("body = %q", string(body))
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("retries on 429", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&attempts, 1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(3, 10*time.Millisecond))
		if _, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if attempts != 2 {
			t.Errorf("attempts = %d, want 2", attempts)
		}
	})

	t.Run("honors Retry-After", func(t *testing.T) {
		var attempts int32
		var first, waited atomic.Int64
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&attempts, 1) == 1 {
				first.Store(time.Now().UnixNano())
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			waited.Store(time.Now().UnixNano() - first.Load())
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(1, time.Millisecond))
		if _, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d := time.Duration(waited.Load()); d < 900*time.Millisecond {
			t.Errorf("retried after %v, want about 1s", d)
		}
	})

	t.Run("does not retry on 4xx", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(3, 10*time.Millisecond))
		if _, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil); err == nil {
			t.Fatal("expected error, got nil")
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})

	t.Run("max retries exceeded", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(2, 10*time.Millisecond))
		_, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil)
		if err == nil || !strings.Contains(err.Error(), "max retries exceeded") {
			t.Errorf("error = %v, want max retries exceeded", err)
		}
		// 1 initial + 2 retries = 3 attempts
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})
}

func TestRateLimit(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	// One token, refilled every 10s: the second call must wait past the deadline.
	c := NewClient(server.URL, "key", WithRateLimit(0.1, 1))

	if _, err := c.send(context.Background(), http.MethodGet, "/test", nil); err != nil {
		t.Fatalf("first request failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := c.send(ctx, http.MethodGet, "/test", nil); err == nil {
		t.Fatal("expected rate limit error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

// TestGetMarkets tests the markets endpoint.
func TestGetMarkets(t *testing.T) {
	t.Run("recent markets query", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/markets" {
				t.Errorf("path = %q, want %q", r.URL.Path, "/api/markets")
			}
			q := r.URL.Query()
			want := map[string]string{
				"tags":   "nba,sports",
				"sort":   "createdAt",
				"order":  "desc",
				"limit":  "5",
				"offset": "0",
			}
			for k, v := range want {
				if q.Get(k) != v {
					t.Errorf("%s = %q, want %q", k, q.Get(k), v)
				}
			}
			w.Write([]byte(`{"success":true,"data":{"markets":[
				{"marketAddress":"0xabc","question":"Will the Lakers win?","resolutionCriteria":"Final score","bettingCutoff":null,"marketType":"normal","createdAt":"2025-07-10T12:00:00.000Z","deployer":{"id":"u1","name":"jam","pfpUrl":null}},
				{"marketAddress":"0xdef","question":"Days until rain?","marketType":"days-until","createdAt":"2025-07-09T12:00:00Z","deployer":{"id":"u2","name":"kim","pfpUrl":"https://x/y.png"}}
			]}}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		markets, err := c.GetRecentMarkets(context.Background(), []string{"NBA", " sports", "nba"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(markets) != 2 {
			t.Fatalf("len(markets) = %d, want 2", len(markets))
		}
		m := markets[0]
		if m.MarketAddress != "0xabc" || m.Question != "Will the Lakers win?" || m.MarketType != MarketTypeNormal {
			t.Errorf("markets[0] = %+v", m)
		}
		if m.Deployer.Name != "jam" || m.Deployer.PfpURL != nil {
			t.Errorf("deployer = %+v", m.Deployer)
		}
		if m.Created().IsZero() {
			t.Error("Created() should parse createdAt")
		}
		if markets[1].Deployer.PfpURL == nil {
			t.Error("markets[1].Deployer.PfpURL should be set")
		}
	})

	t.Run("no tags omits the parameter", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := r.URL.Query()["tags"]; ok {
				t.Error("tags should be omitted")
			}
			w.Write([]byte(`{"success":true,"data":{"markets":[]}}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		markets, err := c.GetRecentMarkets(context.Background(), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(markets) != 0 {
			t.Errorf("len(markets) = %d, want 0", len(markets))
		}
	})

	t.Run("page size option", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("limit"); got != "10" {
				t.Errorf("limit = %q, want 10", got)
			}
			w.Write([]byte(`{"success":true,"data":{"markets":[]}}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithPageSize(10))
		if _, err := c.GetRecentMarkets(context.Background(), nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("in-band failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success":false,"error":"unknown tag"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		_, err := c.GetRecentMarkets(context.Background(), []string{"nope"})

		if !errors.Is(err, ErrUnsuccessful) {
			t.Fatalf("error = %v, want ErrUnsuccessful", err)
		}
		var remote *RemoteError
		if !errors.As(err, &remote) || remote.Message != "unknown tag" {
			t.Errorf("remote error = %v, want unknown tag", err)
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{not json`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		_, err := c.GetRecentMarkets(context.Background(), nil)
		if err == nil || !strings.Contains(err.Error(), "unmarshal response") {
			t.Errorf("error = %v, want unmarshal error", err)
		}
	})
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", 0},
		{"3", 3 * time.Second},
		{"0", 0},
		{"-1", 0},
		{"120", maxRetryDelay},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 0},
	}
	for _, tt := range tests {
		if got := retryAfter(tt.header); got != tt.want {
			t.Errorf("retryAfter(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}
