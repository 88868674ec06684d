package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/onit-labs/xmtp-bot/internal/supervisor"
	"github.com/onit-labs/xmtp-bot/internal/version"
)

// maxRetryDelay caps both computed backoff and server Retry-After hints.
const maxRetryDelay = 30 * time.Second

// APIError is a non-2xx answer from the Onit API.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
	RetryAfter time.Duration // from the Retry-After header, if any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("onit api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether the request may succeed if sent again.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// send performs one rate-limited request and returns the raw body of a 2xx answer.
func (c *Client) send(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header = http.Header{
		"Accept":     {"application/json"},
		"User-Agent": {version.UserAgent()},
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 400 {
		return body, nil
	}

	return nil, &APIError{
		StatusCode: resp.StatusCode,
		Message:    errorMessage(resp.StatusCode, body),
		Body:       body,
		RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
	}
}

// errorMessage prefers the API's own {"error": "..."} text.
func errorMessage(status int, body []byte) string {
	var env struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil && env.Error != "" {
		return env.Error
	}
	return http.StatusText(status)
}

// retryAfter parses the delta-seconds form of Retry-After.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxRetryDelay)
}

// doWithRetry sends a request, retrying 429 and 5xx answers with jittered
// exponential backoff. A Retry-After hint replaces the computed delay.
func (c *Client) doWithRetry(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	policy := supervisor.Backoff{Base: c.retryBackoff, Max: maxRetryDelay, Jitter: 0.5}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := policy.Delay(attempt, rand.Float64())
			var apiErr *APIError
			if errors.As(lastErr, &apiErr) && apiErr.RetryAfter > 0 {
				delay = apiErr.RetryAfter
			}
			c.logger.Debug("retrying request", "path", path, "attempt", attempt, "delay", delay, "error", lastErr)

			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}

		body, err := c.send(ctx, method, path, query)
		if err == nil {
			return body, nil
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.IsRetryable() {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// get decodes the JSON body of a retried GET into result.
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	body, err := c.doWithRetry(ctx, http.MethodGet, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
