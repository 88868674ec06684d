package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onit-labs/xmtp-bot/internal/version"
)

// Client is an XMTP gateway client.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	env        string
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the REST request timeout and the stream handshake timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
		c.dialer.HandshakeTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient replaces the REST client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a gateway client. baseURL is the gateway's http(s) root.
func NewClient(baseURL, apiKey, env string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("gateway url must be http or https, got %q", baseURL)
	}

	c := &Client{
		baseURL:    u,
		apiKey:     apiKey,
		env:        env,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "chat")
	return c, nil
}

// Identity returns the agent's own inbox.
func (c *Client) Identity(ctx context.Context) (Identity, error) {
	var id Identity
	if err := c.do(ctx, http.MethodGet, "/v1/identity", nil, &id); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// Send posts a text message to a conversation.
func (c *Client) Send(ctx context.Context, conversationID, content string) error {
	path := "/v1/conversations/" + url.PathEscape(conversationID) + "/messages"
	return c.do(ctx, http.MethodPost, path, map[string]string{"content": content}, nil)
}

// Sync asks the gateway to pull conversations from the network.
func (c *Client) Sync(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/conversations/sync", nil, nil)
}

// Conversation looks up a conversation by id. It returns ErrNotFound when the
// gateway does not know it.
func (c *Client) Conversation(ctx context.Context, id string) (Conversation, error) {
	var conv Conversation
	err := c.do(ctx, http.MethodGet, "/v1/conversations/"+url.PathEscape(id), nil, &conv)
	if err != nil {
		return Conversation{}, err
	}
	return conv, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header = c.header()
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		return &GatewayError{StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, data)}
	}

	if result == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func (c *Client) header() http.Header {
	h := http.Header{}
	h.Set("User-Agent", version.UserAgent())
	if c.apiKey != "" {
		h.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.env != "" {
		h.Set("X-XMTP-Env", c.env)
	}
	return h
}

func errorMessage(status int, body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return http.StatusText(status)
}
