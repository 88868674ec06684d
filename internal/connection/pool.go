package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// Dialer opens a connected Client for a conversation. It must honour ctx.
type Dialer func(ctx context.Context, conversationID, url string) (Client, error)

// Observer receives pool lifecycle notifications (metrics).
type Observer interface {
	ConnectionOpened(conversationID string)
	ConnectionClosed(conversationID, reason string)
	RequestDone(outcome string, elapsed time.Duration)
}

// Close reasons reported to the Observer.
const (
	ReasonRemote   = "remote"
	ReasonIdle     = "idle"
	ReasonWorn     = "max_requests"
	ReasonCapacity = "capacity"
	ReasonShutdown = "shutdown"
	ReasonFailed   = "connect_failed"
)

// Request outcomes reported to the Observer.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure" // in-band success:false
	OutcomeTimeout   = "timeout"
	OutcomeClosed    = "closed"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
)

// connRecord is one pooled connection.
type connRecord struct {
	id         string
	client     Client
	connecting bool
	ready      chan struct{} // closed when the handshake succeeds or fails
	done       chan struct{} // closed when the record leaves the pool
	lastUsed   time.Time
	requests   int
	tools      []string
}

// Pool keeps one bot connection per conversation and correlates requests
// and responses over it.
type Pool struct {
	cfg      PoolConfig
	logger   *slog.Logger
	clock    clock.Clock
	dial     Dialer
	observer Observer

	mu        sync.Mutex
	conns     map[string]*connRecord
	pending   *correlator
	destroyed bool

	started      bool
	stop         chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithClock sets the clock used for timestamps and timers.
func WithClock(c clock.Clock) PoolOption {
	return func(p *Pool) {
		p.clock = c
	}
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(d Dialer) PoolOption {
	return func(p *Pool) {
		p.dial = d
	}
}

// WithObserver sets the lifecycle observer.
func WithObserver(o Observer) PoolOption {
	return func(p *Pool) {
		p.observer = o
	}
}

// NewPool creates a Connection Pool. Call Start to begin sweeping.
func NewPool(cfg PoolConfig, logger *slog.Logger, opts ...PoolOption) *Pool {
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		cfg:     cfg,
		logger:  logger.With("component", "connection_pool"),
		clock:   clock.New(),
		conns:   make(map[string]*connRecord),
		pending: newCorrelator(),
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.dial == nil {
		p.dial = p.dialWebSocket
	}

	return p
}

// dialWebSocket is the default Dialer.
func (p *Pool) dialWebSocket(ctx context.Context, conversationID, url string) (Client, error) {
	cfg := p.cfg.Client
	cfg.URL = url

	c := NewClient(cfg, p.logger.With("conversation_id", conversationID))
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Start begins the periodic sweep. It stops on Shutdown or when ctx is done.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return ErrPoolDestroyed
	}
	if p.started {
		return nil
	}
	p.started = true

	ticker := p.clock.Ticker(p.cfg.SweepInterval)
	p.wg.Add(1)
	go p.sweepLoop(ctx, ticker)

	p.logger.Info("connection pool started",
		"max_connections", p.cfg.MaxConnections,
		"idle_timeout", p.cfg.IdleTimeout,
		"sweep_interval", p.cfg.SweepInterval,
	)
	return nil
}

func (p *Pool) sweepLoop(ctx context.Context, ticker *clock.Ticker) {
	defer p.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

// Acquire returns the conversation's open connection, waiting for an
// in-progress handshake or opening a new socket as needed.
func (p *Pool) Acquire(ctx context.Context, conversationID string) (Client, error) {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return nil, ErrPoolDestroyed
	}

	var stale []Client
	if rec, ok := p.conns[conversationID]; ok {
		switch {
		case rec.connecting:
			ready := rec.ready
			p.mu.Unlock()
			return p.await(ctx, rec, ready)
		case rec.client.IsConnected():
			rec.lastUsed = p.clock.Now()
			client := rec.client
			p.mu.Unlock()
			return client, nil
		default:
			// Dead socket whose close has not been processed yet.
			stale = append(stale, p.removeLocked(rec, ErrConnectionClosed))
		}
	}

	rec := &connRecord{
		id:         conversationID,
		connecting: true,
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
		lastUsed:   p.clock.Now(),
	}
	p.conns[conversationID] = rec
	p.mu.Unlock()

	closeClients(stale)

	return p.connect(ctx, rec)
}

// await waits for another caller's handshake to finish.
func (p *Pool) await(ctx context.Context, rec *connRecord, ready <-chan struct{}) (Client, error) {
	select {
	case <-ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return nil, ErrPoolDestroyed
	}
	if cur, ok := p.conns[rec.id]; !ok || cur != rec || rec.client == nil {
		return nil, ErrSetupFailed
	}
	rec.lastUsed = p.clock.Now()
	return rec.client, nil
}

// connect opens the socket for a new record. Only this call closes rec.ready.
func (p *Pool) connect(ctx context.Context, rec *connRecord) (Client, error) {
	url := p.cfg.URLFor(rec.id)
	start := p.clock.Now()

	dialCtx, cancel := p.clock.WithTimeout(ctx, p.cfg.ConnectTimeout)
	client, err := p.dial(dialCtx, rec.id, url)
	timedOut := errors.Is(dialCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	cancel()

	p.mu.Lock()

	if err != nil {
		var stale Client
		if p.conns[rec.id] == rec {
			stale = p.removeLocked(rec, ErrConnectionClosed)
		}
		close(rec.ready)
		p.mu.Unlock()

		if stale != nil {
			stale.Close()
		}
		if timedOut {
			err = fmt.Errorf("%w after %s: %w", ErrConnectTimeout, p.cfg.ConnectTimeout, err)
		} else {
			err = fmt.Errorf("connect %s: %w", rec.id, err)
		}
		p.logger.Warn("bot connection failed",
			"conversation_id", rec.id,
			"url", url,
			"error", err,
		)
		p.notifyClosed(rec.id, ReasonFailed)
		return nil, err
	}

	if p.conns[rec.id] != rec {
		// Swept or shut down while connecting.
		destroyed := p.destroyed
		close(rec.ready)
		p.mu.Unlock()

		client.Close()
		if destroyed {
			return nil, ErrPoolDestroyed
		}
		return nil, ErrSetupFailed
	}

	rec.client = client
	rec.connecting = false
	rec.lastUsed = p.clock.Now()
	close(rec.ready)

	p.wg.Add(1)
	go p.serve(rec)
	p.mu.Unlock()

	p.logger.Info("bot connection opened",
		"conversation_id", rec.id,
		"elapsed", p.clock.Since(start),
	)
	if p.observer != nil {
		p.observer.ConnectionOpened(rec.id)
	}

	return client, nil
}

// SendRequest sends a prompt for a conversation and waits for the correlated
// response. An in-band success=false response is returned without error;
// timeouts, closed sockets and pool shutdown are errors.
func (p *Pool) SendRequest(ctx context.Context, conversationID, prompt string) (*BotResponse, error) {
	client, err := p.Acquire(ctx, conversationID)
	if err != nil {
		p.notifyRequest(OutcomeError, 0)
		return nil, err
	}

	requestID := conversationID + "_" + uuid.NewString()
	payload, err := json.Marshal(BotRequest{
		RequestID: requestID,
		ChatID:    conversationID,
		Prompt:    prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	p.mu.Lock()
	rec, ok := p.conns[conversationID]
	if !ok || rec.client != client {
		p.mu.Unlock()
		p.notifyRequest(OutcomeClosed, 0)
		return nil, ErrConnectionClosed
	}
	now := p.clock.Now()
	rec.requests++
	rec.lastUsed = now

	req := p.pending.add(requestID, conversationID, now)
	req.timer = p.clock.AfterFunc(p.cfg.ConnectTimeout, func() {
		p.expire(requestID)
	})
	p.mu.Unlock()

	p.logger.Debug("sending bot request",
		"conversation_id", conversationID,
		"request_id", requestID,
	)

	if err := client.Send(payload); err != nil {
		p.mu.Lock()
		r := p.pending.take(requestID)
		p.mu.Unlock()
		if r != nil {
			r.timer.Stop()
		}
		p.notifyRequest(OutcomeError, p.clock.Since(now))
		return nil, fmt.Errorf("send request: %w", err)
	}

	select {
	case res := <-req.result:
		p.notifyRequest(outcome(res), p.clock.Since(now))
		return res.resp, res.err
	case <-ctx.Done():
		p.mu.Lock()
		r := p.pending.take(requestID)
		p.mu.Unlock()
		if r == nil {
			// Completed concurrently; prefer the result.
			res := <-req.result
			p.notifyRequest(outcome(res), p.clock.Since(now))
			return res.resp, res.err
		}
		r.timer.Stop()
		p.notifyRequest(OutcomeCancelled, p.clock.Since(now))
		return nil, ctx.Err()
	}
}

func outcome(res requestResult) string {
	switch {
	case res.err == nil && res.resp.Success:
		return OutcomeSuccess
	case res.err == nil:
		return OutcomeFailure
	case errors.Is(res.err, ErrRequestTimeout):
		return OutcomeTimeout
	case errors.Is(res.err, ErrConnectionClosed), errors.Is(res.err, ErrPoolDestroyed):
		return OutcomeClosed
	default:
		return OutcomeError
	}
}

// expire fails a request whose timer fired.
func (p *Pool) expire(requestID string) {
	p.mu.Lock()
	r := p.pending.take(requestID)
	p.mu.Unlock()

	if r == nil {
		return
	}

	p.logger.Warn("bot request timed out",
		"request_id", requestID,
		"timeout", p.cfg.ConnectTimeout,
	)
	r.complete(nil, ErrRequestTimeout)
}

// serve reads frames for one connection until it closes or leaves the pool.
func (p *Pool) serve(rec *connRecord) {
	defer p.wg.Done()

	messages := rec.client.Messages()
	errs := rec.client.Errors()

	for {
		select {
		case <-rec.done:
			return
		case msg := <-messages:
			p.handleFrame(rec, msg)
		case err := <-errs:
			// Deliver frames read before the failure.
		drain:
			for {
				select {
				case msg := <-messages:
					p.handleFrame(rec, msg)
				default:
					break drain
				}
			}
			p.teardown(rec, err)
			return
		}
	}
}

// handleFrame dispatches one inbound frame.
func (p *Pool) handleFrame(rec *connRecord, msg TimestampedMessage) {
	var frame inboundFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		p.logger.Warn("dropping malformed bot frame",
			"conversation_id", rec.id,
			"error", err,
		)
		return
	}

	if frame.Type == HandshakeType {
		p.handleHandshake(rec, msg.Data)
		return
	}

	resp, err := frame.response(msg.Data)
	if err != nil {
		p.logger.Warn("dropping invalid bot frame",
			"conversation_id", rec.id,
			"error", err,
		)
		return
	}

	p.mu.Lock()
	req := p.pending.take(resp.Data.RequestID)
	p.mu.Unlock()

	if req == nil {
		p.logger.Debug("response for unknown request",
			"conversation_id", rec.id,
			"request_id", resp.Data.RequestID,
		)
		return
	}

	p.logger.Debug("bot response received",
		"conversation_id", rec.id,
		"request_id", resp.Data.RequestID,
		"success", resp.Success,
		"elapsed", msg.ReceivedAt.Sub(req.createdAt),
	)
	req.complete(resp, nil)
}

func (p *Pool) handleHandshake(rec *connRecord, data []byte) {
	var hs Handshake
	if err := json.Unmarshal(data, &hs); err != nil {
		p.logger.Debug("unreadable bot handshake", "conversation_id", rec.id, "error", err)
		return
	}

	tools := hs.ToolNames()
	p.mu.Lock()
	rec.tools = tools
	p.mu.Unlock()

	p.logger.Info("bot handshake received",
		"conversation_id", rec.id,
		"servers", len(hs.MCP.Servers),
		"tools", len(tools),
	)
}

// teardown removes a connection whose socket closed or failed.
func (p *Pool) teardown(rec *connRecord, cause error) {
	p.mu.Lock()
	if p.conns[rec.id] != rec {
		p.mu.Unlock()
		return
	}
	rejected := p.pending.rejectConversation(rec.id, ErrConnectionClosed)
	client := p.removeLocked(rec, ErrConnectionClosed)
	p.mu.Unlock()

	if client != nil {
		client.Close()
	}

	p.logger.Info("bot connection closed",
		"conversation_id", rec.id,
		"cause", cause,
		"rejected", rejected,
	)
	p.notifyClosed(rec.id, ReasonRemote)
}

// removeLocked drops a record and rejects its pending requests. The caller
// holds p.mu and must close the returned client after unlocking.
func (p *Pool) removeLocked(rec *connRecord, err error) Client {
	if p.conns[rec.id] == rec {
		delete(p.conns, rec.id)
	}
	select {
	case <-rec.done:
	default:
		close(rec.done)
	}
	p.pending.rejectConversation(rec.id, err)
	return rec.client
}

// sweep closes idle and worn-out connections, then evicts the least recently
// used ones while the pool is above capacity.
func (p *Pool) sweep() {
	now := p.clock.Now()

	type eviction struct {
		id     string
		client Client
		reason string
	}
	var evicted []eviction

	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}

	for _, rec := range p.conns {
		if rec.connecting {
			continue
		}
		reason := ""
		switch {
		case now.Sub(rec.lastUsed) > p.cfg.IdleTimeout:
			reason = ReasonIdle
		case rec.requests > p.cfg.MaxRequestsPerConnection:
			reason = ReasonWorn
		default:
			continue
		}
		evicted = append(evicted, eviction{rec.id, p.removeLocked(rec, ErrConnectionClosed), reason})
	}

	if surplus := len(p.conns) - p.cfg.MaxConnections; surplus > 0 {
		open := make([]*connRecord, 0, len(p.conns))
		for _, rec := range p.conns {
			if !rec.connecting {
				open = append(open, rec)
			}
		}
		sort.Slice(open, func(i, j int) bool {
			return open[i].lastUsed.Before(open[j].lastUsed)
		})
		for i := 0; i < surplus && i < len(open); i++ {
			rec := open[i]
			evicted = append(evicted, eviction{rec.id, p.removeLocked(rec, ErrConnectionClosed), ReasonCapacity})
		}
	}
	remaining := len(p.conns)
	p.mu.Unlock()

	for _, e := range evicted {
		if e.client != nil {
			e.client.Close()
		}
		p.logger.Info("bot connection evicted",
			"conversation_id", e.id,
			"reason", e.reason,
		)
		p.notifyClosed(e.id, e.reason)
	}

	if len(evicted) > 0 {
		p.logger.Debug("sweep complete", "evicted", len(evicted), "remaining", remaining)
	}
}

// Shutdown stops the sweep, closes every connection and rejects every
// pending request with ErrPoolDestroyed. Only the first call has effect.
func (p *Pool) Shutdown(ctx context.Context) error {
	var err error

	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.destroyed = true
		close(p.stop)

		clients := make([]Client, 0, len(p.conns))
		ids := make([]string, 0, len(p.conns))
		for _, rec := range p.conns {
			if c := p.removeLocked(rec, ErrPoolDestroyed); c != nil {
				clients = append(clients, c)
			}
			ids = append(ids, rec.id)
		}
		rejected := p.pending.rejectAll(ErrPoolDestroyed)
		p.mu.Unlock()

		closeClients(clients)
		for _, id := range ids {
			p.notifyClosed(id, ReasonShutdown)
		}

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}

		p.logger.Info("connection pool shut down",
			"closed", len(clients),
			"rejected", rejected,
		)
	})

	return err
}

// Stats returns a snapshot of the pool. It has no side effects.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := PoolStats{
		ActiveConnections: len(p.conns),
		PendingRequests:   p.pending.len(),
		Connections:       make([]ConnectionStats, 0, len(p.conns)),
	}

	for _, rec := range p.conns {
		state := StateConnecting
		if rec.client != nil {
			state = rec.client.ReadyState()
		}
		stats.Connections = append(stats.Connections, ConnectionStats{
			ID:           rec.id,
			IsConnecting: rec.connecting,
			LastUsed:     rec.lastUsed,
			RequestCount: rec.requests,
			ReadyState:   state,
			Tools:        append([]string(nil), rec.tools...),
		})
	}

	sort.Slice(stats.Connections, func(i, j int) bool {
		return stats.Connections[i].ID < stats.Connections[j].ID
	})

	return stats
}

func (p *Pool) notifyClosed(id, reason string) {
	if p.observer != nil {
		p.observer.ConnectionClosed(id, reason)
	}
}

func (p *Pool) notifyRequest(outcome string, elapsed time.Duration) {
	if p.observer != nil {
		p.observer.RequestDone(outcome, elapsed)
	}
}

func closeClients(clients []Client) {
	for _, c := range clients {
		if c != nil {
			c.Close()
		}
	}
}
