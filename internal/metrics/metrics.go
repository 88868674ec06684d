package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/onit-labs/xmtp-bot/internal/api"
	"github.com/onit-labs/xmtp-bot/internal/bot"
	"github.com/onit-labs/xmtp-bot/internal/connection"
	"github.com/onit-labs/xmtp-bot/internal/supervisor"
)

const namespace = "onit_bridge"

// Metrics holds all bridge collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	streamState        *prometheus.GaugeVec
	streamRestarts     *prometheus.CounterVec
	streamRestartDelay *prometheus.HistogramVec
	streamEvents       *prometheus.CounterVec

	connsOpened   prometheus.Counter
	connsClosed   *prometheus.CounterVec
	requests      *prometheus.CounterVec
	requestLength *prometheus.HistogramVec

	messages *prometheus.CounterVec
	welcomes *prometheus.CounterVec

	feedRefreshes *prometheus.CounterVec
	feedNew       *prometheus.CounterVec
}

var (
	_ supervisor.Observer = (*Metrics)(nil)
	_ connection.Observer = (*Metrics)(nil)
	_ bot.Observer        = (*Metrics)(nil)
)

// New creates the collectors and registers them, along with the Go runtime
// and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		streamState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "state",
			Help:      "Current supervisor state per stream (0=idle, 1=running, 2=backoff, 3=extended_backoff, 4=stopped)",
		}, []string{"stream"}),
		streamRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "restarts_total",
			Help:      "Total number of stream restarts",
		}, []string{"stream", "mode"}),
		streamRestartDelay: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "restart_delay_seconds",
			Help:      "Backoff delay applied before each restart",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 16), // 0.1s ~ 54m
		}, []string{"stream", "mode"}),
		streamEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "events_total",
			Help:      "Total number of stream events processed",
		}, []string{"stream", "result"}), // result: ok/transient_error/error

		connsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "connections_opened_total",
			Help:      "Total number of bot connections opened",
		}),
		connsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "connections_closed_total",
			Help:      "Total number of bot connections closed",
		}, []string{"reason"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "requests_total",
			Help:      "Total number of bot requests by outcome",
		}, []string{"outcome"}),
		requestLength: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "request_duration_seconds",
			Help:      "Bot request round-trip time",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}, []string{"outcome"}),

		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "messages_total",
			Help:      "Total number of inbound messages acted on",
		}, []string{"action", "command"}),
		welcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "welcomes_total",
			Help:      "Total number of welcome messages sent",
		}, []string{"kind"}), // kind: dm/group

		feedRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "markets",
			Name:      "refreshes_total",
			Help:      "Total number of market feed refreshes",
		}, []string{"feed", "result"}),
		feedNew: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "markets",
			Name:      "new_total",
			Help:      "Total number of newly seen markets per feed",
		}, []string{"feed"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.streamState, m.streamRestarts, m.streamRestartDelay, m.streamEvents,
		m.connsOpened, m.connsClosed, m.requests, m.requestLength,
		m.messages, m.welcomes,
		m.feedRefreshes, m.feedNew,
	)
	return m
}

// Registry returns the registry backing /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterPool exports live pool gauges read from stats on every scrape.
func (m *Metrics) RegisterPool(stats func() connection.PoolStats) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "active_connections",
			Help:      "Connections currently held by the pool",
		}, func() float64 { return float64(stats().ActiveConnections) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "pending_requests",
			Help:      "Requests awaiting a response",
		}, func() float64 { return float64(stats().PendingRequests) }),
	)
}

// RegisterGauge exports an arbitrary value read on every scrape.
func (m *Metrics) RegisterGauge(subsystem, name, help string, value func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, value))
}

var stateValues = map[supervisor.State]float64{
	supervisor.StateIdle:     0,
	supervisor.StateRunning:  1,
	supervisor.StateBackoff:  2,
	supervisor.StateExtended: 3,
	supervisor.StateStopped:  4,
}

func (m *Metrics) StreamState(stream string, state supervisor.State) {
	m.streamState.WithLabelValues(stream).Set(stateValues[state])
}

func (m *Metrics) StreamRestart(stream string, mode supervisor.Mode, delay time.Duration) {
	m.streamRestarts.WithLabelValues(stream, mode.String()).Inc()
	m.streamRestartDelay.WithLabelValues(stream, mode.String()).Observe(delay.Seconds())
}

func (m *Metrics) StreamEvent(stream string, err error, transient bool) {
	result := "ok"
	switch {
	case err == nil:
	case transient:
		result = "transient_error"
	default:
		result = "error"
	}
	m.streamEvents.WithLabelValues(stream, result).Inc()
}

func (m *Metrics) ConnectionOpened(string) {
	m.connsOpened.Inc()
}

func (m *Metrics) ConnectionClosed(_ string, reason string) {
	m.connsClosed.WithLabelValues(reason).Inc()
}

func (m *Metrics) RequestDone(outcome string, elapsed time.Duration) {
	m.requests.WithLabelValues(outcome).Inc()
	if elapsed > 0 {
		m.requestLength.WithLabelValues(outcome).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) MessageHandled(action bot.ActionKind, command string) {
	m.messages.WithLabelValues(string(action), command).Inc()
}

func (m *Metrics) WelcomeSent(dm bool) {
	kind := "group"
	if dm {
		kind = "dm"
	}
	m.welcomes.WithLabelValues(kind).Inc()
}

// HandleFeed records a poller refresh; it satisfies poller.FeedHandler.
func (m *Metrics) HandleFeed(feed string, added []api.Market, err error) {
	label := feed
	if label == "" {
		label = "all"
	}
	if err != nil {
		m.feedRefreshes.WithLabelValues(label, "error").Inc()
		return
	}
	m.feedRefreshes.WithLabelValues(label, "ok").Inc()
	m.feedNew.WithLabelValues(label).Add(float64(len(added)))
}
