package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onit-labs/xmtp-bot/internal/connection"
	"github.com/onit-labs/xmtp-bot/internal/market"
	"github.com/onit-labs/xmtp-bot/internal/store"
	"github.com/onit-labs/xmtp-bot/internal/supervisor"
)

// Sources supply the data behind the monitoring endpoints. Nil fields are
// left out of the responses.
type Sources struct {
	Pool      func() connection.PoolStats
	Streams   func() []supervisor.Status
	Feeds     func() []market.FeedStats
	Ping      func(ctx context.Context) error // database health
	Exchanges func(ctx context.Context, limit int) ([]store.Exchange, error)
}

// Health statuses.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Health is the /health response body.
type Health struct {
	Status     string         `json:"status"`
	Components map[string]any `json:"components"`
}

// Server is the monitoring HTTP server.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer creates a server on addr (":9090").
func NewServer(addr, metricsPath string, m *Metrics, src Sources, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           Handler(metricsPath, m, src),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With("component", "metrics_server"),
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting monitoring server", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("monitoring server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

// Handler builds the monitoring mux.
func Handler(metricsPath string, m *Metrics, src Sources) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := checkHealth(ctx, src)

		w.Header().Set("Content-Type", "application/json")
		if health.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		if src.Pool == nil {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, src.Pool())
	})

	mux.HandleFunc("/debug/exchanges", func(w http.ResponseWriter, r *http.Request) {
		if src.Exchanges == nil {
			http.NotFound(w, r)
			return
		}
		limit := 50
		if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 500 {
			limit = v
		}
		exchanges, err := src.Exchanges(r.Context(), limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{
			"count":     len(exchanges),
			"exchanges": exchanges,
		})
	})

	if m != nil {
		mux.Handle(metricsPath, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	}
	return mux
}

// checkHealth is unhealthy when the database is unreachable and degraded
// while any stream is not running.
func checkHealth(ctx context.Context, src Sources) Health {
	health := Health{
		Status:     StatusHealthy,
		Components: make(map[string]any),
	}

	if src.Ping != nil {
		if err := src.Ping(ctx); err != nil {
			health.Status = StatusUnhealthy
			health.Components["database"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["database"] = "connected"
		}
	}

	if src.Streams != nil {
		streams := src.Streams()
		health.Components["streams"] = streams
		for _, s := range streams {
			if s.State != supervisor.StateRunning && health.Status == StatusHealthy {
				health.Status = StatusDegraded
			}
		}
	}

	if src.Pool != nil {
		stats := src.Pool()
		health.Components["pool"] = map[string]int{
			"activeConnections": stats.ActiveConnections,
			"pendingRequests":   stats.PendingRequests,
		}
	}

	if src.Feeds != nil {
		health.Components["markets"] = src.Feeds()
	}

	return health
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
