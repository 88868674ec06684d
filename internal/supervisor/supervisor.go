package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// State is the lifecycle state of a supervised stream.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateBackoff  State = "backoff"
	StateExtended State = "extended_backoff"
	StateStopped  State = "stopped"
)

// Handler processes one event. Errors are logged and never stop the stream.
type Handler[T any] func(ctx context.Context, event T) error

// Observer receives supervisor lifecycle notifications (metrics).
type Observer interface {
	StreamState(stream string, state State)
	StreamRestart(stream string, mode Mode, delay time.Duration)
	StreamEvent(stream string, err error, transient bool)
}

// Config configures a Supervisor.
type Config struct {
	Name     string // Stream name used in logs and metrics
	Tracker  TrackerConfig
	Resync   func(ctx context.Context) error // Runs before every restart; optional
	Clock    clock.Clock
	Observer Observer
}

// Status is a point-in-time view of a supervised stream.
type Status struct {
	Name        string    `json:"name"`
	State       State     `json:"state"`
	Restarts    int       `json:"restarts"`
	Extended    bool      `json:"extended"`
	LastRestart time.Time `json:"last_restart"`
	Processed   int64     `json:"processed"`
	Failures    int64     `json:"failures"`
}

// Supervisor keeps one stream running forever.
type Supervisor[T any] struct {
	name     string
	source   Source[T]
	handle   Handler[T]
	resync   func(ctx context.Context) error
	tracker  *FailureTracker
	clock    clock.Clock
	observer Observer
	logger   *slog.Logger

	mu        sync.Mutex
	state     State
	processed int64
	failures  int64
}

// New creates a Supervisor for the given source and handler.
func New[T any](cfg Config, source Source[T], handle Handler[T], logger *slog.Logger) *Supervisor[T] {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	return &Supervisor[T]{
		name:     cfg.Name,
		source:   source,
		handle:   handle,
		resync:   cfg.Resync,
		tracker:  NewFailureTracker(cfg.Tracker),
		clock:    cfg.Clock,
		observer: cfg.Observer,
		logger:   logger.With("stream", cfg.Name),
		state:    StateIdle,
	}
}

// Name returns the stream name.
func (s *Supervisor[T]) Name() string {
	return s.name
}

// Run supervises the stream until ctx is cancelled. It returns ctx.Err().
func (s *Supervisor[T]) Run(ctx context.Context) error {
	s.logger.Info("stream supervisor started")

	for {
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			s.setState(StateStopped)
			s.logger.Info("stream supervisor stopped")
			return ctx.Err()
		}

		s.mu.Lock()
		s.failures++
		s.mu.Unlock()

		decision := s.tracker.RecordFailure(s.clock.Now())

		if decision.Mode == ModeExtended {
			if decision.EnteredBreaker {
				s.logger.Warn("too many stream restarts, entering circuit breaker",
					"error", err,
					"restarts", decision.Attempt-1,
					"delay", decision.Delay,
				)
			}
			s.setState(StateExtended)
		} else {
			s.logger.Warn("stream failed, restarting",
				"error", err,
				"attempt", decision.Attempt,
				"delay", decision.Delay,
			)
			s.setState(StateBackoff)
		}

		if s.observer != nil {
			s.observer.StreamRestart(s.name, decision.Mode, decision.Delay)
		}

		if err := s.sleep(ctx, decision.Delay); err != nil {
			s.setState(StateStopped)
			s.logger.Info("stream supervisor stopped during backoff")
			return err
		}

		if decision.Mode == ModeExtended {
			s.tracker.ExitExtended()
			s.logger.Info("circuit breaker delay elapsed, resuming normal restarts")
		}

		if s.resync != nil {
			if err := s.resync(ctx); err != nil {
				s.logger.Warn("resync before restart failed", "error", err)
			}
		}
	}
}

// runOnce opens the stream and processes events until it fails.
func (s *Supervisor[T]) runOnce(ctx context.Context) error {
	stream, err := s.source(ctx)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer stream.Close()

	s.setState(StateRunning)
	s.logger.Info("stream running")

	for {
		event, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ErrStreamEnded
			}
			return err
		}
		s.process(ctx, event)
	}
}

// process handles one event. Per-event errors never fail the stream, but
// only a handled event pays down restart history.
func (s *Supervisor[T]) process(ctx context.Context, event T) {
	err := s.safeHandle(ctx, event)

	transient := IsTransient(err)
	switch {
	case err == nil:
	case transient:
		s.logger.Warn("transient error handling event, continuing", "event", event, "error", err)
	default:
		s.logger.Error("error handling event", "event", event, "error", err)
	}

	if err == nil {
		s.tracker.RecordSuccess()
	}

	s.mu.Lock()
	s.processed++
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.StreamEvent(s.name, err, transient)
	}
}

// safeHandle turns handler panics into errors.
func (s *Supervisor[T]) safeHandle(ctx context.Context, event T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.handle(ctx, event)
}

func (s *Supervisor[T]) sleep(ctx context.Context, d time.Duration) error {
	timer := s.clock.Timer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Supervisor[T]) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.StreamState(s.name, state)
	}
}

// Status returns the current stream status.
func (s *Supervisor[T]) Status() Status {
	snap := s.tracker.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		Name:        s.name,
		State:       s.state,
		Restarts:    snap.Restarts,
		Extended:    snap.Extended,
		LastRestart: snap.LastRestart,
		Processed:   s.processed,
		Failures:    s.failures,
	}
}
