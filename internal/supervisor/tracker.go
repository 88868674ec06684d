package supervisor

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Mode is the backoff mode chosen for a restart.
type Mode int

const (
	ModeNormal Mode = iota
	ModeExtended
)

func (m Mode) String() string {
	if m == ModeExtended {
		return "extended"
	}
	return "normal"
}

// Decision describes how a failed stream should be restarted.
type Decision struct {
	Mode           Mode
	Delay          time.Duration
	Attempt        int  // Restart count after recording this failure
	EnteredBreaker bool // True only on the failure that trips the breaker
}

// TrackerConfig configures a FailureTracker.
type TrackerConfig struct {
	Backoff      Backoff
	Threshold    int           // Normal restarts allowed per window
	Window       time.Duration // Rolling window; history older than this is forgotten
	ExtendedBase time.Duration // First circuit-breaker delay
	ExtendedMax  time.Duration // Circuit-breaker delay cap
	Rand         func() float64
}

// DefaultTrackerConfig returns sensible defaults: 5 restarts per hour, then
// circuit-breaker delays starting at 5 minutes and capped at 1 hour.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Backoff:      DefaultBackoff(),
		Threshold:    5,
		Window:       time.Hour,
		ExtendedBase: 5 * time.Minute,
		ExtendedMax:  time.Hour,
	}
}

// TrackerSnapshot is a point-in-time copy of tracker state.
type TrackerSnapshot struct {
	Restarts    int
	LastRestart time.Time
	Extended    bool
}

// FailureTracker holds the restart history of one supervised stream.
// Each supervised stream owns its own tracker.
type FailureTracker struct {
	cfg TrackerConfig

	mu          sync.Mutex
	restarts    int
	lastRestart time.Time
	extended    bool
}

// NewFailureTracker creates a tracker with no history.
func NewFailureTracker(cfg TrackerConfig) *FailureTracker {
	if cfg.Threshold < 1 {
		cfg.Threshold = 1
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Float64
	}
	return &FailureTracker{cfg: cfg}
}

// RecordFailure records a stream failure at now and returns the restart decision.
func (t *FailureTracker) RecordFailure(now time.Time) Decision {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Forget history older than the window.
	if !t.lastRestart.IsZero() && now.Sub(t.lastRestart) > t.cfg.Window {
		t.restarts = 0
		t.extended = false
	}

	if t.restarts < t.cfg.Threshold {
		t.restarts++
		t.lastRestart = now
		return Decision{
			Mode:    ModeNormal,
			Delay:   t.cfg.Backoff.Delay(t.restarts, t.cfg.Rand()),
			Attempt: t.restarts,
		}
	}

	entered := !t.extended
	delay := ExtendedDelay(t.cfg.ExtendedBase, t.cfg.ExtendedMax, t.restarts-t.cfg.Threshold)
	t.extended = true
	t.restarts++
	t.lastRestart = now

	return Decision{
		Mode:           ModeExtended,
		Delay:          delay,
		Attempt:        t.restarts,
		EnteredBreaker: entered,
	}
}

// RecordSuccess decrements the restart count (floor 0). Sustained success
// erases earlier failures one event at a time.
func (t *FailureTracker) RecordSuccess() {
	t.mu.Lock()
	if t.restarts > 0 {
		t.restarts--
	}
	t.mu.Unlock()
}

// ExitExtended clears the circuit breaker after its delay elapsed.
func (t *FailureTracker) ExitExtended() {
	t.mu.Lock()
	t.restarts = 0
	t.extended = false
	t.mu.Unlock()
}

// Snapshot returns the current tracker state.
func (t *FailureTracker) Snapshot() TrackerSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TrackerSnapshot{
		Restarts:    t.restarts,
		LastRestart: t.lastRestart,
		Extended:    t.extended,
	}
}
