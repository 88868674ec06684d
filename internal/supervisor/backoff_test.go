package supervisor

import (
	"testing"
	"time"
)

func TestBackoff_Capped(t *testing.T) {
	b := DefaultBackoff()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{6, 32 * time.Second},
		{7, 60 * time.Second},
		{100, 60 * time.Second},
	}

	for _, tt := range tests {
		if got := b.Capped(tt.attempt); got != tt.want {
			t.Errorf("Capped(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoff_DelayJitterBounds(t *testing.T) {
	b := DefaultBackoff()

	for attempt := 1; attempt <= 10; attempt++ {
		capped := b.Capped(attempt)
		lo := time.Duration(float64(capped) * 0.75)
		hi := time.Duration(float64(capped) * 1.25)

		for _, r := range []float64{0, 0.1, 0.5, 0.9, 0.999} {
			d := b.Delay(attempt, r)
			if d < lo || d > hi {
				t.Errorf("Delay(%d, %v) = %v, want in [%v, %v]", attempt, r, d, lo, hi)
			}
		}

		if got := b.Delay(attempt, 0.5); got != capped {
			t.Errorf("Delay(%d, 0.5) = %v, want %v", attempt, got, capped)
		}
	}
}

func TestBackoff_DelayFloor(t *testing.T) {
	b := Backoff{Base: 50 * time.Millisecond, Max: time.Second, Jitter: 0.25, Floor: 100 * time.Millisecond}

	if got := b.Delay(1, 0); got != 100*time.Millisecond {
		t.Errorf("Delay below floor = %v, want 100ms", got)
	}
}

func TestBackoff_CappedMonotonic(t *testing.T) {
	b := DefaultBackoff()
	prev := time.Duration(0)
	for attempt := 1; attempt <= 64; attempt++ {
		d := b.Capped(attempt)
		if d < prev {
			t.Fatalf("Capped(%d) = %v < Capped(%d) = %v", attempt, d, attempt-1, prev)
		}
		if d > b.Max {
			t.Fatalf("Capped(%d) = %v exceeds max %v", attempt, d, b.Max)
		}
		prev = d
	}
}

func TestExtendedDelay(t *testing.T) {
	tests := []struct {
		exp  int
		want time.Duration
	}{
		{-1, 5 * time.Minute},
		{0, 5 * time.Minute},
		{1, 10 * time.Minute},
		{3, 40 * time.Minute},
		{4, time.Hour},
		{1000, time.Hour},
	}

	for _, tt := range tests {
		if got := ExtendedDelay(5*time.Minute, time.Hour, tt.exp); got != tt.want {
			t.Errorf("ExtendedDelay(exp=%d) = %v, want %v", tt.exp, got, tt.want)
		}
	}
}
