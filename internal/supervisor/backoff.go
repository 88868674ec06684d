package supervisor

import "time"

// Backoff computes restart delays for a supervised stream.
type Backoff struct {
	Base   time.Duration // Delay for the first restart
	Max    time.Duration // Cap before jitter
	Jitter float64       // Fraction of the capped delay applied as +/- jitter
	Floor  time.Duration // Minimum delay after jitter
}

// DefaultBackoff returns sensible defaults: 1s doubling to 60s, +/-25% jitter, 100ms floor.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:   time.Second,
		Max:    60 * time.Second,
		Jitter: 0.25,
		Floor:  100 * time.Millisecond,
	}
}

// Capped returns min(Max, Base*2^(attempt-1)). Attempts below 1 are treated as 1.
func (b Backoff) Capped(attempt int) time.Duration {
	return doubled(b.Base, b.Max, attempt-1)
}

// Delay returns the jittered delay for the given attempt. r must be in [0, 1);
// r=0.5 yields the capped delay exactly.
func (b Backoff) Delay(attempt int, r float64) time.Duration {
	capped := b.Capped(attempt)
	offset := (2*r - 1) * b.Jitter * float64(capped)

	d := capped + time.Duration(offset)
	if d < b.Floor {
		d = b.Floor
	}
	return d
}

// ExtendedDelay returns min(limit, base*2^exp), the circuit-breaker delay.
func ExtendedDelay(base, limit time.Duration, exp int) time.Duration {
	return doubled(base, limit, exp)
}

// doubled returns min(limit, base*2^exp) without overflowing.
func doubled(base, limit time.Duration, exp int) time.Duration {
	if exp < 0 {
		exp = 0
	}
	d := base
	for i := 0; i < exp; i++ {
		if d >= limit {
			return limit
		}
		d *= 2
	}
	if d > limit {
		d = limit
	}
	return d
}
