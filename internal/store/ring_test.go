package store

import (
	"slices"
	"testing"
)

func TestRing_PushEvictsOldest(t *testing.T) {
	r := newRing[int](3)
	for i := 1; i <= 3; i++ {
		if _, ok := r.push(i); ok {
			t.Fatalf("push(%d) evicted from a ring with room", i)
		}
	}

	old, ok := r.push(4)
	if !ok || old != 1 {
		t.Fatalf("push(4) = (%d, %v), want (1, true)", old, ok)
	}
	if r.len() != 3 {
		t.Errorf("len = %d, want 3", r.len())
	}
	if r.evictions() != 1 {
		t.Errorf("evictions = %d, want 1", r.evictions())
	}
	if got := r.newest(0); !slices.Equal(got, []int{4, 3, 2}) {
		t.Errorf("newest(0) = %v, want [4 3 2]", got)
	}
}

func TestRing_Drain(t *testing.T) {
	r := newRing[string](4)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		r.push(s)
	}

	if got := r.drain(2); !slices.Equal(got, []string{"b", "c"}) {
		t.Errorf("drain(2) = %v, want [b c]", got)
	}
	r.push("f")
	if got := r.drain(0); !slices.Equal(got, []string{"d", "e", "f"}) {
		t.Errorf("drain(0) = %v, want [d e f]", got)
	}
	if got := r.drain(0); got != nil {
		t.Errorf("drain on empty ring = %v, want nil", got)
	}
}

func TestRing_NewestLimit(t *testing.T) {
	r := newRing[int](5)
	for i := 0; i < 5; i++ {
		r.push(i)
	}
	if got := r.newest(2); !slices.Equal(got, []int{4, 3}) {
		t.Errorf("newest(2) = %v, want [4 3]", got)
	}
}
