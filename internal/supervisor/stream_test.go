package supervisor

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"
)

func TestFromSeq_DeliversThenFails(t *testing.T) {
	boom := errors.New("boom")
	src := FromSeq(func(ctx context.Context) (iter.Seq2[int, error], error) {
		return func(yield func(int, error) bool) {
			for i := 1; i <= 3; i++ {
				if !yield(i, nil) {
					return
				}
			}
			yield(0, boom)
		}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s, err := src(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	for want := 1; want <= 3; want++ {
		got, err := s.Next(ctx)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if got != want {
			t.Errorf("Next() = %d, want %d", got, want)
		}
	}

	if _, err := s.Next(ctx); !errors.Is(err, boom) {
		t.Errorf("Next() error = %v, want boom", err)
	}
}

func TestFromSeq_EndIsFailure(t *testing.T) {
	src := FromSeq(func(ctx context.Context) (iter.Seq2[string, error], error) {
		return func(yield func(string, error) bool) {}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s, err := src(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if _, err := s.Next(ctx); !errors.Is(err, ErrStreamEnded) {
		t.Errorf("Next() error = %v, want ErrStreamEnded", err)
	}
}

func TestFromSeq_OpenError(t *testing.T) {
	openErr := errors.New("dial failed")
	src := FromSeq(func(ctx context.Context) (iter.Seq2[int, error], error) {
		return nil, openErr
	})

	if _, err := src(context.Background()); !errors.Is(err, openErr) {
		t.Errorf("open error = %v, want %v", err, openErr)
	}
}

func TestFromCallbacks(t *testing.T) {
	unsubscribed := make(chan struct{})
	var cb Callbacks[string]

	src := FromCallbacks(func(ctx context.Context, c Callbacks[string]) (func(), error) {
		cb = c
		return func() { close(unsubscribed) }, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s, err := src(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	cb.OnEvent("a")
	cb.OnEvent("b")
	cb.OnError(errors.New("lost connection"))
	cb.OnEvent("dropped")

	for _, want := range []string{"a", "b"} {
		got, err := s.Next(ctx)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if got != want {
			t.Errorf("Next() = %q, want %q", got, want)
		}
	}

	if _, err := s.Next(ctx); err == nil || err.Error() != "lost connection" {
		t.Errorf("Next() error = %v, want lost connection", err)
	}

	s.Close()
	s.Close()

	select {
	case <-unsubscribed:
	case <-time.After(time.Second):
		t.Error("Close did not unsubscribe")
	}
}

func TestFromCallbacks_OnEnd(t *testing.T) {
	src := FromCallbacks(func(ctx context.Context, c Callbacks[int]) (func(), error) {
		go c.OnEnd()
		return func() {}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s, err := src(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if _, err := s.Next(ctx); !errors.Is(err, ErrStreamEnded) {
		t.Errorf("Next() error = %v, want ErrStreamEnded", err)
	}
}

func TestChanStream_NextRespectsContext(t *testing.T) {
	s := newChanStream[int](nil)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := s.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next() error = %v, want deadline exceeded", err)
	}
}
