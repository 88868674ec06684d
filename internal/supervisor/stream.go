package supervisor

import (
	"context"
	"errors"
	"iter"
	"sync"
)

// ErrStreamEnded reports that a stream finished without an error. Supervised
// streams are infinite, so this is a failure.
var ErrStreamEnded = errors.New("stream ended unexpectedly")

// Stream is an open event stream.
type Stream[T any] interface {
	// Next blocks until the next event, a stream error, or ctx cancellation.
	// io.EOF or ErrStreamEnded means the stream ended.
	Next(ctx context.Context) (T, error)

	// Close releases the stream. Safe to call more than once.
	Close() error
}

// Source opens a fresh stream. It is called again after every failure.
type Source[T any] func(ctx context.Context) (Stream[T], error)

// Callbacks receive events from a callback-style subscription.
type Callbacks[T any] struct {
	OnEvent func(T)
	OnError func(error)
	OnEnd   func()
}

// Subscribe starts a callback-style subscription and returns a function that
// cancels it.
type Subscribe[T any] func(ctx context.Context, cb Callbacks[T]) (cancel func(), err error)

// FromSeq adapts a blocking pull iterator (iter.Seq2 of event or error) to a Source.
// The sequence should stop when ctx is cancelled.
func FromSeq[T any](open func(ctx context.Context) (iter.Seq2[T, error], error)) Source[T] {
	return func(ctx context.Context) (Stream[T], error) {
		ctx, cancel := context.WithCancel(ctx)
		seq, err := open(ctx)
		if err != nil {
			cancel()
			return nil, err
		}

		s := newChanStream[T](cancel)
		go func() {
			for v, err := range seq {
				if err != nil {
					s.fail(err)
					return
				}
				if !s.push(v) {
					return
				}
			}
			s.fail(ErrStreamEnded)
		}()
		return s, nil
	}
}

// FromCallbacks adapts a callback subscription (event, error and end signals) to a Source.
func FromCallbacks[T any](subscribe Subscribe[T]) Source[T] {
	return func(ctx context.Context) (Stream[T], error) {
		ctx, cancel := context.WithCancel(ctx)
		s := newChanStream[T](cancel)

		unsubscribe, err := subscribe(ctx, Callbacks[T]{
			OnEvent: func(v T) { s.push(v) },
			OnError: func(err error) {
				if err == nil {
					err = ErrStreamEnded
				}
				s.fail(err)
			},
			OnEnd: func() { s.fail(ErrStreamEnded) },
		})
		if err != nil {
			cancel()
			return nil, err
		}
		s.unsubscribe = unsubscribe
		return s, nil
	}
}

// chanStream turns pushed events into a pull Stream.
type chanStream[T any] struct {
	events chan T
	done   chan struct{} // closed on first failure
	closed chan struct{} // closed by Close

	failOnce  sync.Once
	closeOnce sync.Once
	err       error

	cancel      context.CancelFunc
	unsubscribe func()
}

func newChanStream[T any](cancel context.CancelFunc) *chanStream[T] {
	return &chanStream[T]{
		events: make(chan T, 64),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
		cancel: cancel,
	}
}

// push delivers an event, blocking the producer while the buffer is full.
// Returns false once the stream is closed or failed.
func (s *chanStream[T]) push(v T) bool {
	select {
	case <-s.closed:
		return false
	case <-s.done:
		return false
	default:
	}

	select {
	case s.events <- v:
		return true
	case <-s.closed:
		return false
	case <-s.done:
		return false
	}
}

func (s *chanStream[T]) fail(err error) {
	s.failOnce.Do(func() {
		s.err = err
		close(s.done)
	})
}

// Next returns buffered events before reporting a failure.
func (s *chanStream[T]) Next(ctx context.Context) (T, error) {
	var zero T

	select {
	case v := <-s.events:
		return v, nil
	default:
	}

	select {
	case v := <-s.events:
		return v, nil
	case <-s.done:
		select {
		case v := <-s.events:
			return v, nil
		default:
		}
		return zero, s.err
	case <-s.closed:
		return zero, ErrStreamEnded
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (s *chanStream[T]) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.cancel != nil {
			s.cancel()
		}
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
	})
	return nil
}
