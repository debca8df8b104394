// Package subscription defines the value shape produced by
// subscription procedures: a pull-style stream handle over a buffered
// channel. The engine never canonicalises delivery; transports pull
// from the Stream and own the lifecycle from there.
package subscription

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Next once the stream has been closed and
// drained.
var ErrClosed = errors.New("subscription: stream closed")

// Stream is a pull-style handle over a sequence of subscription items.
// A subscription handler returns a *Stream as its value; the transport
// pulls with Next until ErrClosed or context cancellation.
type Stream struct {
	ch        chan any
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a stream with the given buffer capacity and the Emitter
// the handler pushes items through.
func New(buffer int) (*Stream, *Emitter) {
	if buffer < 0 {
		buffer = 0
	}
	s := &Stream{
		ch:   make(chan any, buffer),
		done: make(chan struct{}),
	}
	return s, &Emitter{stream: s}
}

// Next blocks until an item is available, the stream is closed and
// drained (ErrClosed), or ctx is done (ctx.Err()). Items buffered
// before Close remain pullable.
func (s *Stream) Next(ctx context.Context) (any, error) {
	// Fast path: drain buffered items even after close.
	select {
	case item := <-s.ch:
		return item, nil
	default:
	}

	select {
	case item := <-s.ch:
		return item, nil
	case <-s.done:
		select {
		case item := <-s.ch:
			return item, nil
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close ends the stream. Idempotent; safe to call from either side.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// Closed reports whether the stream has been closed.
func (s *Stream) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Emitter is the producer side handed to the subscription handler.
type Emitter struct {
	stream *Stream
}

// Emit pushes an item to the stream. It returns false once the stream
// is closed or ctx is done, so producers can stop.
func (e *Emitter) Emit(ctx context.Context, item any) bool {
	select {
	case e.stream.ch <- item:
		return true
	case <-e.stream.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Close ends the stream from the producer side.
func (e *Emitter) Close() {
	e.stream.Close()
}
