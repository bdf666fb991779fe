// Package bus implements the typed multi-producer/multi-consumer
// broadcast buses that every actor in the pipeline communicates
// through. It is the Go analogue of go-ethereum's event.Feed (see
// event/feed_test.go, event/example_scope_test.go in the teacher
// corpus), generalized with bounded capacity and drop-oldest
// backpressure: event.Feed's Send blocks until every subscriber has
// received the value, which is the wrong shape for a pipeline where a
// slow consumer must never stall block ingestion.
package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Recv once the bus has been closed and the
// subscriber's buffered backlog has been drained.
var ErrClosed = errors.New("bus: closed")

// Envelope wraps a delivered value with the number of values that were
// dropped (due to capacity overflow) since the subscriber's previous
// receive. A non-zero Lagged means the subscriber fell behind and must
// treat the gap as unrecoverable, per spec: "a receiver that lags
// beyond capacity MUST resynchronize by re-subscribing; missed values
// are not recoverable."
type Envelope[T any] struct {
	Value  T
	Lagged uint64
}

type subscriber[T any] struct {
	mu     sync.Mutex
	ch     chan T
	lagged uint64
	closed bool
}

// Bus is a bounded, drop-oldest broadcast channel for values of type T.
// The zero value is not usable; construct with New.
type Bus[T any] struct {
	capacity int

	mu   sync.RWMutex
	subs map[uint64]*subscriber[T]
	next uint64

	closed atomic.Bool
}

// New creates a Bus with the given per-subscriber buffer capacity.
func New[T any](capacity int) *Bus[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Bus[T]{
		capacity: capacity,
		subs:     make(map[uint64]*subscriber[T]),
	}
}

// Subscription is a live receiver attached to a Bus.
type Subscription[T any] struct {
	id  uint64
	bus *Bus[T]
	sub *subscriber[T]
}

// Subscribe attaches a new receiver positioned at the bus's current
// tail (it only observes values sent after this call returns).
func (b *Bus[T]) Subscribe() *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	s := &subscriber[T]{ch: make(chan T, b.capacity)}
	b.subs[id] = s
	return &Subscription[T]{id: id, bus: b, sub: s}
}

// Unsubscribe detaches the receiver. Safe to call multiple times.
func (s *Subscription[T]) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if _, ok := s.bus.subs[s.id]; !ok {
		return
	}
	delete(s.bus.subs, s.id)
	s.sub.mu.Lock()
	s.sub.closed = true
	close(s.sub.ch)
	s.sub.mu.Unlock()
}

// Recv blocks until a value is available, the context is done, or the
// bus is closed and the backlog drained.
func (s *Subscription[T]) Recv(ctx context.Context) (Envelope[T], error) {
	select {
	case v, ok := <-s.sub.ch:
		if !ok {
			return Envelope[T]{}, ErrClosed
		}
		s.sub.mu.Lock()
		lagged := s.sub.lagged
		s.sub.lagged = 0
		s.sub.mu.Unlock()
		return Envelope[T]{Value: v, Lagged: lagged}, nil
	case <-ctx.Done():
		return Envelope[T]{}, ctx.Err()
	}
}

// Send publishes v to every currently attached subscriber and returns
// the subscriber count observed at send time. It never blocks: a
// subscriber whose buffer is full has its oldest undelivered value
// dropped to make room, and the dropped count accumulates into the
// Lagged field of the next value it receives. Send with zero
// subscribers is a no-op beyond the returned count of 0.
func (b *Bus[T]) Send(v T) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		s.deliver(v)
	}
	return len(b.subs)
}

func (s *subscriber[T]) deliver(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- v:
			return
		default:
			// Buffer full: drop the oldest undelivered value and retry.
			select {
			case <-s.ch:
				s.lagged++
			default:
				// Raced with a concurrent receive; loop and retry send.
			}
		}
	}
}

// SubscriberCount reports the number of live receivers.
func (b *Bus[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// IsHealthy reports whether the bus has at least one receiver and has
// not been closed.
func (b *Bus[T]) IsHealthy() bool {
	return !b.closed.Load() && b.SubscriberCount() > 0
}

// Close detaches and closes every current subscriber's channel. Sends
// after Close are no-ops.
func (b *Bus[T]) Close() {
	b.closed.Store(true)
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, s := range b.subs {
		s.mu.Lock()
		if !s.closed {
			s.closed = true
			close(s.ch)
		}
		s.mu.Unlock()
		delete(b.subs, id)
	}
}
