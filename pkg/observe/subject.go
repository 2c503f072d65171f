// Package observe provides a broadcast subject: a latest-value cache plus a
// registry of listeners notified on every published value. New subscribers
// immediately receive the latest value, then every later one.
package observe

import (
	"context"
	"sync"

	"github.com/Sternrassler/posts-client/internal/mailbox"
)

// Subject broadcasts values to subscribers. Publish is expected to be called
// from a single goroutine; listeners then observe values in publish order.
type Subject[T any] struct {
	mu        sync.Mutex
	latest    T
	seq       uint64
	nextID    uint64
	listeners map[uint64]*listener[T]
	order     []uint64
	closed    bool
	done      chan struct{}
}

type listener[T any] struct {
	mu   sync.Mutex
	fn   func(T)
	seen uint64
}

// deliver invokes fn unless a newer value was already delivered.
func (l *listener[T]) deliver(seq uint64, v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if seq <= l.seen {
		return
	}
	l.seen = seq
	l.fn(v)
}

// NewSubject creates a subject holding initial as its latest value.
func NewSubject[T any](initial T) *Subject[T] {
	return &Subject[T]{
		latest:    initial,
		seq:       1,
		listeners: make(map[uint64]*listener[T]),
		done:      make(chan struct{}),
	}
}

// Value returns the latest published value.
func (s *Subject[T]) Value() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Publish stores v as the latest value and notifies every listener
// synchronously. It is a no-op after Close.
func (s *Subject[T]) Publish(v T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.latest = v
	s.seq++
	seq := s.seq
	targets := make([]*listener[T], 0, len(s.order))
	for _, id := range s.order {
		targets = append(targets, s.listeners[id])
	}
	s.mu.Unlock()

	for _, l := range targets {
		l.deliver(seq, v)
	}
}

// Subscribe registers fn, replays the latest value to it and returns a
// function that unregisters it. Subscribing to a closed subject replays the
// final value only.
func (s *Subject[T]) Subscribe(fn func(T)) (cancel func()) {
	l := &listener[T]{fn: fn}

	s.mu.Lock()
	latest, seq := s.latest, s.seq
	if s.closed {
		s.mu.Unlock()
		l.deliver(seq, latest)
		return func() {}
	}
	s.nextID++
	id := s.nextID
	s.listeners[id] = l
	s.order = append(s.order, id)
	s.mu.Unlock()

	l.deliver(seq, latest)

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribe(id) })
	}
}

func (s *Subject[T]) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Subscribers returns the number of registered listeners.
func (s *Subject[T]) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// Stream returns a channel carrying the latest value followed by every later
// one, without dropping any. The channel is closed when ctx is done or the
// subject is closed.
func (s *Subject[T]) Stream(ctx context.Context) <-chan T {
	out := make(chan T)
	queue := mailbox.New[T]()
	cancel := s.Subscribe(func(v T) { queue.Push(v) })

	go func() {
		defer close(out)
		defer cancel()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-queue.Ready():
			}

			for _, v := range queue.Drain() {
				select {
				case out <- v:
				case <-ctx.Done():
					return
				case <-s.done:
					return
				}
			}
		}
	}()

	return out
}

// Close drops every listener and ends every stream.
func (s *Subject[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.listeners = make(map[uint64]*listener[T])
	s.order = nil
	close(s.done)
}
