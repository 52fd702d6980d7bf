// Package store holds the observable application state: a generic
// single-value Store and the device, soundtrack and settings stores built
// on it.
//
// Stores do no locking. Each store must only be used from one goroutine;
// the session loop is that goroutine in the running application.
package store

// Store holds one value of type T and notifies subscribers of every change.
type Store[T any] struct {
	state      T
	current    T
	subs       []*Subscription[T]
	pending    []T
	publishing bool
}

// Subscription is a registration returned by Subscribe.
type Subscription[T any] struct {
	store  *Store[T]
	fn     func(T)
	active bool
}

// New returns a store holding initial.
func New[T any](initial T) *Store[T] {
	return &Store[T]{state: initial}
}

// State returns the latest value.
func (s *Store[T]) State() T {
	return s.state
}

// SetState replaces the value and notifies every subscriber, in
// subscription order. When called from inside a notification, the new
// value is delivered after the current one has reached every subscriber,
// so all subscribers see values in SetState order.
func (s *Store[T]) SetState(v T) {
	s.state = v
	s.pending = append(s.pending, v)
	if s.publishing {
		return
	}
	s.publishing = true
	defer func() { s.publishing = false }()
	for len(s.pending) > 0 {
		next := s.pending[0]
		s.pending = s.pending[1:]
		s.current = next
		subs := append([]*Subscription[T](nil), s.subs...)
		for _, sub := range subs {
			if sub.active {
				sub.fn(next)
			}
		}
	}
}

// Subscribe registers fn and calls it at once with the current value.
// Inside a notification that is the value being published; values still
// queued behind it follow in order.
func (s *Store[T]) Subscribe(fn func(T)) *Subscription[T] {
	sub := &Subscription[T]{store: s, fn: fn, active: true}
	s.subs = append(s.subs, sub)
	if s.publishing {
		fn(s.current)
	} else {
		fn(s.state)
	}
	return sub
}

// Subscribers is the number of active subscriptions.
func (s *Store[T]) Subscribers() int {
	return len(s.subs)
}

// Cancel stops notifications. It may be called from inside a notification
// and more than once.
func (sub *Subscription[T]) Cancel() {
	if !sub.active {
		return
	}
	sub.active = false
	subs := sub.store.subs
	for i, other := range subs {
		if other == sub {
			sub.store.subs = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Active reports whether the subscription still receives values.
func (sub *Subscription[T]) Active() bool {
	return sub.active
}
