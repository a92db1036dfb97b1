// Package signal implements the Signal value that replaces the original
// engine's UID-keyed Callback<F> container (see DESIGN.md, Callbacks).
package signal

import (
	"sync"
	"sync/atomic"
)

// Signal holds a set of subscriber closures, each addressable by the UID
// returned from Connect, and guards against reentrant Fire calls on the
// same instance with a CAS flag rather than a recursive lock.
type Signal[T any] struct {
	mu      sync.Mutex
	nextUID uint64
	subs    map[uint64]func(T)
	firing  atomic.Bool
}

// New returns an empty, ready-to-use Signal.
func New[T any]() *Signal[T] {
	return &Signal[T]{subs: make(map[uint64]func(T))}
}

// Connect registers fn and returns a UID that Disconnect can later use to
// remove it.
func (s *Signal[T]) Connect(fn func(T)) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUID++
	uid := s.nextUID
	s.subs[uid] = fn
	return uid
}

// Disconnect removes a previously Connected subscriber. It is a no-op if
// uid is unknown.
func (s *Signal[T]) Disconnect(uid uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, uid)
}

// Fire invokes every subscriber with value, outside of any lock held by the
// caller. If a Fire on this instance is already in progress (e.g. a
// subscriber reentrantly fires the same Signal), the inner Fire is silently
// dropped — this is an intentional simplification carried over from the
// original engine's Callback reentrancy behavior, not a bug to "fix".
func (s *Signal[T]) Fire(value T) {
	if !s.firing.CompareAndSwap(false, true) {
		return
	}
	defer s.firing.Store(false)

	s.mu.Lock()
	snapshot := make([]func(T), 0, len(s.subs))
	for _, fn := range s.subs {
		snapshot = append(snapshot, fn)
	}
	s.mu.Unlock()

	for _, fn := range snapshot {
		fn(value)
	}
}
