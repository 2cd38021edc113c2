package state

import (
	"sync"
	"sync/atomic"

	pubstate "github.com/formflow-labs/formflow/pkg/formflow/v1/state"
)

// Store owns the current form snapshot and the change stream. Commit is the
// single mutation path: it assigns the next version, swaps the current
// snapshot pointer, and fans the snapshot out to listeners synchronously in
// subscription order. Readers take the atomic pointer without locking; the
// snapshot itself is immutable.
type Store struct {
	current atomic.Pointer[pubstate.Snapshot]

	mu        sync.Mutex
	version   uint64
	listeners []listenerEntry
	nextID    uint64
}

type listenerEntry struct {
	id uint64
	fn pubstate.Listener
}

// NewStore creates a Store publishing the given snapshot as version 1.
// A nil initial snapshot starts the store on an empty one.
func NewStore(initial *pubstate.Snapshot) *Store {
	s := &Store{}
	if initial == nil {
		initial = pubstate.New()
	}
	s.version = 1
	s.current.Store(initial.WithVersion(1))
	return s
}

// Current returns the latest published snapshot.
func (s *Store) Current() *pubstate.Snapshot {
	return s.current.Load()
}

// Commit publishes next as the new current snapshot and notifies every
// listener, in subscription order, before returning. The returned snapshot
// carries the assigned version. Listener callbacks run on the committing
// goroutine; a listener attached before commit N observes every snapshot
// from N onward in order.
func (s *Store) Commit(next *pubstate.Snapshot) *pubstate.Snapshot {
	s.mu.Lock()
	s.version++
	versioned := next.WithVersion(s.version)
	s.current.Store(versioned)
	// Copy the listener slice so an unsubscribe during fan-out does not
	// disturb iteration.
	active := make([]listenerEntry, len(s.listeners))
	copy(active, s.listeners)
	s.mu.Unlock()

	for _, entry := range active {
		entry.fn(versioned)
	}
	return versioned
}

// Subscribe registers a change-stream listener and returns its unsubscribe
// function. The listener observes every commit made after registration.
func (s *Store) Subscribe(fn pubstate.Listener) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, entry := range s.listeners {
				if entry.id == id {
					s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
					break
				}
			}
		})
	}
}

// Close drops all listeners. Subsequent commits publish silently.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = nil
}
