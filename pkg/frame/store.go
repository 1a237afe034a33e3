package frame

import "sync"

// Store is a single-slot holder for the most recent frame.
//
// The camera goroutine publishes into it and every other reader takes a
// copy out. Only pointer swaps and memory copies happen under the lock.
type Store struct {
	mu    sync.Mutex
	frame *Frame
	seq   uint64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Publish replaces the held frame. The previous frame is dropped while the
// lock is held, so no later Snapshot can observe it. The store takes
// ownership of f; the caller must not modify it after publishing.
func (s *Store) Publish(f *Frame) {
	s.mu.Lock()
	s.frame = f
	s.seq++
	s.mu.Unlock()
}

// Snapshot returns an independent copy of the held frame, or false if
// nothing has been published yet.
func (s *Store) Snapshot() (*Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return nil, false
	}
	return s.frame.Clone(), true
}

// Seq returns how many frames have been published.
func (s *Store) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Release drops the held frame. Used at shutdown.
func (s *Store) Release() {
	s.mu.Lock()
	s.frame = nil
	s.mu.Unlock()
}
