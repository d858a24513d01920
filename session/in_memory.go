package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/inboxmesh/core"
)

// InMemoryStore is a volatile core.CheckpointStore keeping suspended graph
// invocations in a process local map. One mutex serialises every access.
// Checkpoints are cloned on the way in and out so callers never share a
// history with the store.
type InMemoryStore struct {
	mu       sync.Mutex
	byID     map[string]core.Checkpoint
	byThread map[string]string
	now      func() time.Time
}

// NewInMemoryStore constructs an empty in‑memory checkpoint store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:     make(map[string]core.Checkpoint),
		byThread: make(map[string]string),
		now:      time.Now,
	}
}

// Put stores a clone of cp. A checkpoint already pending on the same thread
// becomes stale and is dropped.
func (s *InMemoryStore) Put(cp core.Checkpoint) error {
	if cp.ID == "" {
		return fmt.Errorf("checkpoint id is required")
	}
	if cp.ThreadID == "" {
		return fmt.Errorf("checkpoint %s: thread id is required", cp.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.byThread[cp.ThreadID]; ok {
		delete(s.byID, old)
	}
	stored := cp.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	s.byID[cp.ID] = stored
	s.byThread[cp.ThreadID] = cp.ID
	return nil
}

// Get returns a clone of the checkpoint and leaves it in place.
func (s *InMemoryStore) Get(id string) (core.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.byID[id]
	if !ok {
		return core.Checkpoint{}, fmt.Errorf("%w: %s", core.ErrUnknownCheckpoint, id)
	}
	return cp.Clone(), nil
}

// Take removes the checkpoint and returns it.
func (s *InMemoryStore) Take(id string) (core.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.byID[id]
	if !ok {
		return core.Checkpoint{}, fmt.Errorf("%w: %s", core.ErrUnknownCheckpoint, id)
	}
	delete(s.byID, id)
	if s.byThread[cp.ThreadID] == id {
		delete(s.byThread, cp.ThreadID)
	}
	return cp, nil
}

// Pending returns a clone of the checkpoint waiting on thread.
func (s *InMemoryStore) Pending(threadID string) (core.Checkpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byThread[threadID]
	if !ok {
		return core.Checkpoint{}, false
	}
	return s.byID[id].Clone(), true
}

// Clear drops the checkpoint pending on thread, if any.
func (s *InMemoryStore) Clear(threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byThread[threadID]; ok {
		delete(s.byID, id)
		delete(s.byThread, threadID)
	}
}

// Len returns the number of pending checkpoints.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// Threads returns the ids of threads with a pending checkpoint.
func (s *InMemoryStore) Threads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.byThread))
	for t := range s.byThread {
		out = append(out, t)
	}
	return out
}
