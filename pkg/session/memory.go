package session

import (
	"context"
	"sync"
	"time"
)

// memoryStore keeps snapshots in-process. The default for single
// instance deployments; state dies with the process.
type memoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]*Snapshot
}

func newMemoryStore() *memoryStore {
	return &memoryStore{snapshots: make(map[string]*Snapshot)}
}

func (s *memoryStore) Create(_ context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	snap.CreatedAt = now
	snap.UpdatedAt = now
	snap.Version = 1
	s.snapshots[snap.CallSID] = snap
	return nil
}

func (s *memoryStore) Get(_ context.Context, callSID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[callSID]
	if !ok {
		return nil, nil
	}
	return snap, nil
}

func (s *memoryStore) Update(_ context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.snapshots[snap.CallSID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != snap.Version {
		return ErrVersionConflict
	}
	snap.Version++
	snap.UpdatedAt = time.Now()
	s.snapshots[snap.CallSID] = snap
	return nil
}

func (s *memoryStore) Delete(_ context.Context, callSID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, callSID)
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = nil
	return nil
}
