package approval

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store and ChainStore. It is the default
// backend for single-process deployments and the reference implementation
// the engine's tests run against.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	chains  map[chainKey]time.Time
}

type chainKey struct {
	caller string
	callee string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		chains:  make(map[chainKey]time.Time),
	}
}

// Get returns a copy of the live record for toolID, or (nil, nil).
func (s *MemoryStore) Get(_ context.Context, toolID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[toolID].Clone(), nil
}

// Put replaces the record for rec.ToolID. The store keeps its own copy, so
// later mutation of rec by the caller is not visible to readers.
func (s *MemoryStore) Put(_ context.Context, rec *Record) error {
	clone := rec.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[clone.ToolID] = clone
	return nil
}

// Delete removes the record for toolID if present.
func (s *MemoryStore) Delete(_ context.Context, toolID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, toolID)
	return nil
}

// Len returns the number of live records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore) ChainApproved(_ context.Context, callerID, calleeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.chains[chainKey{callerID, calleeID}]
	return ok, nil
}

func (s *MemoryStore) ApproveChain(_ context.Context, callerID, calleeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chains[chainKey{callerID, calleeID}] = time.Now().UTC()
	return nil
}

func (s *MemoryStore) RevokeChain(_ context.Context, callerID, calleeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chains, chainKey{callerID, calleeID})
	return nil
}
