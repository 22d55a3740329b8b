package simple

import (
	"context"
	"sync"

	"basket_swap/internal/core"
)

// MemoryStore keeps only the most recent run. Saving a run replaces the previous one, so
// nothing outlives the current run and the process. This is the default store.
type MemoryStore struct {
	mu   sync.RWMutex
	last *core.RunSnapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) SaveRun(ctx context.Context, snap core.RunSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &snap
	return nil
}

func (s *MemoryStore) LoadRun(ctx context.Context, id string) (*core.RunSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil || s.last.ID != id {
		return nil, nil
	}
	snap := *s.last
	return &snap, nil
}

func (s *MemoryStore) ListRuns(ctx context.Context, limit int) ([]core.RunSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return []core.RunSnapshot{}, nil
	}
	return []core.RunSnapshot{*s.last}, nil
}
