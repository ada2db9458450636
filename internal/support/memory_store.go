package support

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryCaseStore keeps cases in process. Used when Redis is not configured
// and in tests.
type MemoryCaseStore struct {
	mu    sync.RWMutex
	cases map[string]Case
}

func NewMemoryCaseStore() *MemoryCaseStore {
	return &MemoryCaseStore{cases: make(map[string]Case)}
}

func (s *MemoryCaseStore) Open(_ context.Context, c Case) error {
	if c.ID == "" {
		return fmt.Errorf("support: case id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cases[c.ID] = c
	return nil
}

func (s *MemoryCaseStore) Get(_ context.Context, id string) (*Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, ErrCaseNotFound
	}
	return &c, nil
}

func (s *MemoryCaseStore) List(_ context.Context, opts ListOptions) ([]Case, error) {
	s.mu.RLock()
	out := make([]Case, 0, len(s.cases))
	for _, c := range s.cases {
		if opts.OpenOnly && c.Status != StatusOpen {
			continue
		}
		out = append(out, c)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit := opts.limit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryCaseStore) Resolve(_ context.Context, id, note string, at time.Time) (*Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, ErrCaseNotFound
	}
	if c.Status == StatusResolved {
		return nil, ErrAlreadyResolved
	}
	c.Status = StatusResolved
	c.Resolution = note
	resolvedAt := at.UTC()
	c.ResolvedAt = &resolvedAt
	s.cases[id] = c
	return &c, nil
}
