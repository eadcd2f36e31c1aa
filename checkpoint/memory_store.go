package checkpoint

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory implementation of Store. Suitable for
// development and testing; contents are lost on process exit.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*Checkpoint
	byRun  map[string][]string // runID -> checkpoint IDs in save order
	closed bool
}

// NewMemoryStore creates a new in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[string]*Checkpoint),
		byRun: make(map[string][]string),
	}
}

// Save persists a checkpoint.
func (s *MemoryStore) Save(ctx context.Context, cp *Checkpoint) error {
	if err := prepare(cp); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	stored := *cp
	if _, exists := s.byID[cp.ID]; !exists {
		s.byRun[cp.RunID] = append(s.byRun[cp.RunID], cp.ID)
	}
	s.byID[cp.ID] = &stored
	return nil
}

// Load retrieves a checkpoint by ID.
func (s *MemoryStore) Load(ctx context.Context, id string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	cp, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *cp
	return &out, nil
}

// LoadLatest retrieves the most recently saved checkpoint of a run.
func (s *MemoryStore) LoadLatest(ctx context.Context, runID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	ids := s.byRun[runID]
	if len(ids) == 0 {
		return nil, ErrNotFound
	}
	cp := *s.byID[ids[len(ids)-1]]
	return &cp, nil
}

// List returns all checkpoints of a run, oldest first.
func (s *MemoryStore) List(ctx context.Context, runID string) ([]*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	ids := s.byRun[runID]
	out := make([]*Checkpoint, 0, len(ids))
	for _, id := range ids {
		cp := *s.byID[id]
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Delete removes a checkpoint by ID.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	cp, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byID, id)
	ids := s.byRun[cp.RunID]
	for i, candidate := range ids {
		if candidate == id {
			s.byRun[cp.RunID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(s.byRun[cp.RunID]) == 0 {
		delete(s.byRun, cp.RunID)
	}
	return nil
}

// Close marks the store as closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
