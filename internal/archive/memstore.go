package archive

import (
	"context"
	"slices"
	"sync"
)

// DefaultMemCapacity bounds a [MemStore] created with a non-positive
// capacity.
const DefaultMemCapacity = 1024

// MemStore keeps records in memory, evicting the oldest once full.
type MemStore struct {
	mu       sync.RWMutex
	capacity int
	byID     map[string]Record
	order    []string // oldest first
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates a MemStore holding at most capacity records.
func NewMemStore(capacity int) *MemStore {
	if capacity <= 0 {
		capacity = DefaultMemCapacity
	}
	return &MemStore{capacity: capacity, byID: make(map[string]Record)}
}

func (s *MemStore) Save(_ context.Context, r *Record) error {
	if err := prepare(r); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[r.ID]; exists {
		s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == r.ID })
	}
	s.byID[r.ID] = clone(*r)
	s.order = append(s.order, r.ID)

	for len(s.order) > s.capacity {
		delete(s.byID, s.order[0])
		s.order = s.order[1:]
	}
	return nil
}

func (s *MemStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := clone(r)
	return &out, nil
}

func (s *MemStore) List(_ context.Context, kind Kind, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for i := len(s.order) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		r := s.byID[s.order[i]]
		if kind != "" && r.Kind != kind {
			continue
		}
		out = append(out, clone(r))
	}
	return out, nil
}

// Ping always succeeds.
func (s *MemStore) Ping(context.Context) error { return nil }

// Len returns the number of stored records.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// clone copies the slices a caller could mutate. Reports are treated as
// immutable once saved.
func clone(r Record) Record {
	r.Lines = slices.Clone(r.Lines)
	r.EndWords = slices.Clone(r.EndWords)
	return r
}
