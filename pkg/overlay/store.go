package overlay

import (
	"slices"
	"sync"
)

// Store is the set of overlays currently drawn by a worker.
// Iteration order is insertion order; updating an existing id keeps its slot.
type Store struct {
	mu    sync.Mutex
	byID  map[int64]Overlay
	order []int64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{byID: make(map[int64]Overlay)}
}

// Upsert inserts or replaces the overlay with o.ID.
// An invalid overlay leaves the store untouched.
func (s *Store) Upsert(o Overlay) error {
	if err := o.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[o.ID]; !ok {
		s.order = append(s.order, o.ID)
	}
	s.byID[o.ID] = o
	return nil
}

// Remove deletes id and reports whether it was present.
func (s *Store) Remove(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	if i := slices.Index(s.order, id); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
	return true
}

// Clear removes every overlay.
func (s *Store) Clear() {
	s.mu.Lock()
	s.byID = make(map[int64]Overlay)
	s.order = nil
	s.mu.Unlock()
}

// ReplaceAll swaps the whole set for items. Every item is validated first;
// on error the previous set is kept. Duplicate ids keep the first position
// and the last value.
func (s *Store) ReplaceAll(items []Overlay) error {
	for _, o := range items {
		if err := o.Validate(); err != nil {
			return err
		}
	}

	byID := make(map[int64]Overlay, len(items))
	order := make([]int64, 0, len(items))
	for _, o := range items {
		if _, ok := byID[o.ID]; !ok {
			order = append(order, o.ID)
		}
		byID[o.ID] = o
	}

	s.mu.Lock()
	s.byID = byID
	s.order = order
	s.mu.Unlock()
	return nil
}

// Snapshot returns a copy of all overlays in insertion order.
func (s *Store) Snapshot() []Overlay {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Overlay, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Get returns the overlay with id.
func (s *Store) Get(id int64) (Overlay, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byID[id]
	return o, ok
}

// Count returns the number of overlays.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// IDs returns overlay ids in insertion order.
func (s *Store) IDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, len(s.order))
	copy(out, s.order)
	return out
}
