package overlay

import (
	"errors"
	"sync"
	"testing"
)

func box(id int64, cx float64) Overlay {
	return Overlay{ID: id, CX: cx, CY: 10, W: 20, H: 10, Color: DefaultColor}
}

func TestStore_LastWriteWinsKeepsPosition(t *testing.T) {
	s := NewStore()
	for _, o := range []Overlay{box(1, 10), box(2, 20), box(3, 30)} {
		if err := s.Upsert(o); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	if err := s.Upsert(box(1, 99)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	snap := s.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len = %d, want 3", len(snap))
	}
	if snap[0].ID != 1 || snap[0].CX != 99 {
		t.Errorf("first = %+v, want id 1 with cx 99", snap[0])
	}
	ids := s.IDs()
	if ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Errorf("IDs = %v", ids)
	}
}

func TestStore_InvalidUpsertLeavesStoreUnchanged(t *testing.T) {
	s := NewStore()
	s.Upsert(box(1, 10))

	bad := box(1, 50)
	bad.W = 0
	err := s.Upsert(bad)
	if !errors.Is(err, ErrInvalidOverlay) {
		t.Fatalf("err = %v, want ErrInvalidOverlay", err)
	}
	got, ok := s.Get(1)
	if !ok || got.CX != 10 {
		t.Errorf("stored overlay changed: %+v", got)
	}
	if s.Count() != 1 {
		t.Errorf("Count = %d", s.Count())
	}
}

func TestStore_Remove(t *testing.T) {
	s := NewStore()
	s.Upsert(box(1, 10))
	s.Upsert(box(2, 20))

	if !s.Remove(1) {
		t.Error("Remove(1) should report true")
	}
	if s.Remove(1) {
		t.Error("second Remove(1) should report false")
	}
	if ids := s.IDs(); len(ids) != 1 || ids[0] != 2 {
		t.Errorf("IDs = %v, want [2]", ids)
	}
}

func TestStore_ReplaceAllIsAllOrNothing(t *testing.T) {
	s := NewStore()
	s.Upsert(box(7, 70))

	bad := box(2, 20)
	bad.H = -3
	if err := s.ReplaceAll([]Overlay{box(1, 10), bad}); !errors.Is(err, ErrInvalidOverlay) {
		t.Fatalf("err = %v, want ErrInvalidOverlay", err)
	}
	if ids := s.IDs(); len(ids) != 1 || ids[0] != 7 {
		t.Errorf("store changed after failed ReplaceAll: %v", ids)
	}

	if err := s.ReplaceAll([]Overlay{box(3, 30), box(1, 10), box(3, 33)}); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}
	snap := s.Snapshot()
	if len(snap) != 2 || snap[0].ID != 3 || snap[0].CX != 33 || snap[1].ID != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestStore_ClearAndEmptyIDs(t *testing.T) {
	s := NewStore()
	s.Upsert(box(1, 10))
	s.Clear()
	if s.Count() != 0 {
		t.Errorf("Count = %d after Clear", s.Count())
	}
	if ids := s.IDs(); ids == nil || len(ids) != 0 {
		t.Errorf("IDs = %#v, want empty non-nil slice", ids)
	}
}

func TestStore_SnapshotIsIndependent(t *testing.T) {
	s := NewStore()
	s.Upsert(box(1, 10))
	snap := s.Snapshot()
	snap[0].CX = 1000
	if got, _ := s.Get(1); got.CX != 10 {
		t.Errorf("mutating a snapshot leaked into the store: %+v", got)
	}
}

func TestStore_ConcurrentUpserts(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.Upsert(box(int64(g*100+i), float64(i)))
				s.Snapshot()
			}
		}(g)
	}
	wg.Wait()
	if s.Count() != 800 {
		t.Errorf("Count = %d, want 800", s.Count())
	}
}
