package buffers

import (
	"testing"

	"github.com/vyomos/netrajaal-mesh/internal/meshid"
)

func TestStoreAppendLenSnapshot(t *testing.T) {
	s := NewStore(500, 3600_000)
	mid := meshid.NewMID('H', 1, 2, 3)
	s.Append(Entry{MID: mid, Payload: []byte("x"), TimeMS: 100})

	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
	snap := s.Snapshot()
	if len(snap) != 1 || snap[0].MID != mid {
		t.Errorf("Snapshot() = %v", snap)
	}
}

func TestStoreRemove(t *testing.T) {
	s := NewStore(500, 3600_000)
	mid := meshid.NewMID('H', 1, 2, 3)
	s.Append(Entry{MID: mid, TimeMS: 1})

	e, ok := s.Remove(mid)
	if !ok || e.MID != mid {
		t.Fatalf("Remove() = %v, %v", e, ok)
	}
	if s.Len() != 0 {
		t.Errorf("Len() after remove = %d, want 0", s.Len())
	}
	if _, ok := s.Remove(mid); ok {
		t.Error("second Remove() should report not found")
	}
}

func TestStoreSweepByAge(t *testing.T) {
	s := NewStore(500, 1000)
	old := meshid.NewMID('H', 1, 2, 3)
	fresh := meshid.NewMID('H', 1, 2, 4)
	s.Append(Entry{MID: old, TimeMS: 0})
	s.Append(Entry{MID: fresh, TimeMS: 5000})

	evicted := s.Sweep(5500)
	if evicted != 1 {
		t.Fatalf("Sweep() evicted = %d, want 1", evicted)
	}
	if s.Len() != 1 {
		t.Fatalf("Len() after sweep = %d, want 1", s.Len())
	}
	if s.Snapshot()[0].MID != fresh {
		t.Error("sweep removed the wrong entry")
	}
}

func TestStoreSweepBySizeCapKeepsNewest(t *testing.T) {
	s := NewStore(2, 1_000_000)
	for i := 0; i < 5; i++ {
		s.Append(Entry{MID: meshid.NewMID('H', 1, 2, byte(i)), TimeMS: uint64(i)})
	}
	s.Sweep(1000)
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	snap := s.Snapshot()
	if snap[0].TimeMS != 3 || snap[1].TimeMS != 4 {
		t.Errorf("expected newest two entries retained, got %v", snap)
	}
}

func TestChunkTableBoundedEviction(t *testing.T) {
	var evicted []string
	table := NewChunkTable[int](2, 1_000_000, func(id string, v int) {
		evicted = append(evicted, id)
	})
	table.Put("AAA", 1, 0)
	table.Put("BBB", 2, 1)
	table.Put("CCC", 3, 2) // should evict AAA (oldest)

	if table.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", table.Len())
	}
	if _, ok := table.Get("AAA"); ok {
		t.Error("AAA should have been evicted")
	}
	if len(evicted) != 1 || evicted[0] != "AAA" {
		t.Errorf("evicted = %v, want [AAA]", evicted)
	}
}

func TestChunkTableSweepByAge(t *testing.T) {
	table := NewChunkTable[int](50, 100, nil)
	table.Put("AAA", 1, 0)
	n := table.Sweep(200)
	if n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	if table.Len() != 0 {
		t.Error("expected context to be evicted")
	}
}

func TestChunkTableDeleteInvokesOnEvict(t *testing.T) {
	var gotID string
	table := NewChunkTable[int](50, 1_000_000, func(id string, v int) { gotID = id })
	table.Put("AAA", 1, 0)
	table.Delete("AAA")
	if gotID != "AAA" {
		t.Errorf("onEvict id = %q, want AAA", gotID)
	}
	if table.Len() != 0 {
		t.Error("expected entry removed")
	}
}
