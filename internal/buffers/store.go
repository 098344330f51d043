// Package buffers implements the bounded, age-swept in-memory stores that
// back the sent/recd/unacked logs and the chunk-context table (spec.md
// §3 "Outbound tracking" / §4.10 buffer manager, C12).
package buffers

import (
	"sync"

	"github.com/vyomos/netrajaal-mesh/internal/meshid"
)

// Entry is one record in a sent/recd/unacked log: a MID, its payload, and
// the millisecond timestamp it was logged at.
type Entry struct {
	MID     meshid.MID
	Payload []byte
	TimeMS  uint64
}

// Store is a bounded, age-swept FIFO of Entry values. The zero value is
// not usable; construct with NewStore. Safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	entries   []Entry
	maxSize   int
	maxAgeMS  uint64
	evictions uint64
}

// NewStore returns an empty Store capped at maxSize entries and aging out
// entries older than maxAgeMS on Sweep.
func NewStore(maxSize int, maxAgeMS uint64) *Store {
	return &Store{maxSize: maxSize, maxAgeMS: maxAgeMS}
}

// Append adds an entry. Insertion never blocks and never trims
// immediately — trimming happens on Sweep, per spec.md §4.10.
func (s *Store) Append(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

// Len returns the current entry count.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Snapshot returns a copy of the current entries, newest-last.
func (s *Store) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Remove deletes the first entry matching mid, if present, and reports
// whether anything was removed. Used by unicast to pop an acked entry out
// of the unacked store.
func (s *Store) Remove(mid meshid.MID) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.MID == mid {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return e, true
		}
	}
	return Entry{}, false
}

// Sweep evicts entries older than maxAgeMS (relative to nowMS), then
// trims by size FIFO-oldest-first if still over maxSize. It returns the
// number of entries evicted for age, which callers can feed to metrics.
func (s *Store) Sweep(nowMS uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	evictedByAge := 0
	for _, e := range s.entries {
		if nowMS-e.TimeMS < s.maxAgeMS {
			kept = append(kept, e)
		} else {
			evictedByAge++
		}
	}
	s.entries = kept

	if len(s.entries) > s.maxSize {
		overflow := len(s.entries) - s.maxSize
		s.entries = s.entries[overflow:]
	}

	s.evictions += uint64(evictedByAge)
	return evictedByAge
}

// Evictions returns the cumulative count of age-evicted entries, for
// metrics export.
func (s *Store) Evictions() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictions
}
