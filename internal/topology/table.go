// Package topology implements the neighbor set and path-to-command-center
// table (spec.md §4.6, C9): monotonic neighbor learning and
// strictly-shorter-path adoption with cycle rejection.
package topology

import "sync"

// Table holds one node's view of its neighbors and its path to the
// command center. The zero value is not usable; construct with New.
type Table struct {
	mu         sync.RWMutex
	self       byte
	isCC       bool
	fixedRoute bool
	neighbors  map[byte]bool
	pathToCC   []byte
}

// New returns a Table for a node at address self. isCC marks the command
// center, which always has an empty path and ignores inbound path
// announces (spec.md §4.6). fixedRoute disables adoption, keeping
// initialPath for the life of the node. initialPath may be empty.
func New(self byte, isCC, fixedRoute bool, initialPath []byte) *Table {
	t := &Table{
		self:       self,
		isCC:       isCC,
		fixedRoute: fixedRoute,
		neighbors:  make(map[byte]bool),
	}
	if !isCC && len(initialPath) > 0 {
		t.pathToCC = append([]byte{}, initialPath...)
	}
	return t
}

// LearnNeighbor adds addr to the neighbor set if absent, reporting whether
// it was newly learned (spec.md §4.6 "every N broadcast ... adds the
// creator address to neighbors if absent").
func (t *Table) LearnNeighbor(addr byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.neighbors[addr] {
		return false
	}
	t.neighbors[addr] = true
	return true
}

// Neighbors returns a snapshot of the current neighbor set.
func (t *Table) Neighbors() []byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]byte, 0, len(t.neighbors))
	for addr := range t.neighbors {
		out = append(out, addr)
	}
	return out
}

// HasNeighbor reports whether addr is currently a known neighbor.
func (t *Table) HasNeighbor(addr byte) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.neighbors[addr]
}

// PathToCC returns a copy of the current path (empty means no known route).
func (t *Table) PathToCC() []byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]byte{}, t.pathToCC...)
}

// NextHop returns the first hop of the current path, if any.
func (t *Table) NextHop() (byte, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.pathToCC) == 0 {
		return 0, false
	}
	return t.pathToCC[0], true
}

// IsCommandCenter reports whether this table belongs to the command center.
func (t *Table) IsCommandCenter() bool { return t.isCC }

func containsByte(path []byte, addr byte) bool {
	for _, b := range path {
		if b == addr {
			return true
		}
	}
	return false
}

// AdoptPath evaluates an inbound shortest-path announce carrying
// candidate (spec.md §4.6). It adopts candidate as the new path iff this
// node is not already an element of candidate (no cycles) and candidate is
// strictly shorter than the current path (or the current path is empty).
// Command-center nodes and fixed-route nodes never adopt.
//
// On adoption it returns adopted=true, announcePath — candidate with self
// prepended, which is what this node must now broadcast as its own S — and
// targets, the subset of known neighbors not already present in candidate,
// which are the recipients of that re-announce.
func (t *Table) AdoptPath(candidate []byte) (adopted bool, announcePath []byte, targets []byte) {
	if t.isCC || t.fixedRoute {
		return false, nil, nil
	}
	if containsByte(candidate, t.self) {
		return false, nil, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.pathToCC) != 0 && len(candidate) >= len(t.pathToCC) {
		return false, nil, nil
	}

	t.pathToCC = append([]byte{}, candidate...)

	announcePath = make([]byte, 0, len(candidate)+1)
	announcePath = append(announcePath, t.self)
	announcePath = append(announcePath, candidate...)

	for addr := range t.neighbors {
		if !containsByte(candidate, addr) {
			targets = append(targets, addr)
		}
	}
	return true, announcePath, targets
}

// EvictNeighbor removes addr from the neighbor set (spec.md §4.11
// validation sweep) and, if it was the current next hop, clears the path
// so no payload is routed through a vanished peer. It reports whether the
// path was cleared.
func (t *Table) EvictNeighbor(addr byte) (pathCleared bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.neighbors, addr)
	if len(t.pathToCC) > 0 && t.pathToCC[0] == addr {
		t.pathToCC = nil
		return true
	}
	return false
}
