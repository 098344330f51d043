package radio

import (
	"context"
	"math/rand"
	"sync"

	"github.com/vyomos/netrajaal-mesh/internal/meshid"
)

// InMemoryMesh wires together several Loopback radios so multiple Node
// instances can exchange frames in a single test process, as a stand-in
// for several physical radio-equipped devices sharing the air (spec.md
// §6's Radio interface is the only thing Node depends on). It can drop
// frames addressed to specific (src, dest) pairs, or by a uniform random
// rate, to exercise the reliability layer's retry behavior.
type InMemoryMesh struct {
	mu       sync.Mutex
	members  map[byte]*Loopback
	dropAddr map[[2]byte]int // (src,dest) -> number of future drops remaining
	dropRate float64
}

// NewInMemoryMesh returns an empty mesh.
func NewInMemoryMesh() *InMemoryMesh {
	return &InMemoryMesh{
		members:  make(map[byte]*Loopback),
		dropAddr: make(map[[2]byte]int),
	}
}

// Join creates and registers a Loopback radio for addr.
func (m *InMemoryMesh) Join(addr byte) *Loopback {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := &Loopback{addr: addr, mesh: m}
	m.members[addr] = l
	return l
}

// SetDropRate sets a uniform probability (0..1) that any frame is dropped
// in transit, for loss-tolerance tests.
func (m *InMemoryMesh) SetDropRate(p float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropRate = p
}

// DropNext arranges for the next n frames from src to dest to be dropped,
// for deterministic scenario tests (spec.md §8 scenario 2).
func (m *InMemoryMesh) DropNext(src, dest byte, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropAddr[[2]byte{src, dest}] = n
}

func (m *InMemoryMesh) route(ctx context.Context, src, dest byte, wire []byte) error {
	m.mu.Lock()
	key := [2]byte{src, dest}
	if remaining, ok := m.dropAddr[key]; ok && remaining > 0 {
		m.dropAddr[key] = remaining - 1
		m.mu.Unlock()
		return nil
	}
	if m.dropRate > 0 && rand.Float64() < m.dropRate {
		m.mu.Unlock()
		return nil
	}

	var targets []*Loopback
	if dest == meshid.BroadcastAddr {
		for addr, l := range m.members {
			if addr != src {
				targets = append(targets, l)
			}
		}
	} else if l, ok := m.members[dest]; ok {
		targets = append(targets, l)
	}
	m.mu.Unlock()

	for _, l := range targets {
		l.deliver(wire)
	}
	return nil
}
