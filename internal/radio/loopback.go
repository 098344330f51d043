package radio

import (
	"context"
	"sync"
)

// Loopback is a single node's endpoint into an InMemoryMesh: frames
// addressed to it by other participants land in its inbound queue, and
// frames it sends are handed to the owning mesh for delivery.
type Loopback struct {
	addr    byte
	mesh    *InMemoryMesh
	mu      sync.Mutex
	inbound [][]byte
	resets  int
}

// Send implements Radio by handing the frame to the mesh switchboard,
// which applies loss and enqueues it on the destination's Loopback.
func (l *Loopback) Send(ctx context.Context, dest byte, wire []byte) error {
	return l.mesh.route(ctx, l.addr, dest, wire)
}

// Recv implements Radio: a non-blocking pop of the oldest queued frame.
func (l *Loopback) Recv() ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.inbound) == 0 {
		return nil, false
	}
	wire := l.inbound[0]
	l.inbound = l.inbound[1:]
	return wire, true
}

// Reset implements Radio as a no-op counter, since there's no real
// transceiver state to reinitialize in the simulator.
func (l *Loopback) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resets++
	return nil
}

// ResetCount reports how many times Reset has been called, for tests that
// assert on radio-fault recovery (spec.md §7 "RadioFault").
func (l *Loopback) ResetCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resets
}

func (l *Loopback) deliver(wire []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inbound = append(l.inbound, wire)
}
