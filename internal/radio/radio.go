// Package radio defines the driver boundary the mesh core sends and
// receives raw frames through (spec.md §6), plus in-process stand-ins
// used by cmd/node's demo mode and by the test suite.
package radio

import (
	"context"
	"errors"
)

// ErrFault is returned (or observed via repeated Send failures) when the
// transceiver needs a hard reinitialize (spec.md §7 "RadioFault").
var ErrFault = errors.New("radio: fault, reinitialize required")

// Radio is the single-transceiver driver interface the core consumes. It
// never interprets frame contents — newline-escaping and all other codec
// concerns are applied by internal/frame before Send and after Recv.
type Radio interface {
	// Send enqueues one already-encoded, <=254-byte frame addressed to
	// dest, blocking until the transceiver accepts it.
	Send(ctx context.Context, dest byte, wire []byte) error
	// Recv polls for one inbound frame without blocking. ok is false
	// when nothing is currently available.
	Recv() (wire []byte, ok bool)
	// Reset hard-reinitializes the transceiver.
	Reset() error
}
