package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/vyomos/netrajaal-mesh/internal/envelope"
	"github.com/vyomos/netrajaal-mesh/internal/frame"
	"github.com/vyomos/netrajaal-mesh/internal/radio"
	"github.com/vyomos/netrajaal-mesh/internal/topology"
	"github.com/vyomos/netrajaal-mesh/internal/txlock"
	"github.com/vyomos/netrajaal-mesh/internal/unicast"
)

// HeartbeatInterval is the steady-state heartbeat period (spec.md §4.8:
// "every ~10 min (jittered)").
var HeartbeatInterval = 10 * time.Minute

// HeartbeatJitterPct is the jitter applied to HeartbeatInterval.
var HeartbeatJitterPct = 0.1

// HeartbeatMaxFailures is the number of consecutive reliable-send failures
// that trigger a radio reinitialize (spec.md §4.8 "On N consecutive
// failures, reinitialize the radio").
var HeartbeatMaxFailures = 5

// ErrNoRoute is returned by HeartbeatTask.Once when this node has no known
// path to the command center and is not itself the command center.
var ErrNoRoute = errors.New("tasks: no route to command center")

// StatusEncoder builds the opaque status-record bytes carried by one
// heartbeat (counters, GPS staleness, neighbors, current path — spec.md
// §4.8). Left to the caller so tasks stays agnostic to the record layout.
type StatusEncoder func() []byte

// HeartbeatTask periodically encodes and reliable-sends a status record
// toward the command center, RSA-wrapping it first when encryption is
// configured.
type HeartbeatTask struct {
	Self     byte
	Creator  byte
	Radio    radio.Radio
	Uni      *unicast.Sender
	Topology *topology.Table
	Lock     *txlock.Lock
	Status   StatusEncoder

	// Encrypt wraps the status record, typically envelope.WrapRSA bound to
	// the command center's public key. Nil when encryption is disabled.
	Encrypt func([]byte) ([]byte, error)

	consecutiveFailures int
}

// NewHeartbeatTask builds a HeartbeatTask. encrypt may be nil.
func NewHeartbeatTask(self, creator byte, r radio.Radio, uni *unicast.Sender, topo *topology.Table, lock *txlock.Lock, status StatusEncoder, encrypt func([]byte) ([]byte, error)) *HeartbeatTask {
	return &HeartbeatTask{Self: self, Creator: creator, Radio: r, Uni: uni, Topology: topo, Lock: lock, Status: status, Encrypt: encrypt}
}

// Once sends one heartbeat, returning ErrNoRoute if there is nowhere to
// send it and the underlying send error otherwise. It tracks consecutive
// failures and resets the radio once HeartbeatMaxFailures is reached.
func (h *HeartbeatTask) Once(ctx context.Context) error {
	if h.Lock.Held() {
		return nil
	}
	if h.Topology.IsCommandCenter() {
		return nil
	}
	dest, ok := h.Topology.NextHop()
	if !ok {
		return ErrNoRoute
	}

	payload := h.Status()
	if h.Encrypt != nil {
		if wrapped, err := h.Encrypt(payload); err == nil {
			payload = wrapped
		} else if !errors.Is(err, envelope.ErrTooLarge) {
			return err
		}
		// ErrTooLarge: send the plaintext record unwrapped, per spec.md §7's
		// explicit downgrade.
	}

	_, _, err := h.Uni.SendSingle(ctx, frame.TypeHeartbeat, h.Creator, h.Self, dest, payload)
	if err != nil {
		h.consecutiveFailures++
		if h.consecutiveFailures >= HeartbeatMaxFailures {
			h.Radio.Reset()
			h.consecutiveFailures = 0
		}
		return err
	}
	h.consecutiveFailures = 0
	return nil
}

// Run drives Once on a jittered HeartbeatInterval schedule until stop is
// closed or ctx is done.
func (h *HeartbeatTask) Run(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-time.After(jitter(HeartbeatInterval, HeartbeatJitterPct)):
			h.Once(ctx)
		}
	}
}
