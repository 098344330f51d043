package tasks

import (
	"context"
	"time"

	"github.com/vyomos/netrajaal-mesh/internal/frame"
	"github.com/vyomos/netrajaal-mesh/internal/topology"
	"github.com/vyomos/netrajaal-mesh/internal/txlock"
	"github.com/vyomos/netrajaal-mesh/internal/unicast"
)

// ValidateInterval is the neighbor-validation sweep period (spec.md §4.11
// "every ~20 min").
var ValidateInterval = 20 * time.Minute

// ValidateJitterPct is the jitter applied to ValidateInterval.
var ValidateJitterPct = 0.1

// ValidateTask issues a reliable V to each known neighbor and evicts any
// that fails to ack, clearing path_to_cc if the evicted neighbor was the
// next hop (spec.md §4.11: "avoid permanently routing through a vanished
// peer").
type ValidateTask struct {
	Self     byte
	Uni      *unicast.Sender
	Topology *topology.Table
	Lock     *txlock.Lock
}

// NewValidateTask builds a ValidateTask.
func NewValidateTask(self byte, uni *unicast.Sender, topo *topology.Table, lock *txlock.Lock) *ValidateTask {
	return &ValidateTask{Self: self, Uni: uni, Topology: topo, Lock: lock}
}

// Once validates every known neighbor once, evicting any that does not ack.
// It reports the addresses evicted this round.
func (v *ValidateTask) Once(ctx context.Context) []byte {
	if v.Lock.Held() {
		return nil
	}
	var evicted []byte
	for _, n := range v.Topology.Neighbors() {
		if _, _, err := v.Uni.SendSingle(ctx, frame.TypeValidate, v.Self, v.Self, n, nil); err != nil {
			v.Topology.EvictNeighbor(n)
			evicted = append(evicted, n)
		}
	}
	return evicted
}

// Run drives Once on a jittered ValidateInterval schedule until stop is
// closed or ctx is done.
func (v *ValidateTask) Run(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-time.After(jitter(ValidateInterval, ValidateJitterPct)):
			v.Once(ctx)
		}
	}
}
