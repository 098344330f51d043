package tasks

import (
	"context"
	"time"

	"github.com/vyomos/netrajaal-mesh/internal/frame"
	"github.com/vyomos/netrajaal-mesh/internal/meshid"
	"github.com/vyomos/netrajaal-mesh/internal/radio"
	"github.com/vyomos/netrajaal-mesh/internal/router"
	"github.com/vyomos/netrajaal-mesh/internal/topology"
)

// SpathInterval is the period at which the command center re-announces its
// root path to every known neighbor, so a freshly learned neighbor (or one
// that missed the original announce) converges without waiting on a
// downstream S to reach it first (spec.md §4.6, §4.8 "path dissemination:
// CC-only").
var SpathInterval = 2 * time.Minute

// SpathJitterPct is the jitter applied to SpathInterval.
var SpathJitterPct = 0.1

// SpathTask is the command center's periodic root-path announce. On any
// non-CC node it is a no-op: downstream propagation there is driven
// reactively by router.handleS, not by a timer.
type SpathTask struct {
	Self     byte
	Radio    radio.Radio
	Topology *topology.Table
}

// NewSpathTask builds a SpathTask.
func NewSpathTask(self byte, r radio.Radio, topo *topology.Table) *SpathTask {
	return &SpathTask{Self: self, Radio: r, Topology: topo}
}

// Once broadcasts S=[self] (spec.md §8 scenario 5: "CC emits S=[CC] to R")
// to every known neighbor, if this node is the command center.
func (t *SpathTask) Once(ctx context.Context) error {
	if !t.Topology.IsCommandCenter() {
		return nil
	}
	payload := router.EncodePathCSV([]byte{t.Self})
	for _, n := range t.Topology.Neighbors() {
		mid := meshid.NewMID(byte(frame.TypeShortestPath), t.Self, t.Self, n)
		wire, err := frame.EncodeMID(mid, payload)
		if err != nil {
			continue
		}
		t.Radio.Send(ctx, n, wire)
	}
	return nil
}

// Run drives Once on a jittered SpathInterval schedule until stop is
// closed or ctx is done.
func (t *SpathTask) Run(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-time.After(jitter(SpathInterval, SpathJitterPct)):
			t.Once(ctx)
		}
	}
}
