package tasks

import (
	"context"
	"time"

	"github.com/vyomos/netrajaal-mesh/internal/frame"
	"github.com/vyomos/netrajaal-mesh/internal/meshid"
	"github.com/vyomos/netrajaal-mesh/internal/radio"
	"github.com/vyomos/netrajaal-mesh/internal/txlock"
)

// ScanFastInterval is the broadcast period for the first ScanFastRounds
// beacons after start (spec.md §4.8: "every ~30s for the first several
// rounds").
var ScanFastInterval = 30 * time.Second

// ScanFastRounds is how many fast-interval beacons are sent before slowing.
var ScanFastRounds = 10

// ScanSlowInterval is the steady-state beacon period once ScanFastRounds
// have elapsed (spec.md §4.8: "then slow to ~20 min").
var ScanSlowInterval = 20 * time.Minute

// ScanJitterPct is the jitter applied to both scan intervals.
var ScanJitterPct = 0.1

// ScanTask broadcasts this node's neighbor beacon on a fast-then-slow
// schedule, skipping any round the transmit-mode lock is held.
type ScanTask struct {
	Self  byte
	Radio radio.Radio
	Lock  *txlock.Lock

	round int
}

// NewScanTask builds a ScanTask for self, broadcasting over r and deferring
// to lock.
func NewScanTask(self byte, r radio.Radio, lock *txlock.Lock) *ScanTask {
	return &ScanTask{Self: self, Radio: r, Lock: lock}
}

func (s *ScanTask) nextInterval() time.Duration {
	if s.round < ScanFastRounds {
		return jitter(ScanFastInterval, ScanJitterPct)
	}
	return jitter(ScanSlowInterval, ScanJitterPct)
}

// Once broadcasts one N beacon, or does nothing if the transmit-mode lock
// is held (spec.md §4.8: "skipped if the transmit-mode lock is held").
func (s *ScanTask) Once(ctx context.Context) error {
	s.round++
	if s.Lock.Held() {
		return nil
	}
	mid := meshid.NewMID(byte(frame.TypeNeighborBeacon), s.Self, s.Self, meshid.BroadcastAddr)
	wire, err := frame.EncodeMID(mid, []byte{s.Self})
	if err != nil {
		return err
	}
	return s.Radio.Send(ctx, meshid.BroadcastAddr, wire)
}

// Run drives Once on the fast-then-slow jittered schedule until stop is
// closed or ctx is done.
func (s *ScanTask) Run(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-time.After(s.nextInterval()):
			s.Once(ctx)
		}
	}
}
