package chunk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vyomos/netrajaal-mesh/internal/ackindex"
	"github.com/vyomos/netrajaal-mesh/internal/frame"
	"github.com/vyomos/netrajaal-mesh/internal/meshid"
	"github.com/vyomos/netrajaal-mesh/internal/radio"
	"github.com/vyomos/netrajaal-mesh/internal/txlock"
	"github.com/vyomos/netrajaal-mesh/internal/unicast"
)

// MaxAttempts bounds the selective-repeat retry budget for one chunked
// transfer (spec.md §4.4: "20 retry attempts").
var MaxAttempts = 20

// InterChunkDelay is inserted between consecutive Item sends to keep the
// radio duty cycle reasonable (spec.md §4.4: "~50 ms").
var InterChunkDelay = 50 * time.Millisecond

// ErrLockBusy is returned when the transmit-mode lock is already held by
// another conversation (spec.md §4.5).
var ErrLockBusy = errors.New("chunk: transmit-mode lock busy")

// ErrIncomplete is returned when MaxAttempts is exhausted and the receiver
// still reports missing chunks.
var ErrIncomplete = errors.New("chunk: transfer incomplete after max attempts")

// MetricsSink receives a count each time a transfer needs a selective-repeat
// retransmit round. Defined locally so this package never depends on
// internal/metrics; Collector satisfies it structurally.
type MetricsSink interface {
	IncChunkRetransmit()
}

// Sender drives the sender side of one node's chunked transfers.
type Sender struct {
	Radio   radio.Radio
	Uni     *unicast.Sender
	Lock    *txlock.Lock
	Creator byte
	Self    byte

	// Metrics, if set, is notified of each retransmit round.
	Metrics MetricsSink
}

// NewSender builds a chunk Sender.
func NewSender(r radio.Radio, uni *unicast.Sender, lock *txlock.Lock, creator, self byte) *Sender {
	return &Sender{Radio: r, Uni: uni, Lock: lock, Creator: creator, Self: self}
}

// Send splits blob into chunks, transfers it reliably to dest, and blocks
// until the receiver acks completion or the retry budget is exhausted.
func (s *Sender) Send(ctx context.Context, dest byte, blob []byte) error {
	id := NewImgID()
	if !s.Lock.Acquire(dest, id.String()) {
		return ErrLockBusy
	}
	defer s.Lock.Release(dest, id.String())

	chunks := Split(blob)
	count := len(chunks)

	beginPayload := EncodeBeginPayload(id, meshid.EpochMS(), count)
	if _, _, err := s.Uni.SendSingle(ctx, frame.TypeBegin, s.Creator, s.Self, dest, beginPayload); err != nil {
		return fmt.Errorf("chunk: begin failed: %w", err)
	}

	pending := make([]int, count)
	for i := range pending {
		pending[i] = i
	}

	for attempt := 0; attempt < MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 0 && s.Metrics != nil {
			s.Metrics.IncChunkRetransmit()
		}
		for _, idx := range pending {
			mid := meshid.NewMID(byte(frame.TypeChunkItem), s.Creator, s.Self, dest)
			wire, err := frame.EncodeMID(mid, EncodeItemPayload(id, uint16(idx), chunks[idx]))
			if err != nil {
				return fmt.Errorf("chunk: encode item %d: %w", idx, err)
			}
			if err := s.Radio.Send(ctx, dest, wire); err != nil {
				continue // unreliable by design; the End round-trip will surface the gap
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(InterChunkDelay):
			}
		}

		endPayload := EncodeEndPayload(id, meshid.EpochMS())
		state, missing, err := s.Uni.SendSingle(ctx, frame.TypeEnd, s.Creator, s.Self, dest, endPayload)
		if err != nil {
			continue // End itself went unacked; retry the whole round
		}
		if state == ackindex.AckedComplete || len(missing) == 0 {
			return nil
		}
		pending = missing
	}
	return ErrIncomplete
}
