// Package unicast implements reliable single-hop delivery (spec.md §4.3,
// C6): send, then poll the received-frame log for a matching ack across a
// bounded number of attempts before giving up.
package unicast

import (
	"context"
	"errors"
	"time"

	"github.com/vyomos/netrajaal-mesh/internal/ackindex"
	"github.com/vyomos/netrajaal-mesh/internal/buffers"
	"github.com/vyomos/netrajaal-mesh/internal/frame"
	"github.com/vyomos/netrajaal-mesh/internal/meshid"
	"github.com/vyomos/netrajaal-mesh/internal/radio"
)

// Attempts is the total number of transmissions a reliable send makes
// before giving up (spec.md §4.3). Variable rather than const so tests can shrink the
// retry budget without waiting out the production schedule.
var Attempts = 3

// AckSleep is the base poll interval between ack checks within one attempt.
var AckSleep = 150 * time.Millisecond

// PollSteps is the number of times each attempt polls for an ack before
// resending, with linearly increasing backoff up to 2x AckSleep.
var PollSteps = 8

// ErrAckTimeout is returned when all attempts are exhausted without a
// matching ack (spec.md §7 "AckTimeout").
var ErrAckTimeout = errors.New("unicast: ack timeout, all attempts exhausted")

// MetricsSink receives the round-trip time of each successfully acked
// send. Defined locally so this package never depends on internal/metrics;
// Collector satisfies it structurally.
type MetricsSink interface {
	ObserveAckLatency(d time.Duration)
}

// Sender sends one reliable unicast message at a time for a node. It owns
// no state of its own beyond the stores handed to it; safe for concurrent
// use only insofar as the underlying stores are.
type Sender struct {
	Radio   radio.Radio
	Unacked *buffers.Store
	Sent    *buffers.Store
	Recd    *buffers.Store
	Clock   *meshid.Clock

	// Metrics, if set, is notified of each ack's round-trip latency.
	Metrics MetricsSink
}

// NewSender builds a Sender over the given radio and logs.
func NewSender(r radio.Radio, unacked, sent, recd *buffers.Store) *Sender {
	return &Sender{Radio: r, Unacked: unacked, Sent: sent, Recd: recd, Clock: meshid.NewClock()}
}

// pollBackoff returns the sleep duration before poll step i (0-indexed),
// increasing linearly from AckSleep to 2*AckSleep across PollSteps.
func pollBackoff(i int) time.Duration {
	if PollSteps <= 1 {
		return AckSleep
	}
	extra := AckSleep * time.Duration(i) / time.Duration(PollSteps-1)
	return AckSleep + extra
}

// SendSingle encodes and sends one reliable frame to dest, retrying up to
// Attempts times and polling the recd log for a matching ack between
// sends. On success it moves the outbound entry from Unacked to Sent and
// returns the ack's state and any missing chunk indices it carried.
func (s *Sender) SendSingle(ctx context.Context, msgType frame.Type, creator, sender, dest byte, payload []byte) (ackindex.State, []int, error) {
	mid := meshid.NewMID(byte(msgType), creator, sender, dest)
	wire, err := frame.EncodeMID(mid, payload)
	if err != nil {
		return ackindex.NotAcked, nil, err
	}

	start := time.Now()
	s.Unacked.Append(buffers.Entry{MID: mid, Payload: payload, TimeMS: meshid.EpochMS()})

	for attempt := 0; attempt < Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return ackindex.NotAcked, nil, err
		}
		if err := s.Radio.Send(ctx, dest, wire); err != nil {
			continue
		}

		for step := 0; step < PollSteps; step++ {
			if state, missing := ackindex.Lookup(s.Recd.Snapshot(), mid); state != ackindex.NotAcked {
				s.finish(mid, payload, start)
				return state, missing, nil
			}
			select {
			case <-ctx.Done():
				return ackindex.NotAcked, nil, ctx.Err()
			case <-time.After(pollBackoff(step)):
			}
		}
	}

	if state, missing := ackindex.Lookup(s.Recd.Snapshot(), mid); state != ackindex.NotAcked {
		s.finish(mid, payload, start)
		return state, missing, nil
	}
	return ackindex.NotAcked, nil, ErrAckTimeout
}

func (s *Sender) finish(mid meshid.MID, payload []byte, start time.Time) {
	s.Unacked.Remove(mid)
	s.Sent.Append(buffers.Entry{MID: mid, Payload: payload, TimeMS: meshid.EpochMS()})
	if s.Metrics != nil {
		s.Metrics.ObserveAckLatency(time.Since(start))
	}
}
