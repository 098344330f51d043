package unicast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vyomos/netrajaal-mesh/internal/ackindex"
	"github.com/vyomos/netrajaal-mesh/internal/buffers"
	"github.com/vyomos/netrajaal-mesh/internal/frame"
	"github.com/vyomos/netrajaal-mesh/internal/meshid"
)

// countingRadio records how many times Send was called and optionally
// invokes a callback with each sent frame's wire bytes.
type countingRadio struct {
	mu    sync.Mutex
	sends int
	onSend func(wire []byte)
}

func (r *countingRadio) Send(ctx context.Context, dest byte, wire []byte) error {
	r.mu.Lock()
	r.sends++
	cb := r.onSend
	r.mu.Unlock()
	if cb != nil {
		cb(wire)
	}
	return nil
}
func (r *countingRadio) Recv() ([]byte, bool) { return nil, false }
func (r *countingRadio) Reset() error         { return nil }
func (r *countingRadio) sendCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sends
}

func withShortSchedule(t *testing.T) {
	t.Helper()
	origAttempts, origSleep, origSteps := Attempts, AckSleep, PollSteps
	Attempts, AckSleep, PollSteps = 3, 5*time.Millisecond, 3
	t.Cleanup(func() { Attempts, AckSleep, PollSteps = origAttempts, origSleep, origSteps })
}

func TestSendSingleAckedOnFirstPoll(t *testing.T) {
	withShortSchedule(t)
	r := &countingRadio{}
	recd := buffers.NewStore(100, 1_000_000)
	sent := buffers.NewStore(100, 1_000_000)
	unacked := buffers.NewStore(100, 1_000_000)
	s := NewSender(r, unacked, sent, recd)

	r.onSend = func(wire []byte) {
		mid, _, err := frame.Decode(wire)
		if err != nil {
			t.Errorf("decode sent wire: %v", err)
			return
		}
		ackPayload := ackindex.EncodeAckPayload(mid, nil, false)
		ackMID := meshid.NewMID(byte(frame.TypeAck), 2, 2, 1)
		recd.Append(buffers.Entry{MID: ackMID, Payload: ackPayload, TimeMS: meshid.EpochMS()})
	}

	state, missing, err := s.SendSingle(context.Background(), frame.TypeHeartbeat, 1, 1, 2, []byte("status"))
	if err != nil {
		t.Fatalf("SendSingle: %v", err)
	}
	if state != ackindex.AckedComplete {
		t.Errorf("state = %v, want AckedComplete", state)
	}
	if len(missing) != 0 {
		t.Errorf("missing = %v, want empty", missing)
	}
	if r.sendCount() != 1 {
		t.Errorf("sendCount = %d, want 1", r.sendCount())
	}
	if unacked.Len() != 0 {
		t.Errorf("unacked.Len() = %d, want 0", unacked.Len())
	}
	if sent.Len() != 1 {
		t.Errorf("sent.Len() = %d, want 1", sent.Len())
	}
}

func TestSendSingleRetriesThenSucceeds(t *testing.T) {
	withShortSchedule(t)
	r := &countingRadio{}
	recd := buffers.NewStore(100, 1_000_000)
	sent := buffers.NewStore(100, 1_000_000)
	unacked := buffers.NewStore(100, 1_000_000)
	s := NewSender(r, unacked, sent, recd)

	r.onSend = func(wire []byte) {
		if r.sendCount() < 2 {
			return // swallow the first attempt, simulating a lost frame
		}
		mid, _, _ := frame.Decode(wire)
		ackPayload := ackindex.EncodeAckPayload(mid, nil, false)
		ackMID := meshid.NewMID(byte(frame.TypeAck), 2, 2, 1)
		recd.Append(buffers.Entry{MID: ackMID, Payload: ackPayload, TimeMS: meshid.EpochMS()})
	}

	state, _, err := s.SendSingle(context.Background(), frame.TypeHeartbeat, 1, 1, 2, []byte("status"))
	if err != nil {
		t.Fatalf("SendSingle: %v", err)
	}
	if state != ackindex.AckedComplete {
		t.Errorf("state = %v, want AckedComplete", state)
	}
	if r.sendCount() < 2 {
		t.Errorf("sendCount = %d, want >= 2 (at least one retry)", r.sendCount())
	}
}

func TestSendSingleTimeoutExhaustsAttempts(t *testing.T) {
	withShortSchedule(t)
	r := &countingRadio{}
	recd := buffers.NewStore(100, 1_000_000)
	sent := buffers.NewStore(100, 1_000_000)
	unacked := buffers.NewStore(100, 1_000_000)
	s := NewSender(r, unacked, sent, recd)

	_, _, err := s.SendSingle(context.Background(), frame.TypeHeartbeat, 1, 1, 2, []byte("status"))
	if !errors.Is(err, ErrAckTimeout) {
		t.Errorf("err = %v, want ErrAckTimeout", err)
	}
	if r.sendCount() != Attempts {
		t.Errorf("sendCount = %d, want %d", r.sendCount(), Attempts)
	}
	if unacked.Len() != 1 {
		t.Errorf("unacked.Len() = %d, want 1 (entry stays for later retry/eviction)", unacked.Len())
	}
}

func TestSendSingleRespectsContextCancellation(t *testing.T) {
	withShortSchedule(t)
	AckSleep = 50 * time.Millisecond
	r := &countingRadio{}
	recd := buffers.NewStore(100, 1_000_000)
	sent := buffers.NewStore(100, 1_000_000)
	unacked := buffers.NewStore(100, 1_000_000)
	s := NewSender(r, unacked, sent, recd)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, _, err := s.SendSingle(ctx, frame.TypeHeartbeat, 1, 1, 2, []byte("status"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestSendSinglePartialAckReturnsMissing(t *testing.T) {
	withShortSchedule(t)
	r := &countingRadio{}
	recd := buffers.NewStore(100, 1_000_000)
	sent := buffers.NewStore(100, 1_000_000)
	unacked := buffers.NewStore(100, 1_000_000)
	s := NewSender(r, unacked, sent, recd)

	r.onSend = func(wire []byte) {
		mid, _, _ := frame.Decode(wire)
		ackPayload := ackindex.EncodeAckPayload(mid, []int{2, 5}, false)
		ackMID := meshid.NewMID(byte(frame.TypeAck), 2, 2, 1)
		recd.Append(buffers.Entry{MID: ackMID, Payload: ackPayload, TimeMS: meshid.EpochMS()})
	}

	state, missing, err := s.SendSingle(context.Background(), frame.TypeEnd, 1, 1, 2, []byte("end"))
	if err != nil {
		t.Fatalf("SendSingle: %v", err)
	}
	if state != ackindex.AckedPartial {
		t.Errorf("state = %v, want AckedPartial", state)
	}
	if len(missing) != 2 || missing[0] != 2 || missing[1] != 5 {
		t.Errorf("missing = %v, want [2 5]", missing)
	}
}
