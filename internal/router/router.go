// Package router implements the message dispatch table (spec.md §4.7,
// C10): acking, neighbor/path bookkeeping, chunk reassembly feed, and
// next-hop forwarding for every inbound frame addressed to this node.
package router

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"errors"

	"github.com/vyomos/netrajaal-mesh/internal/ackindex"
	"github.com/vyomos/netrajaal-mesh/internal/adapters"
	"github.com/vyomos/netrajaal-mesh/internal/buffers"
	"github.com/vyomos/netrajaal-mesh/internal/chunk"
	"github.com/vyomos/netrajaal-mesh/internal/envelope"
	"github.com/vyomos/netrajaal-mesh/internal/events"
	"github.com/vyomos/netrajaal-mesh/internal/frame"
	"github.com/vyomos/netrajaal-mesh/internal/meshid"
	"github.com/vyomos/netrajaal-mesh/internal/radio"
	"github.com/vyomos/netrajaal-mesh/internal/topology"
	"github.com/vyomos/netrajaal-mesh/internal/unicast"
)

var errBadPath = errors.New("router: malformed path payload")

// ErrNoRoute names the "no route to command center" condition (spec.md §7
// "NoRoute"). The router does not return it: a forward attempted with an
// empty path_to_cc is recorded as a DroppedNoRoute drop instead.
var ErrNoRoute = errors.New("router: no route to command center")

// DroppedReason is published with a FrameDropped event.
type DroppedReason string

const (
	DroppedUnrecognizedType DroppedReason = "unrecognized_type"
	DroppedNoRoute          DroppedReason = "no_route"
	DroppedChunkIDInUse     DroppedReason = "chunk_id_in_use"
	DroppedMalformed        DroppedReason = "malformed_payload"
)

// MetricsSink receives per-frame counts for observability. Defined locally
// (rather than imported from internal/metrics) so this package never
// depends on the metrics package; internal/metrics.Collector satisfies
// this structurally.
type MetricsSink interface {
	IncDropped(reason DroppedReason)
	IncForwarded(msgType frame.Type)
}

// Router owns every piece of per-node state an inbound frame can touch.
type Router struct {
	Self byte

	Radio    radio.Radio
	Uni      *unicast.Sender
	Topology *topology.Table
	Reasm    *chunk.Reassembler
	Chunk    *chunk.Sender
	Uploader adapters.Uploader
	Events   *events.Manager

	Recd *buffers.Store

	// Dedup gates re-delivery of H/T to the uploader when the same
	// (creator, tag) arrives twice after a lost ack (spec.md §9 open
	// question, default on).
	Dedup        *buffers.ChunkTable[struct{}]
	DedupEnabled bool

	// EncryptionEnabled and CCPrivateKey, when both set and this node is
	// the command center, cause H/T payloads to be RSA-unwrapped and
	// reassembled E payloads to be hybrid-unwrapped before delivery
	// (spec.md §4.12: "command-center only decrypt").
	EncryptionEnabled bool
	CCPrivateKey      *rsa.PrivateKey

	NowMS func() uint64

	// Metrics, if set, is notified of drops and forwards for export.
	Metrics MetricsSink
}

type handlerFunc func(r *Router, ctx context.Context, mid meshid.MID, payload []byte)

var dispatch = map[frame.Type]handlerFunc{
	frame.TypeNeighborBeacon: (*Router).handleN,
	frame.TypeValidate:       (*Router).handleV,
	frame.TypeShortestPath:   (*Router).handleS,
	frame.TypeHeartbeat:      (*Router).handleH,
	frame.TypeBegin:          (*Router).handleB,
	frame.TypeChunkItem:      (*Router).handleI,
	frame.TypeEnd:            (*Router).handleE,
	frame.TypeEventText:      (*Router).handleT,
}

// Handle decodes and dispatches one inbound wire frame. Frames not
// addressed to this node (and not broadcast) are ignored; unrecognized
// types are dropped and logged via the event bus (spec.md §4.7 "anything
// else | drop").
func (r *Router) Handle(ctx context.Context, wire []byte) error {
	mid, payload, err := frame.Decode(wire)
	if err != nil {
		return err
	}
	if mid.Receiver() != r.Self && mid.Receiver() != meshid.BroadcastAddr {
		return nil
	}

	r.Recd.Append(buffers.Entry{MID: mid, Payload: payload, TimeMS: r.now()})

	h, ok := dispatch[frame.Type(mid.Type())]
	if !ok {
		r.drop(mid, DroppedUnrecognizedType)
		return nil
	}
	h(r, ctx, mid, payload)
	return nil
}

func (r *Router) now() uint64 {
	if r.NowMS != nil {
		return r.NowMS()
	}
	return meshid.EpochMS()
}

func (r *Router) drop(mid meshid.MID, reason DroppedReason) {
	if r.Events != nil {
		r.Events.Trigger(events.Event{Type: events.FrameDropped, Node: r.Self, Data: reason, EpochMS: r.now()})
	}
	if r.Metrics != nil {
		r.Metrics.IncDropped(reason)
	}
}

// sendAck replies to originalMid's sender with an 'A' frame carrying
// ackPayload (spec.md §4.2/§4.7 — every reliable type is acked per hop).
func (r *Router) sendAck(ctx context.Context, originalMid meshid.MID, ackPayload []byte) {
	ackMID := meshid.NewMID(byte(frame.TypeAck), r.Self, r.Self, originalMid.Sender())
	wire, err := frame.EncodeMID(ackMID, ackPayload)
	if err != nil {
		return
	}
	r.Radio.Send(ctx, originalMid.Sender(), wire)
}

func (r *Router) bareAck(ctx context.Context, mid meshid.MID) {
	r.sendAck(ctx, mid, ackindex.EncodeAckPayload(mid, nil, true))
}

// truncateMissingForAck trims missing to the longest prefix whose encoded
// ack payload still fits in one frame, per spec.md §4.4: a missing list too
// long for one frame is truncated to what fits, and the next End round
// covers the rest. Without this, a transfer missing enough chunks would
// make EncodeMID fail and sendAck would silently drop the ack entirely.
func (r *Router) truncateMissingForAck(originalMid meshid.MID, missing []int) []int {
	ackMID := meshid.NewMID(byte(frame.TypeAck), r.Self, r.Self, originalMid.Sender())
	for n := len(missing); n > 0; n-- {
		payload := ackindex.EncodeAckPayload(originalMid, missing[:n], false)
		if _, err := frame.EncodeMID(ackMID, payload); err == nil {
			return missing[:n]
		}
	}
	return missing[:0]
}

// dedupKey identifies a message across retransmits by (creator, tag) only,
// so the same frame forwarded through different hops still dedups.
func dedupKey(mid meshid.MID) string {
	tag := mid.Tag()
	return string([]byte{mid.Creator(), tag[0], tag[1], tag[2]})
}

func (r *Router) alreadyDelivered(mid meshid.MID) bool {
	if !r.DedupEnabled || r.Dedup == nil {
		return false
	}
	key := dedupKey(mid)
	if _, ok := r.Dedup.Get(key); ok {
		return true
	}
	r.Dedup.Put(key, struct{}{}, r.now())
	return false
}

// forward reliable-sends payload of msgType to the next hop toward the
// command center, preserving the original creator. Absence of a route is
// dropped and logged, never retried at this layer (spec.md §4.7).
func (r *Router) forward(ctx context.Context, msgType frame.Type, creator byte, payload []byte) {
	dest, ok := r.Topology.NextHop()
	if !ok {
		r.drop(meshid.MID{}, DroppedNoRoute)
		return
	}
	r.Uni.SendSingle(ctx, msgType, creator, r.Self, dest, payload)
	if r.Metrics != nil {
		r.Metrics.IncForwarded(msgType)
	}
}

func (r *Router) handleN(ctx context.Context, mid meshid.MID, payload []byte) {
	if r.Topology.LearnNeighbor(mid.Sender()) && r.Events != nil {
		r.Events.Trigger(events.Event{Type: events.NeighborDiscovered, Node: r.Self, Data: mid.Sender(), EpochMS: r.now()})
	}
}

func (r *Router) handleV(ctx context.Context, mid meshid.MID, payload []byte) {
	r.bareAck(ctx, mid)
}

func (r *Router) handleS(ctx context.Context, mid meshid.MID, payload []byte) {
	candidate, err := DecodePathCSV(payload)
	if err != nil {
		r.drop(mid, DroppedMalformed)
		return
	}
	adopted, announce, targets := r.Topology.AdoptPath(candidate)
	if !adopted {
		return
	}
	if r.Events != nil {
		r.Events.Trigger(events.Event{Type: events.PathAdopted, Node: r.Self, Data: announce, EpochMS: r.now()})
	}
	announcePayload := EncodePathCSV(announce)
	for _, n := range targets {
		sMID := meshid.NewMID(byte(frame.TypeShortestPath), r.Self, r.Self, n)
		wire, err := frame.EncodeMID(sMID, announcePayload)
		if err != nil {
			continue
		}
		r.Radio.Send(ctx, n, wire)
	}
}

func (r *Router) handleH(ctx context.Context, mid meshid.MID, payload []byte) {
	r.bareAck(ctx, mid)
	if r.Topology.IsCommandCenter() {
		if r.alreadyDelivered(mid) {
			return
		}
		payload = r.maybeUnwrapRSA(payload)
		r.Uploader.Upload(ctx, adapters.UploadRecord{
			UploadID:    adapters.NewUploadID(),
			MachineID:   mid.Creator(),
			MessageType: adapters.MessageTypeHeartbeat,
			Payload:     payload,
			EpochMS:     r.now(),
		})
		return
	}
	r.forward(ctx, frame.TypeHeartbeat, mid.Creator(), payload)
}

func (r *Router) handleT(ctx context.Context, mid meshid.MID, payload []byte) {
	r.bareAck(ctx, mid)
	if r.Topology.IsCommandCenter() {
		if r.alreadyDelivered(mid) {
			return
		}
		payload = r.maybeUnwrapRSA(payload)
		r.Uploader.Upload(ctx, adapters.UploadRecord{
			UploadID:    adapters.NewUploadID(),
			MachineID:   mid.Creator(),
			MessageType: adapters.MessageTypeEventText,
			Payload:     payload,
			EpochMS:     r.now(),
		})
		return
	}
	r.forward(ctx, frame.TypeEventText, mid.Creator(), payload)
}

func (r *Router) handleB(ctx context.Context, mid meshid.MID, payload []byte) {
	r.bareAck(ctx, mid)
	id, _, count, err := chunk.ParseBeginPayload(payload)
	if err != nil {
		r.drop(mid, DroppedMalformed)
		return
	}
	if err := r.Reasm.Begin(id, count, r.now()); err != nil {
		r.drop(mid, DroppedChunkIDInUse)
	}
}

func (r *Router) handleI(ctx context.Context, mid meshid.MID, payload []byte) {
	id, index, data, err := chunk.ParseItemPayload(payload)
	if err != nil {
		return
	}
	r.Reasm.Item(id, int(index), data)
}

func (r *Router) handleE(ctx context.Context, mid meshid.MID, payload []byte) {
	id, _, err := chunk.ParseEndPayload(payload)
	if err != nil {
		r.drop(mid, DroppedMalformed)
		return
	}
	res := r.Reasm.End(id)

	var ackPayload []byte
	if res.Complete {
		ackPayload = ackindex.EncodeAckPayload(mid, nil, false)
	} else {
		ackPayload = ackindex.EncodeAckPayload(mid, r.truncateMissingForAck(mid, res.Missing), false)
	}
	r.sendAck(ctx, mid, ackPayload)

	if !res.Complete || res.AlreadyDelivered {
		return
	}
	if r.Events != nil {
		r.Events.Trigger(events.Event{Type: events.ChunkDelivered, Node: r.Self, Data: id, EpochMS: r.now()})
	}

	if r.Topology.IsCommandCenter() {
		blob := r.maybeUnwrapHybrid(res.Reassembled)
		encoded := make([]byte, base64.StdEncoding.EncodedLen(len(blob)))
		base64.StdEncoding.Encode(encoded, blob)
		r.Uploader.Upload(ctx, adapters.UploadRecord{
			UploadID:    adapters.NewUploadID(),
			MachineID:   mid.Creator(),
			MessageType: adapters.MessageTypeEvent,
			Payload:     encoded,
			EpochMS:     r.now(),
		})
		return
	}

	dest, ok := r.Topology.NextHop()
	if !ok {
		r.drop(mid, DroppedNoRoute)
		return
	}
	r.Chunk.Send(ctx, dest, res.Reassembled)
}

func (r *Router) maybeUnwrapRSA(payload []byte) []byte {
	if !r.EncryptionEnabled || r.CCPrivateKey == nil {
		return payload
	}
	plain, err := envelope.UnwrapRSA(r.CCPrivateKey, payload)
	if err != nil {
		return payload
	}
	return plain
}

func (r *Router) maybeUnwrapHybrid(payload []byte) []byte {
	if !r.EncryptionEnabled || r.CCPrivateKey == nil {
		return payload
	}
	plain, err := envelope.UnwrapHybrid(r.CCPrivateKey, payload)
	if err != nil {
		return payload
	}
	return plain
}
