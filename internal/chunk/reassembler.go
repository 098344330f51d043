package chunk

import (
	"errors"
	"sort"

	"github.com/vyomos/netrajaal-mesh/internal/buffers"
)

// ErrChunkIDInUse is returned by Begin when a second Begin names an id
// whose context is still live. spec.md §9 leaves the collision policy as
// an open question; this implementation rejects rather than silently
// overwriting or resetting (decision recorded alongside the spec).
var ErrChunkIDInUse = errors.New("chunk: img_id already has a live context")

// chunkContext is the receiver-side reassembly state for one img_id.
type chunkContext struct {
	expectedCount int
	received      map[int][]byte
	createdMS     uint64
}

// Reassembler holds the receiver-side state for all concurrently active
// chunked transfers on a node (spec.md §3 "chunk context", cap 50).
type Reassembler struct {
	contexts  *buffers.ChunkTable[*chunkContext]
	completed *buffers.ChunkTable[struct{}]
}

// NewReassembler returns an empty Reassembler. maxContexts/maxAgeMS size
// and age-bound the live-context table (spec.md §3: cap 50, §4.10's
// watchdog eviction); completedAgeMS bounds how long a completed id is
// remembered so a retransmitted End can be acked with ":-1" without
// re-delivery (spec.md §4.4).
func NewReassembler(maxContexts int, maxAgeMS uint64, completedAgeMS uint64) *Reassembler {
	return &Reassembler{
		contexts:  buffers.NewChunkTable[*chunkContext](maxContexts, maxAgeMS, nil),
		completed: buffers.NewChunkTable[struct{}](maxContexts, completedAgeMS, nil),
	}
}

// Begin opens a fresh context for id, or returns ErrChunkIDInUse if one is
// still live (spec.md §4.4 "duplicate Begin is idempotent" is honored only
// when the *same* Begin is retransmitted while no Item has yet been
// recorded; once reassembly has started, a second concurrent transfer
// under the same id is refused).
func (r *Reassembler) Begin(id ImgID, expectedCount int, nowMS uint64) error {
	key := id.String()
	if existing, ok := r.contexts.Get(key); ok && existing != nil {
		if existing.expectedCount == expectedCount && len(existing.received) == 0 {
			return nil // idempotent retransmit of the same empty Begin
		}
		return ErrChunkIDInUse
	}
	r.contexts.Put(key, &chunkContext{expectedCount: expectedCount, received: make(map[int][]byte), createdMS: nowMS}, nowMS)
	return nil
}

// Item appends one chunk to id's context. A chunk for an unknown id is
// dropped, not buffered against a future Begin (spec.md §4.4 edge case).
func (r *Reassembler) Item(id ImgID, index int, data []byte) {
	ctx, ok := r.contexts.Get(id.String())
	if !ok || ctx == nil {
		return
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	ctx.received[index] = buf
}

// EndResult is the outcome of processing an End frame.
type EndResult struct {
	// Complete is true when every expected index has been received.
	Complete bool
	// Missing holds the sorted list of indices still needed, when !Complete.
	// Not truncated to wire size here — the caller encoding this into an
	// ack frame is responsible for that (spec.md §4.4).
	Missing []int
	// Reassembled holds the concatenated blob, only set when Complete is
	// true and this is the first End that observed completion.
	Reassembled []byte
	// AlreadyDelivered is true when the context had already been
	// completed and cleared by an earlier End (a retransmit) — the
	// caller should ack ":-1" without redelivering.
	AlreadyDelivered bool
}

// End computes the missing-indices list or, if none are missing,
// reassembles and clears the context (spec.md §4.4).
func (r *Reassembler) End(id ImgID) EndResult {
	key := id.String()
	ctx, ok := r.contexts.Get(key)
	if !ok || ctx == nil {
		if _, done := r.completed.Get(key); done {
			return EndResult{Complete: true, AlreadyDelivered: true}
		}
		// Unknown id with no completion record: nothing to ack meaningfully.
		return EndResult{Complete: true, AlreadyDelivered: true}
	}

	var missing []int
	for i := 0; i < ctx.expectedCount; i++ {
		if _, got := ctx.received[i]; !got {
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		sort.Ints(missing)
		return EndResult{Complete: false, Missing: missing}
	}

	out := make([]byte, 0, ctx.expectedCount*ChunkSize)
	for i := 0; i < ctx.expectedCount; i++ {
		out = append(out, ctx.received[i]...)
	}
	r.contexts.Delete(key)
	r.completed.Put(key, struct{}{}, ctx.createdMS)
	return EndResult{Complete: true, Reassembled: out}
}

// Sweep ages out stale live and completed contexts, returning the total
// number evicted (spec.md §4.10 memory sweep).
func (r *Reassembler) Sweep(nowMS uint64) int {
	return r.contexts.Sweep(nowMS) + r.completed.Sweep(nowMS)
}

// Len reports the number of currently live (incomplete) contexts.
func (r *Reassembler) Len() int { return r.contexts.Len() }
