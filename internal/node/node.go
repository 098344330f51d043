package node

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/vyomos/netrajaal-mesh/internal/adapters"
	"github.com/vyomos/netrajaal-mesh/internal/buffers"
	"github.com/vyomos/netrajaal-mesh/internal/chunk"
	"github.com/vyomos/netrajaal-mesh/internal/envelope"
	"github.com/vyomos/netrajaal-mesh/internal/events"
	"github.com/vyomos/netrajaal-mesh/internal/meshid"
	"github.com/vyomos/netrajaal-mesh/internal/metrics"
	"github.com/vyomos/netrajaal-mesh/internal/radio"
	"github.com/vyomos/netrajaal-mesh/internal/router"
	"github.com/vyomos/netrajaal-mesh/internal/tasks"
	"github.com/vyomos/netrajaal-mesh/internal/topology"
	"github.com/vyomos/netrajaal-mesh/internal/txlock"
	"github.com/vyomos/netrajaal-mesh/internal/unicast"
)

// Node is one mesh participant. It owns every buffer, table, and lock a
// frame or periodic task can touch (spec.md §9's "single owned Node
// record"); the radio read loop and every task goroutine reach shared
// state only through these fields' own mutex-guarded methods.
type Node struct {
	cfg Config

	RunID string

	Radio    radio.Radio
	Events   *events.Manager
	Topology *topology.Table
	Lock     *txlock.Lock
	Metrics  *metrics.Collector

	Sent    *buffers.Store
	Recd    *buffers.Store
	Unacked *buffers.Store

	Uni    *unicast.Sender
	Reasm  *chunk.Reassembler
	Chunk  *chunk.Sender
	Router *router.Router

	Uploader adapters.Uploader

	Scan      *tasks.ScanTask
	Heartbeat *tasks.HeartbeatTask
	Spath     *tasks.SpathTask
	Sweep     *tasks.SweepTask
	Validate  *tasks.ValidateTask

	Pump *adapters.Pump
}

// New assembles a Node from cfg over radio r. uploader is the
// command-center's delivery sink; non-CC nodes accept one too (they just
// never call it) so callers don't need role-conditional construction.
// status supplies the heartbeat payload; detector, if non-nil, wires an
// outbound image pump (camera nodes only).
func New(cfg Config, r radio.Radio, uploader adapters.Uploader, status tasks.StatusEncoder, detector adapters.Detector) *Node {
	n := &Node{cfg: cfg, Radio: r, RunID: xid.New().String(), Uploader: uploader}

	n.Events = events.NewManager()
	n.Topology = topology.New(cfg.MyAddr, cfg.IsCommandCenter, !cfg.DynamicPath, cfg.InitialPath)
	n.Lock = txlock.New(cfg.TxLockWatchdog)
	n.Lock.OnStaleRelease(func(h txlock.Holder) {
		n.Events.Trigger(events.Event{Type: events.LockReleased, Node: cfg.MyAddr, Data: h, EpochMS: meshid.EpochMS()})
	})

	n.Sent = buffers.NewStore(cfg.SentCap, cfg.BufferMaxAgeMS)
	n.Recd = buffers.NewStore(cfg.RecdCap, cfg.BufferMaxAgeMS)
	n.Unacked = buffers.NewStore(cfg.UnackedCap, cfg.BufferMaxAgeMS)

	n.Uni = unicast.NewSender(r, n.Unacked, n.Sent, n.Recd)
	n.Reasm = chunk.NewReassembler(cfg.ChunkContextCap, cfg.BufferMaxAgeMS, cfg.BufferMaxAgeMS)
	n.Chunk = chunk.NewSender(r, n.Uni, n.Lock, cfg.MyAddr, cfg.MyAddr)

	n.Metrics = metrics.NewCollector(fmt.Sprintf("%d", cfg.MyAddr), n.Sent, n.Recd, n.Unacked, n.Reasm, n.Lock)
	n.Uni.Metrics = n.Metrics
	n.Chunk.Metrics = n.Metrics

	n.Router = &router.Router{
		Self:              cfg.MyAddr,
		Radio:             r,
		Uni:               n.Uni,
		Topology:          n.Topology,
		Reasm:             n.Reasm,
		Chunk:             n.Chunk,
		Uploader:          uploader,
		Events:            n.Events,
		Recd:              n.Recd,
		Dedup:             buffers.NewChunkTable[struct{}](cfg.RecdCap, cfg.BufferMaxAgeMS, nil),
		DedupEnabled:      cfg.DedupEnabled,
		EncryptionEnabled: cfg.EncryptionEnabled,
		CCPrivateKey:      cfg.CCPrivateKey,
		Metrics:           n.Metrics,
	}

	n.Scan = tasks.NewScanTask(cfg.MyAddr, r, n.Lock)
	n.Heartbeat = tasks.NewHeartbeatTask(cfg.MyAddr, cfg.MyAddr, r, n.Uni, n.Topology, n.Lock, status, n.encryptControl)
	n.Spath = tasks.NewSpathTask(cfg.MyAddr, r, n.Topology)
	n.Sweep = tasks.NewSweepTask(meshid.EpochMS, n.Sent, n.Recd, n.Unacked, n.Reasm, n.Router.Dedup)
	n.Validate = tasks.NewValidateTask(cfg.MyAddr, n.Uni, n.Topology, n.Lock)

	if detector != nil {
		n.Pump = adapters.NewPump(detector, n.Chunk, n.Topology)
		n.Pump.Encrypt = n.encryptImage
	}

	return n
}

// encryptControl wraps a heartbeat/event-text payload with the RSA
// envelope when encryption is configured, passing it through otherwise.
func (n *Node) encryptControl(payload []byte) ([]byte, error) {
	if !n.cfg.EncryptionEnabled || n.cfg.CCPublicKey == nil {
		return payload, nil
	}
	return envelope.WrapRSA(n.cfg.CCPublicKey, payload)
}

// encryptImage wraps an outbound image blob with the hybrid envelope when
// encryption is configured, passing it through otherwise.
func (n *Node) encryptImage(blob []byte) ([]byte, error) {
	if !n.cfg.EncryptionEnabled || n.cfg.CCPublicKey == nil {
		return blob, nil
	}
	return envelope.WrapHybrid(n.cfg.CCPublicKey, blob)
}

// Run starts every periodic task and the radio read loop in their own
// goroutines, and blocks until ctx is canceled (teacher's
// Server.Start launching updateLoop/sessionCleanupLoop before blocking
// on its own accept loop, adapted to a context-driven stop signal rather
// than a running bool).
func (n *Node) Run(ctx context.Context) {
	stop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()

	go n.Lock.RunWatchdog(n.cfg.WatchdogPoll, stop)
	go n.Scan.Run(ctx, stop)
	go n.Sweep.Run(ctx, stop)
	go n.Validate.Run(ctx, stop)
	if n.cfg.IsCommandCenter {
		go n.Spath.Run(ctx, stop)
	} else {
		go n.Heartbeat.Run(ctx, stop)
	}
	if n.Pump != nil {
		go n.Pump.Run(ctx)
	}

	n.readLoop(ctx)
}

// readLoop polls the radio for inbound frames and dispatches each through
// the router, on the single goroutine spec.md §5 designates as the
// buffers'/topology's/lock's sole mutator alongside the periodic tasks.
func (n *Node) readLoop(ctx context.Context) {
	ticker := time.NewTicker(n.cfg.RadioPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				wire, ok := n.Radio.Recv()
				if !ok {
					break
				}
				n.Router.Handle(ctx, wire)
			}
		}
	}
}
