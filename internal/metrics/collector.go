// Package metrics implements the node's Prometheus export surface
// (spec.md §4.8/§4.10/§4.7 observability, C14): buffer occupancy, ack
// latency, chunk retransmits, transmit-lock hold time, and forwarded/
// dropped frame counts.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyomos/netrajaal-mesh/internal/frame"
	"github.com/vyomos/netrajaal-mesh/internal/router"
	"github.com/vyomos/netrajaal-mesh/internal/txlock"
)

// Sized is satisfied by buffers.Store and buffers.ChunkTable[V]; kept as a
// local interface so this package carries no generic instantiation of its
// own.
type Sized interface {
	Len() int
}

var (
	bufferOccupancyDesc = prometheus.NewDesc(
		"netrajaal_buffer_occupancy",
		"Current entry count of a bounded mesh buffer.",
		[]string{"node", "buffer"}, nil,
	)
	lockHeldDesc = prometheus.NewDesc(
		"netrajaal_txlock_held",
		"1 if the transmit-mode lock is currently held, else 0.",
		[]string{"node"}, nil,
	)
	lockHoldSecondsDesc = prometheus.NewDesc(
		"netrajaal_txlock_hold_seconds",
		"Seconds the transmit-mode lock has been held by its current holder, 0 if idle.",
		[]string{"node"}, nil,
	)
)

// Collector is a custom prometheus.Collector combining live-polled gauges
// (buffer occupancy, lock state) with accumulated counters and a latency
// histogram (forwarded/dropped frames, chunk retransmits, ack latency).
// internal/router.Router, internal/chunk.Sender, and internal/unicast.Sender
// each accept it through a narrow locally-defined interface, so none of
// them import this package.
type Collector struct {
	node string

	mu            sync.Mutex
	sent          Sized
	recd          Sized
	unacked       Sized
	chunkContexts Sized
	lock          *txlock.Lock

	forwarded   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	retransmits prometheus.Counter
	ackLatency  prometheus.Histogram
}

// NewCollector builds a Collector for one node, identified by node (its
// mesh address, rendered as a label value) in exported metrics. sent,
// recd, unacked, and chunkContexts are polled live on every Collect; lock
// may be nil if the node has none (never expected in practice, but kept
// defensive since Collector is constructed before the rest of the node).
func NewCollector(node string, sent, recd, unacked, chunkContexts Sized, lock *txlock.Lock) *Collector {
	return &Collector{
		node:          node,
		sent:          sent,
		recd:          recd,
		unacked:       unacked,
		chunkContexts: chunkContexts,
		lock:          lock,
		forwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netrajaal_frames_forwarded_total",
			Help: "Frames forwarded toward the command center, by message type.",
			ConstLabels: prometheus.Labels{"node": node},
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netrajaal_frames_dropped_total",
			Help: "Inbound frames dropped, by reason.",
			ConstLabels: prometheus.Labels{"node": node},
		}, []string{"reason"}),
		retransmits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netrajaal_chunk_retransmits_total",
			Help: "Selective-repeat retransmit rounds issued by the chunk sender.",
			ConstLabels: prometheus.Labels{"node": node},
		}),
		ackLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "netrajaal_ack_latency_seconds",
			Help: "Round-trip time from a reliable send to its matching ack.",
			ConstLabels: prometheus.Labels{"node": node},
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- bufferOccupancyDesc
	ch <- lockHeldDesc
	ch <- lockHoldSecondsDesc
	c.forwarded.Describe(ch)
	c.dropped.Describe(ch)
	c.retransmits.Describe(ch)
	c.ackLatency.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	sent, recd, unacked, chunkContexts, lock := c.sent, c.recd, c.unacked, c.chunkContexts, c.lock
	c.mu.Unlock()

	if sent != nil {
		ch <- prometheus.MustNewConstMetric(bufferOccupancyDesc, prometheus.GaugeValue, float64(sent.Len()), c.node, "sent")
	}
	if recd != nil {
		ch <- prometheus.MustNewConstMetric(bufferOccupancyDesc, prometheus.GaugeValue, float64(recd.Len()), c.node, "recd")
	}
	if unacked != nil {
		ch <- prometheus.MustNewConstMetric(bufferOccupancyDesc, prometheus.GaugeValue, float64(unacked.Len()), c.node, "unacked")
	}
	if chunkContexts != nil {
		ch <- prometheus.MustNewConstMetric(bufferOccupancyDesc, prometheus.GaugeValue, float64(chunkContexts.Len()), c.node, "chunk_contexts")
	}

	if lock != nil {
		holder, held := lock.Current()
		heldVal := 0.0
		holdSeconds := 0.0
		if held {
			heldVal = 1.0
			holdSeconds = time.Since(holder.AcquiredAt).Seconds()
		}
		ch <- prometheus.MustNewConstMetric(lockHeldDesc, prometheus.GaugeValue, heldVal, c.node)
		ch <- prometheus.MustNewConstMetric(lockHoldSecondsDesc, prometheus.GaugeValue, holdSeconds, c.node)
	}

	c.forwarded.Collect(ch)
	c.dropped.Collect(ch)
	c.retransmits.Collect(ch)
	c.ackLatency.Collect(ch)
}

// IncForwarded implements router.MetricsSink.
func (c *Collector) IncForwarded(msgType frame.Type) {
	c.forwarded.WithLabelValues(string(msgType)).Inc()
}

// IncDropped implements router.MetricsSink.
func (c *Collector) IncDropped(reason router.DroppedReason) {
	c.dropped.WithLabelValues(string(reason)).Inc()
}

// IncChunkRetransmit implements chunk.MetricsSink.
func (c *Collector) IncChunkRetransmit() {
	c.retransmits.Inc()
}

// ObserveAckLatency implements unicast.MetricsSink.
func (c *Collector) ObserveAckLatency(d time.Duration) {
	c.ackLatency.Observe(d.Seconds())
}
