package adapters

import (
	"context"
	"os"
	"time"

	"github.com/vyomos/netrajaal-mesh/internal/chunk"
	"github.com/vyomos/netrajaal-mesh/internal/topology"
)

// DefaultRequeuePause is the pause before retrying a failed image transfer
// (spec.md §4.9: "~20 s").
const DefaultRequeuePause = 20 * time.Second

// DefaultInterImageDelay lets ACKs drain between successful transfers
// (spec.md §4.9: "~5 s").
const DefaultInterImageDelay = 5 * time.Second

// ChunkSender is the subset of chunk.Sender the pump depends on.
type ChunkSender interface {
	Send(ctx context.Context, dest byte, blob []byte) error
}

var _ ChunkSender = (*chunk.Sender)(nil)

// Pump dequeues image tasks from a Detector, loads the file, optionally
// encrypts it, and hands the bytes to the chunker for the next hop on the
// path to the command center (spec.md §4.9, upper layer of C7).
type Pump struct {
	Detector        Detector
	Sender          ChunkSender
	Topology        *topology.Table
	RequeuePause    time.Duration
	InterImageDelay time.Duration
	// Encrypt, if non-nil, transforms the raw file bytes before chunking
	// (the hybrid envelope wrap, when encryption is enabled).
	Encrypt func(blob []byte) ([]byte, error)
	// LoadFile reads an image's bytes; overridable for tests.
	LoadFile func(path string) ([]byte, error)
}

// NewPump builds a Pump with spec-default pacing and os.ReadFile as the
// file loader.
func NewPump(detector Detector, sender ChunkSender, topo *topology.Table) *Pump {
	return &Pump{
		Detector:        detector,
		Sender:          sender,
		Topology:        topo,
		RequeuePause:    DefaultRequeuePause,
		InterImageDelay: DefaultInterImageDelay,
		LoadFile:        os.ReadFile,
	}
}

// Run blocks, pulling and transferring images until ctx is canceled or the
// Detector is exhausted. On a transfer failure, the same task is retried
// after RequeuePause; no next hop is treated the same as a send failure,
// since producers are expected to reattempt once a path exists (spec.md
// §4.7's forwarding note applies symmetrically here).
func (p *Pump) Run(ctx context.Context) {
	for {
		task, ok := p.Detector.Next(ctx)
		if !ok {
			return
		}
		for {
			if err := ctx.Err(); err != nil {
				return
			}
			if p.attempt(ctx, task) {
				break
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.RequeuePause):
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.InterImageDelay):
		}
	}
}

func (p *Pump) attempt(ctx context.Context, task ImageTask) bool {
	dest, ok := p.Topology.NextHop()
	if !ok {
		return false
	}
	blob, err := p.LoadFile(task.Path)
	if err != nil {
		return false
	}
	if p.Encrypt != nil {
		blob, err = p.Encrypt(blob)
		if err != nil {
			return false
		}
	}
	return p.Sender.Send(ctx, dest, blob) == nil
}
