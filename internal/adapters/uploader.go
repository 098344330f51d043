// Package adapters provides the external-collaborator interfaces named in
// spec.md §6 (uploader, detector) plus runnable in-process stand-ins so the
// mesh core can be exercised without real hardware or a cellular/WiFi
// uplink.
package adapters

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// UploadMessageType names the three record kinds the command center can
// receive (spec.md §6 UploadRecord.message_type).
type UploadMessageType string

const (
	MessageTypeHeartbeat  UploadMessageType = "heartbeat"
	MessageTypeEventText  UploadMessageType = "event_text"
	MessageTypeEvent      UploadMessageType = "event"
)

// UploadRecord mirrors spec.md §6's UploadRecord, plus an UploadID the
// router assigns at delivery time. A real cloud uploader behind an
// at-least-once HTTP retry needs some idempotency key to dedupe a retried
// POST; UploadID fills that role without forcing the upload path to derive
// one from the opaque Payload.
type UploadRecord struct {
	UploadID    string
	MachineID   byte
	MessageType UploadMessageType
	Payload     []byte
	EpochMS     uint64
}

// NewUploadID mints a fresh idempotency key for one UploadRecord.
func NewUploadID() string {
	return uuid.NewString()
}

// Uploader is the interface the core calls for each locally-delivered H, T,
// or reassembled image at the command-center node.
type Uploader interface {
	Upload(ctx context.Context, rec UploadRecord) bool
}

// MemoryUploader is an in-process Uploader stand-in: it appends every
// record to a slice, for tests and for cmd/node's demo mode when no real
// uplink is configured.
type MemoryUploader struct {
	mu      sync.Mutex
	records []UploadRecord
	fail    bool
}

// NewMemoryUploader returns an empty MemoryUploader.
func NewMemoryUploader() *MemoryUploader {
	return &MemoryUploader{}
}

// Upload records rec and reports success, unless SetFail(true) was called.
func (m *MemoryUploader) Upload(ctx context.Context, rec UploadRecord) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return false
	}
	m.records = append(m.records, rec)
	return true
}

// SetFail makes every subsequent Upload report failure, for tests of
// failed uploads.
func (m *MemoryUploader) SetFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

// Records returns a snapshot of everything uploaded so far.
func (m *MemoryUploader) Records() []UploadRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]UploadRecord, len(m.records))
	copy(out, m.records)
	return out
}
