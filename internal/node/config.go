// Package node assembles the single owned Node record (spec.md §9): one
// mesh participant's configuration, buffers, topology, transmit-mode
// lock, router, and periodic tasks, threaded through a radio.
package node

import (
	"crypto/rsa"
	"time"
)

// Config mirrors spec.md §6's configuration record (my_addr,
// is_command_center, initial_path, dynamic_path, encryption_enabled,
// rsa_keys) plus the operational knobs named throughout §4, so every
// magic number in the spec is a named, overridable field with the spec's
// default baked in.
type Config struct {
	MyAddr            byte
	IsCommandCenter   bool
	InitialPath       []byte
	DynamicPath       bool
	EncryptionEnabled bool

	// CCPublicKey, when EncryptionEnabled, is used by every node to wrap
	// outbound heartbeat/event-text/image payloads. Unlike spec.md §6's
	// rsa_keys.private_per_peer (a map keyed by peer), this mesh has
	// exactly one command center and therefore exactly one relevant
	// private key, so CCPrivateKey replaces that map — recorded as an
	// open-question simplification in DESIGN.md.
	CCPublicKey *rsa.PublicKey
	// CCPrivateKey, when set and IsCommandCenter, is used to unwrap
	// inbound H/T/E payloads.
	CCPrivateKey *rsa.PrivateKey

	// SentCap and RecdCap bound the Sent/Recd logs (spec.md §3:
	// MAX_MSGS_SENT/MAX_MSGS_RECD, 500 each); UnackedCap bounds the
	// in-flight-retry set (MAX_MSGS_UNACKED, 100). A single shared cap
	// can't honor both: 200 would let Unacked exceed 100, and 100 would
	// shrink Sent/Recd below 500, so each store gets its own field.
	SentCap         int
	RecdCap         int
	UnackedCap      int
	BufferMaxAgeMS  uint64
	ChunkContextCap int
	DedupEnabled    bool

	TxLockWatchdog time.Duration
	WatchdogPoll   time.Duration
	RadioPoll      time.Duration
}

// DefaultConfig returns a Config for addr with every operational knob set
// to its spec.md default; the caller still sets IsCommandCenter,
// InitialPath/DynamicPath, and encryption fields as the deployment needs.
func DefaultConfig(addr byte) Config {
	return Config{
		MyAddr:          addr,
		DynamicPath:     true,
		DedupEnabled:    true,
		SentCap:         500,
		RecdCap:         500,
		UnackedCap:      100,
		BufferMaxAgeMS:  uint64(time.Hour / time.Millisecond),
		ChunkContextCap: 50,
		TxLockWatchdog:  180 * time.Second,
		WatchdogPoll:    5 * time.Second,
		RadioPoll:       20 * time.Millisecond,
	}
}
