// Package ackindex implements the ack tracker (spec.md §4.2, C5):
// correlating an outgoing unacked MID against inbound 'A' frames recorded
// in the received log.
package ackindex

import (
	"strconv"
	"strings"

	"github.com/vyomos/netrajaal-mesh/internal/buffers"
	"github.com/vyomos/netrajaal-mesh/internal/frame"
	"github.com/vyomos/netrajaal-mesh/internal/meshid"
)

// State is the result of a Lookup.
type State int

const (
	// NotAcked means no matching 'A' frame was found in the log.
	NotAcked State = iota
	// AckedComplete means a matching 'A' frame was found and it carries
	// no missing-index list (or the ":-1" sentinel).
	AckedComplete
	// AckedPartial means a matching 'A' frame was found and it carries a
	// non-empty missing-index list.
	AckedPartial
)

// Lookup scans recd newest-first for an 'A' frame whose payload's first 7
// bytes equal target (allowing one trailing byte of truncation, per
// spec.md §4.2/§9), and parses any ":-1" or ":csv" suffix.
func Lookup(recd []buffers.Entry, target meshid.MID) (State, []int) {
	want := target.Bytes()

	for i := len(recd) - 1; i >= 0; i-- {
		e := recd[i]
		if e.MID.Type() != byte(frame.TypeAck) {
			continue
		}
		if !matchesMID(e.Payload, want) {
			continue
		}
		missing := parseMissing(e.Payload)
		if len(missing) == 0 {
			return AckedComplete, nil
		}
		return AckedPartial, missing
	}
	return NotAcked, nil
}

// matchesMID checks whether payload begins with want, the full 7-byte MID,
// or with want missing its final byte — the one-byte-truncation leniency
// observed on the wire (spec.md §4.2, §9).
func matchesMID(payload, want []byte) bool {
	if len(payload) >= len(want) && string(payload[:len(want)]) == string(want) {
		return true
	}
	short := want[:len(want)-1]
	if len(payload) < len(short) || string(payload[:len(short)]) != string(short) {
		return false
	}
	// Tag bytes are A-Z, so a ':' here can only start the suffix.
	return len(payload) == len(short) || payload[len(short)] == ':'
}

// parseMissing extracts the ":-1" / ":csv-indices" suffix that follows the
// (possibly truncated) MID in an ACK payload. ":-1" and an absent suffix
// both mean "nothing missing".
func parseMissing(payload []byte) []int {
	// Address bytes may equal ':', so the search starts after the
	// shortest accepted MID prefix.
	start := meshid.MIDLen - 1
	if len(payload) < start {
		return nil
	}
	idx := indexOfColon(payload[start:])
	if idx < 0 {
		return nil
	}
	rest := string(payload[start+idx+1:])
	if rest == "" || rest == "-1" {
		return nil
	}
	var out []int
	for _, part := range strings.Split(rest, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		if n == -1 {
			return nil
		}
		out = append(out, n)
	}
	return out
}

func indexOfColon(b []byte) int {
	for i, c := range b {
		if c == ':' {
			return i
		}
	}
	return -1
}

// EncodeAckPayload builds the payload of an 'A' frame: the 7-byte target
// MID followed optionally by ":-1" or ":i0,i1,...". missing == nil means
// "fully delivered" and is encoded as ":-1" for symmetry with the
// original firmware's sentinel, except when bare is true, in which case no
// suffix is written at all (used for types that are simply "received").
func EncodeAckPayload(target meshid.MID, missing []int, bare bool) []byte {
	out := append([]byte{}, target.Bytes()...)
	if bare {
		return out
	}
	if len(missing) == 0 {
		return append(out, []byte(":-1")...)
	}
	parts := make([]string, len(missing))
	for i, n := range missing {
		parts[i] = strconv.Itoa(n)
	}
	return append(out, []byte(":"+strings.Join(parts, ","))...)
}
