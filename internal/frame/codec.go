// Package frame implements the wire codec for mesh messages: the 7-byte
// MID, the ';' delimiter, the payload, and the newline-escape hack the
// underlying radio requires.
package frame

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vyomos/netrajaal-mesh/internal/meshid"
)

// Type is the single-letter message-type code carried in MID[0].
type Type byte

// Message-type codes, per spec.md §3.
const (
	TypeNeighborBeacon Type = 'N'
	TypeShortestPath   Type = 'S'
	TypeHeartbeat      Type = 'H'
	TypeBegin          Type = 'B'
	TypeChunkItem      Type = 'I'
	TypeEnd            Type = 'E'
	TypeAck            Type = 'A'
	TypeValidate       Type = 'V'
	TypeEventText      Type = 'T'
)

// recognized is the set of message-type codes the codec will accept during
// decode; anything else is a parse error.
var recognized = map[Type]bool{
	TypeNeighborBeacon: true,
	TypeShortestPath:   true,
	TypeHeartbeat:      true,
	TypeBegin:          true,
	TypeChunkItem:      true,
	TypeEnd:            true,
	TypeAck:            true,
	TypeValidate:       true,
	TypeEventText:      true,
}

// Reliable reports whether a message of this type requires an ACK to be
// considered delivered (spec.md §3 reliability column).
func (t Type) Reliable() bool {
	switch t {
	case TypeHeartbeat, TypeBegin, TypeEnd, TypeValidate, TypeEventText:
		return true
	default:
		return false
	}
}

// MaxWireLen is the maximum total encoded frame size, after newline
// escaping, accepted by the codec (spec.md §3/§4.1).
const MaxWireLen = 254

const delimiter = ';'

// newline is escaped as this 4-byte literal sequence because the radio
// driver treats 0x0A as a record terminator (spec.md §4.1, §9).
var (
	newlineEscape = []byte("{}[]")
	newlineByte   = []byte{'\n'}
)

// ErrFrameTooLarge is returned by Encode when the assembled frame, after
// escaping, would exceed MaxWireLen.
var ErrFrameTooLarge = errors.New("frame: encoded length exceeds wire maximum")

// ParseError is returned by Decode for any malformed input. It never
// carries partial results — decode either fully succeeds or fails.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "frame: parse error: " + e.Reason }

// Is makes every ParseError match errors.Is(err, ErrParse) regardless of
// its specific Reason, mirroring spec.md §7's single "ParseError" kind.
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// ErrParse is the sentinel callers should use with errors.Is to detect any
// frame parse failure.
var ErrParse = &ParseError{Reason: "generic"}

func parseErr(reason string, args ...interface{}) error {
	return &ParseError{Reason: fmt.Sprintf(reason, args...)}
}

// Encode assembles MID ‖ ';' ‖ payload and applies the newline escape.
// dest should already be meshid.BroadcastAddr for broadcast messages.
func Encode(msgType Type, creator, sender, dest byte, tag [3]byte, payload []byte) ([]byte, error) {
	mid := meshid.MID{byte(msgType), creator, sender, dest, tag[0], tag[1], tag[2]}
	buf := make([]byte, 0, meshid.MIDLen+1+len(payload))
	buf = append(buf, mid[:]...)
	buf = append(buf, delimiter)
	buf = append(buf, payload...)

	escaped := bytes.ReplaceAll(buf, newlineByte, newlineEscape)
	if len(escaped) > MaxWireLen {
		return nil, ErrFrameTooLarge
	}
	return escaped, nil
}

// EncodeMID is like Encode but takes an already-assembled MID, for callers
// that minted it via meshid.NewMID.
func EncodeMID(mid meshid.MID, payload []byte) ([]byte, error) {
	buf := make([]byte, 0, meshid.MIDLen+1+len(payload))
	buf = append(buf, mid[:]...)
	buf = append(buf, delimiter)
	buf = append(buf, payload...)

	escaped := bytes.ReplaceAll(buf, newlineByte, newlineEscape)
	if len(escaped) > MaxWireLen {
		return nil, ErrFrameTooLarge
	}
	return escaped, nil
}

// Decode reverses the newline escape, validates the header, and splits the
// frame into its MID and payload. No partial parse is ever returned: on
// any failure both return values are zero and err is non-nil.
func Decode(wire []byte) (meshid.MID, []byte, error) {
	unescaped := bytes.ReplaceAll(wire, newlineEscape, newlineByte)

	if len(unescaped) < meshid.MIDLen+1 {
		return meshid.MID{}, nil, parseErr("frame too short: %d bytes", len(unescaped))
	}
	if unescaped[meshid.MIDLen] != delimiter {
		return meshid.MID{}, nil, parseErr("missing ';' delimiter at offset %d", meshid.MIDLen)
	}

	mid, ok := meshid.MIDFromBytes(unescaped)
	if !ok {
		return meshid.MID{}, nil, parseErr("short MID")
	}
	if !recognized[Type(mid.Type())] {
		return meshid.MID{}, nil, parseErr("unrecognized message type %q", mid.Type())
	}
	for _, b := range mid.Tag() {
		if b < 'A' || b > 'Z' {
			return meshid.MID{}, nil, parseErr("tag byte %q not in A-Z", b)
		}
	}

	payload := unescaped[meshid.MIDLen+1:]
	return mid, payload, nil
}
