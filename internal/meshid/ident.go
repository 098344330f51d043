package meshid

import (
	"fmt"
	"math/rand"
)

// BroadcastAddr is the distinguished node address meaning "every neighbor".
const BroadcastAddr byte = '*'

// MIDLen is the fixed wire length of a message identifier.
const MIDLen = 7

// MID is the 7-byte message identifier: type, creator, sender, receiver,
// and a 3-letter random tag. It is a plain array so it is comparable and
// usable directly as a map key.
type MID [MIDLen]byte

// Type returns the ASCII message-type code.
func (m MID) Type() byte { return m[0] }

// Creator returns the origin node address.
func (m MID) Creator() byte { return m[1] }

// Sender returns the last-hop address.
func (m MID) Sender() byte { return m[2] }

// Receiver returns the destination address, or BroadcastAddr.
func (m MID) Receiver() byte { return m[3] }

// Tag returns the 3-letter random disambiguator.
func (m MID) Tag() [3]byte { return [3]byte{m[4], m[5], m[6]} }

// Bytes returns the MID as a freshly allocated 7-byte slice.
func (m MID) Bytes() []byte {
	b := make([]byte, MIDLen)
	copy(b, m[:])
	return b
}

func (m MID) String() string {
	return fmt.Sprintf("%c:%d>%d>%d:%s", m.Type(), m.Creator(), m.Sender(), m.Receiver(), string(m[4:7]))
}

// RandomTag mints a fresh 3-letter A-Z tag, as the original firmware's
// get_rand() does.
func RandomTag() [3]byte {
	var t [3]byte
	for i := range t {
		t[i] = byte('A' + rand.Intn(26))
	}
	return t
}

// EncodeDest maps a logical destination to its wire-address byte: node
// addresses pass through unchanged, broadcast collapses to BroadcastAddr.
func EncodeDest(dest byte, broadcast bool) byte {
	if broadcast {
		return BroadcastAddr
	}
	return dest
}

// NewMID assembles a fresh message identifier with a random tag. sender is
// this node's own address (the immediate last hop), which differs from
// creator once a message has been forwarded at least once.
func NewMID(msgType byte, creator, sender, receiver byte) MID {
	tag := RandomTag()
	return MID{msgType, creator, sender, receiver, tag[0], tag[1], tag[2]}
}

// MIDFromBytes parses a 7-byte slice into a MID without validation; callers
// that need validation should go through frame.Decode instead.
func MIDFromBytes(b []byte) (MID, bool) {
	if len(b) < MIDLen {
		return MID{}, false
	}
	var m MID
	copy(m[:], b[:MIDLen])
	return m, true
}
