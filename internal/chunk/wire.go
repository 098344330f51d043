// Package chunk implements fragmentation and reassembly of blobs too large
// for one frame (spec.md §4.4, C7): the sender splits a blob into ≤200-byte
// chunks framed by Begin/Item/End, and the receiver reassembles them with
// selective-repeat recovery.
package chunk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/vyomos/netrajaal-mesh/internal/meshid"
)

// ChunkSize is the maximum payload carried by one Item frame (spec.md
// §4.4: "partition into chunks of ≤200 bytes").
const ChunkSize = 200

// ImgID is the 3-byte random identifier of one chunked transfer.
type ImgID [3]byte

// String renders the id as its 3 ASCII characters, as carried on the wire.
func (id ImgID) String() string { return string(id[:]) }

// NewImgID mints a fresh 3-letter A-Z id, reusing the same alphabet as a
// message tag (spec.md does not distinguish the two generators).
func NewImgID() ImgID {
	return ImgID(meshid.RandomTag())
}

// ErrMalformed is returned by the wire-format parsers on any malformed
// Begin/End/Item payload.
var ErrMalformed = errors.New("chunk: malformed payload")

// EncodeBeginPayload builds a Begin frame payload: "<img_id>:<epoch_ms>:<count>".
func EncodeBeginPayload(id ImgID, epochMS uint64, count int) []byte {
	return []byte(fmt.Sprintf("%s:%d:%d", id.String(), epochMS, count))
}

// ParseBeginPayload reverses EncodeBeginPayload.
func ParseBeginPayload(payload []byte) (id ImgID, epochMS uint64, count int, err error) {
	parts := strings.SplitN(string(payload), ":", 3)
	if len(parts) != 3 || len(parts[0]) != 3 {
		return ImgID{}, 0, 0, ErrMalformed
	}
	copy(id[:], parts[0])
	epochMS, perr := strconv.ParseUint(parts[1], 10, 64)
	if perr != nil {
		return ImgID{}, 0, 0, ErrMalformed
	}
	n, cerr := strconv.Atoi(parts[2])
	if cerr != nil || n < 0 {
		return ImgID{}, 0, 0, ErrMalformed
	}
	return id, epochMS, n, nil
}

// EncodeEndPayload builds an End frame payload: "<img_id>:<epoch_ms>".
func EncodeEndPayload(id ImgID, epochMS uint64) []byte {
	return []byte(fmt.Sprintf("%s:%d", id.String(), epochMS))
}

// ParseEndPayload reverses EncodeEndPayload.
func ParseEndPayload(payload []byte) (id ImgID, epochMS uint64, err error) {
	parts := strings.SplitN(string(payload), ":", 2)
	if len(parts) != 2 || len(parts[0]) != 3 {
		return ImgID{}, 0, ErrMalformed
	}
	copy(id[:], parts[0])
	epochMS, perr := strconv.ParseUint(parts[1], 10, 64)
	if perr != nil {
		return ImgID{}, 0, ErrMalformed
	}
	return id, epochMS, nil
}

// EncodeItemPayload builds an Item frame payload: id(3) ‖ index(2 BE) ‖ bytes.
func EncodeItemPayload(id ImgID, index uint16, data []byte) []byte {
	out := make([]byte, 0, 3+2+len(data))
	out = append(out, id[:]...)
	out = binary.BigEndian.AppendUint16(out, index)
	out = append(out, data...)
	return out
}

// ParseItemPayload reverses EncodeItemPayload.
func ParseItemPayload(payload []byte) (id ImgID, index uint16, data []byte, err error) {
	if len(payload) < 5 {
		return ImgID{}, 0, nil, ErrMalformed
	}
	copy(id[:], payload[:3])
	index = binary.BigEndian.Uint16(payload[3:5])
	data = payload[5:]
	return id, index, data, nil
}

// Split partitions blob into ≤ChunkSize chunks, in order.
func Split(blob []byte) [][]byte {
	if len(blob) == 0 {
		return [][]byte{{}}
	}
	var chunks [][]byte
	for off := 0; off < len(blob); off += ChunkSize {
		end := off + ChunkSize
		if end > len(blob) {
			end = len(blob)
		}
		chunks = append(chunks, blob[off:end])
	}
	return chunks
}
