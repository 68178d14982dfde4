package wsengine

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ionwire/wsengine/wserr"
)

// FrameHeader is a parsed RFC 6455 frame header.
//
// Remaining tracks how many payload bytes of this frame have not yet
// been delivered through Connection.Receive; it starts at PayloadLength
// and counts down to zero. It must never be observed negative by a
// caller.
type FrameHeader struct {
	Fin  bool
	RSV1 bool
	RSV2 bool
	RSV3 bool

	Opcode Opcode

	Masked  bool
	MaskKey uint32

	PayloadLength int64
	Remaining     int64
}

// maxHeaderSize is the largest a frame header can be: 1 byte of
// fin/rsv/opcode, 1 byte of mask/length7, 8 bytes of extended length,
// and 4 bytes of mask key.
const maxHeaderSize = 1 + 1 + 8 + 4

// maxControlPayload is the RFC 6455 limit on control frame payload
// size, enforced symmetrically for both outbound and inbound frames.
const maxControlPayload = 125

// headerLength returns the total number of header bytes implied by the
// first two bytes of a frame, so the caller can read exactly the
// remaining (n-2) bytes before calling ParseHeader.
func headerLength(b0, b1 byte) int {
	n := 2
	switch b1 &^ 0x80 {
	case 126:
		n += 2
	case 127:
		n += 8
	}
	if b1&0x80 != 0 {
		n += 4
	}
	return n
}

// ParseHeader parses a complete frame header from b, whose length must
// equal headerLength(b[0], b[1]). permittedRSV is a bitmask (bit i set
// means RSVi+1 is allowed to be set) of reserved bits negotiated
// extensions are allowed to use; this engine negotiates none, so
// callers pass 0.
func ParseHeader(b []byte, permittedRSV byte) (FrameHeader, error) {
	if len(b) < 2 {
		return FrameHeader{}, &wserr.ProtocolError{Reason: "header shorter than 2 bytes"}
	}

	var h FrameHeader
	h.Fin = b[0]&0x80 != 0
	h.RSV1 = b[0]&0x40 != 0
	h.RSV2 = b[0]&0x20 != 0
	h.RSV3 = b[0]&0x10 != 0
	h.Opcode = Opcode(b[0] & 0x0f)

	rsv := byte(0)
	if h.RSV1 {
		rsv |= 0x1
	}
	if h.RSV2 {
		rsv |= 0x2
	}
	if h.RSV3 {
		rsv |= 0x4
	}
	if rsv&^permittedRSV != 0 {
		return FrameHeader{}, &wserr.ProtocolError{Reason: fmt.Sprintf("unexpected reserved bits set: %#x", rsv)}
	}

	h.Masked = b[1]&0x80 != 0
	length7 := b[1] &^ 0x80

	off := 2
	switch {
	case length7 < 126:
		h.PayloadLength = int64(length7)
	case length7 == 126:
		if len(b) < off+2 {
			return FrameHeader{}, &wserr.ProtocolError{Reason: "truncated 16-bit length"}
		}
		h.PayloadLength = int64(binary.BigEndian.Uint16(b[off:]))
		off += 2
	case length7 == 127:
		if len(b) < off+8 {
			return FrameHeader{}, &wserr.ProtocolError{Reason: "truncated 64-bit length"}
		}
		length64 := binary.BigEndian.Uint64(b[off:])
		if length64 > math.MaxInt64 {
			return FrameHeader{}, &wserr.ProtocolError{Reason: "64-bit length has high bit set"}
		}
		h.PayloadLength = int64(length64)
		off += 8
	}

	if h.Masked {
		if len(b) < off+4 {
			return FrameHeader{}, &wserr.ProtocolError{Reason: "truncated mask key"}
		}
		h.MaskKey = binary.LittleEndian.Uint32(b[off:])
		off += 4
	}

	if h.Opcode.IsControl() {
		if !h.Fin {
			return FrameHeader{}, &wserr.ProtocolError{Reason: "fragmented control frame"}
		}
		if h.PayloadLength > maxControlPayload {
			return FrameHeader{}, &wserr.ProtocolError{Reason: fmt.Sprintf("control frame payload %d exceeds %d", h.PayloadLength, maxControlPayload)}
		}
	}

	h.Remaining = h.PayloadLength
	return h, nil
}

// frameHeaderLen returns the exact number of bytes EmitHeader will
// write for h, so a caller can right-align the header against a
// payload that immediately follows it without copying the payload.
func frameHeaderLen(h FrameHeader) int {
	n := 2
	switch {
	case h.PayloadLength > math.MaxUint16:
		n += 8
	case h.PayloadLength > 125:
		n += 2
	}
	if h.Masked {
		n += 4
	}
	return n
}

// EmitHeader serializes h into dst, which must have at least
// frameHeaderLen(h) bytes of room, and returns the slice of dst
// actually used. Callers building an outbound frame reserve
// maxHeaderSize bytes immediately before the payload and pass the
// tail frameHeaderLen(h) bytes of that reservation as dst, so the
// header lands immediately adjacent to the payload with no gap and no
// payload copy.
func EmitHeader(h FrameHeader, dst []byte) ([]byte, error) {
	need := frameHeaderLen(h)
	if len(dst) < need {
		return nil, fmt.Errorf("wsengine: EmitHeader needs %d bytes, got %d", need, len(dst))
	}
	if h.PayloadLength < 0 {
		return nil, fmt.Errorf("wsengine: negative payload length %d", h.PayloadLength)
	}
	if h.Opcode.IsControl() {
		if !h.Fin {
			return nil, fmt.Errorf("wsengine: control frame must be final")
		}
		if h.PayloadLength > maxControlPayload {
			return nil, fmt.Errorf("wsengine: control frame payload %d exceeds %d", h.PayloadLength, maxControlPayload)
		}
	}

	var b0 byte
	if h.Fin {
		b0 |= 0x80
	}
	if h.RSV1 {
		b0 |= 0x40
	}
	if h.RSV2 {
		b0 |= 0x20
	}
	if h.RSV3 {
		b0 |= 0x10
	}
	b0 |= byte(h.Opcode)

	var lenBuf [8]byte
	var lenN int
	var length7 byte
	switch {
	case h.PayloadLength < 126:
		length7 = byte(h.PayloadLength)
	case h.PayloadLength <= math.MaxUint16:
		length7 = 126
		binary.BigEndian.PutUint16(lenBuf[:2], uint16(h.PayloadLength))
		lenN = 2
	default:
		length7 = 127
		binary.BigEndian.PutUint64(lenBuf[:8], uint64(h.PayloadLength))
		lenN = 8
	}

	var b1 byte = length7
	if h.Masked {
		b1 |= 0x80
	}

	n := 2
	dst[0] = b0
	dst[1] = b1
	n += copy(dst[n:], lenBuf[:lenN])

	if h.Masked {
		binary.LittleEndian.PutUint32(dst[n:], h.MaskKey)
		n += 4
	}

	return dst[:n], nil
}
