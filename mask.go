package wsengine

import (
	"encoding/binary"
	"math/bits"
)

// maskBytes applies the RFC 6455 masking algorithm to b in place, given
// the frame's original mask key and the absolute stream position of
// b[0] within the frame's payload. Passing the unmodified original key
// together with the true stream position on every call lets a frame's
// payload be unmasked correctly across any sequence of chunked Receive
// calls; the returned key (rotated to the position after b) is
// available for callers that track phase incrementally instead.
//
// The same routine masks and unmasks: XOR is its own inverse. Unrolled
// for 8-byte-at-a-time throughput on the common case.
func maskBytes(key uint32, streamPos int64, b []byte) uint32 {
	if streamPos%4 != 0 {
		key = bits.RotateLeft32(key, -8*int(streamPos%4))
	}

	if len(b) >= 8 {
		key64 := uint64(key)<<32 | uint64(key)
		for len(b) >= 64 {
			v := binary.LittleEndian.Uint64(b)
			binary.LittleEndian.PutUint64(b, v^key64)
			v = binary.LittleEndian.Uint64(b[8:16])
			binary.LittleEndian.PutUint64(b[8:16], v^key64)
			v = binary.LittleEndian.Uint64(b[16:24])
			binary.LittleEndian.PutUint64(b[16:24], v^key64)
			v = binary.LittleEndian.Uint64(b[24:32])
			binary.LittleEndian.PutUint64(b[24:32], v^key64)
			v = binary.LittleEndian.Uint64(b[32:40])
			binary.LittleEndian.PutUint64(b[32:40], v^key64)
			v = binary.LittleEndian.Uint64(b[40:48])
			binary.LittleEndian.PutUint64(b[40:48], v^key64)
			v = binary.LittleEndian.Uint64(b[48:56])
			binary.LittleEndian.PutUint64(b[48:56], v^key64)
			v = binary.LittleEndian.Uint64(b[56:64])
			binary.LittleEndian.PutUint64(b[56:64], v^key64)
			b = b[64:]
		}
		for len(b) >= 8 {
			v := binary.LittleEndian.Uint64(b)
			binary.LittleEndian.PutUint64(b, v^key64)
			b = b[8:]
		}
	}

	for len(b) >= 4 {
		v := binary.LittleEndian.Uint32(b)
		binary.LittleEndian.PutUint32(b, v^key)
		b = b[4:]
	}

	for i := range b {
		b[i] ^= byte(key)
		key = bits.RotateLeft32(key, -8)
	}

	return key
}
