package wsengine

import (
	"bytes"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	lengths := []int64{0, 1, 124, 125, 126, 127, 65535, 65536, 70000}

	for _, n := range lengths {
		for _, masked := range []bool{false, true} {
			n, masked := n, masked
			t.Run("", func(t *testing.T) {
				t.Parallel()

				h := FrameHeader{
					Fin:           true,
					Opcode:        OpBinary,
					Masked:        masked,
					MaskKey:       0x11223344,
					PayloadLength: n,
				}

				buf := make([]byte, maxHeaderSize)
				out, err := EmitHeader(h, buf)
				if err != nil {
					t.Fatalf("EmitHeader: %v", err)
				}

				total := headerLength(out[0], out[1])
				if total != len(out) {
					t.Fatalf("headerLength disagreed with EmitHeader: %d vs %d", total, len(out))
				}

				got, err := ParseHeader(out, 0)
				if err != nil {
					t.Fatalf("ParseHeader: %v", err)
				}
				if got.Fin != h.Fin || got.Opcode != h.Opcode || got.Masked != h.Masked || got.PayloadLength != h.PayloadLength {
					t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
				}
				if masked && got.MaskKey != h.MaskKey {
					t.Fatalf("mask key mismatch: got %#x, want %#x", got.MaskKey, h.MaskKey)
				}
			})
		}
	}
}

func TestFrameHeaderLenMatchesEmitted(t *testing.T) {
	t.Parallel()

	h := FrameHeader{Fin: true, Opcode: OpText, Masked: true, MaskKey: 1, PayloadLength: 70000}
	need := frameHeaderLen(h)

	region := make([]byte, maxHeaderSize)
	out, err := EmitHeader(h, region[maxHeaderSize-need:])
	if err != nil {
		t.Fatalf("EmitHeader: %v", err)
	}
	if len(out) != need {
		t.Fatalf("frameHeaderLen predicted %d, EmitHeader used %d", need, len(out))
	}
}

func TestParseHeaderRejectsUnexpectedRSV(t *testing.T) {
	t.Parallel()

	_, err := ParseHeader([]byte{0x40 | byte(OpBinary), 0x00}, 0)
	if err == nil {
		t.Fatalf("expected an error for an unpermitted RSV1 bit")
	}
}

func TestParseHeaderRejectsFragmentedControlFrame(t *testing.T) {
	t.Parallel()

	// FIN unset, opcode ping.
	_, err := ParseHeader([]byte{byte(OpPing), 0x00}, 0)
	if err == nil {
		t.Fatalf("expected an error for a fragmented control frame")
	}
}

func TestEmitHeaderRejectsOversizedControlPayload(t *testing.T) {
	t.Parallel()

	h := FrameHeader{Fin: true, Opcode: OpPing, PayloadLength: 200}
	buf := make([]byte, maxHeaderSize)
	if _, err := EmitHeader(h, buf); err == nil {
		t.Fatalf("expected EmitHeader to reject an oversized control payload")
	}
}

func TestEmitHeaderRejectsShortDst(t *testing.T) {
	t.Parallel()

	h := FrameHeader{Fin: true, Opcode: OpBinary, Masked: true, PayloadLength: 70000}
	if _, err := EmitHeader(h, make([]byte, 3)); err == nil {
		t.Fatalf("expected EmitHeader to reject a destination shorter than the header")
	}
}

func TestOpcodeClassification(t *testing.T) {
	t.Parallel()

	control := []Opcode{OpClose, OpPing, OpPong}
	data := []Opcode{OpContinuation, OpText, OpBinary}

	for _, op := range control {
		if !op.IsControl() || op.IsData() {
			t.Errorf("%v: expected IsControl true, IsData false", op)
		}
	}
	for _, op := range data {
		if op.IsControl() || !op.IsData() {
			t.Errorf("%v: expected IsControl false, IsData true", op)
		}
	}

	for _, op := range append(append([]Opcode{}, control...), data...) {
		if op.IsReserved() {
			t.Errorf("%v: expected a defined opcode to not be reserved", op)
		}
	}
	reserved := []Opcode{0x3, 0x4, 0x5, 0x6, 0x7, 0xb, 0xc, 0xd, 0xe, 0xf}
	for _, op := range reserved {
		if !op.IsReserved() {
			t.Errorf("%v: expected 0x%x to be reserved", op, byte(op))
		}
	}
}

func TestEmitHeaderMaskedLayout(t *testing.T) {
	t.Parallel()

	h := FrameHeader{Fin: true, Opcode: OpText, Masked: true, MaskKey: 0xdeadbeef, PayloadLength: 5}
	buf := make([]byte, maxHeaderSize)
	out, err := EmitHeader(h, buf)
	if err != nil {
		t.Fatalf("EmitHeader: %v", err)
	}
	if !bytes.Equal(out[:2], []byte{0x81, 0x85}) {
		t.Fatalf("unexpected first two bytes: %#v", out[:2])
	}
}
