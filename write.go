package wsengine

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/ionwire/wsengine/internal/errd"
	"github.com/ionwire/wsengine/wserr"
)

// sendOpt bits modify sendFrame's locking and error-reporting behavior.
type sendOpt uint8

const (
	// optNoLock skips write-permit acquisition; the caller already
	// coordinates exclusivity another way (the close handshake, which
	// is a terminal, best-effort write that doesn't need to queue
	// behind other traffic).
	optNoLock sendOpt = 1 << iota
	// optIgnoreClose allows the write to proceed even if CanSend is
	// false, for the close frame itself.
	optIgnoreClose
	// optNoErrors reports failure only through the boolean return, never
	// through err, and does not initiate closing the connection - used
	// for best-effort control replies where a single failed write
	// shouldn't tear down an otherwise healthy connection.
	optNoErrors
)

// prepareFrame serializes a header for a payload already written into
// region[maxHeaderSize:maxHeaderSize+payloadLen], masking it in place
// if this connection masks outbound frames, and returns the single
// contiguous slice - header immediately followed by payload - ready
// for Transport.Write. region must have at least maxHeaderSize bytes
// before the payload, per the layouts carved by newScratchLayout and
// newSendLayout.
func (c *Connection) prepareFrame(region []byte, payloadLen int, final bool, opcode Opcode, rsv1 bool) ([]byte, error) {
	h := FrameHeader{
		Fin:           final,
		RSV1:          rsv1,
		Opcode:        opcode,
		Masked:        c.maskOutbound,
		PayloadLength: int64(payloadLen),
	}
	if c.maskOutbound {
		h.MaskKey = randomMaskKey()
	}

	hl := frameHeaderLen(h)
	headerDst := region[maxHeaderSize-hl : maxHeaderSize]
	if _, err := EmitHeader(h, headerDst); err != nil {
		return nil, err
	}

	payload := region[maxHeaderSize : maxHeaderSize+payloadLen]
	if c.maskOutbound {
		maskBytes(h.MaskKey, 0, payload)
	}

	return region[maxHeaderSize-hl : maxHeaderSize+payloadLen], nil
}

// randomMaskKey returns a cryptographically random, possibly-zero mask
// key. RFC 6455 requires the key be unpredictable, not nonzero.
func randomMaskKey() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.LittleEndian.Uint32(b[:])
}

// sendFrame acquires the write permit (unless optNoLock), writes frame
// to the transport and flushes it, and releases the permit. lockTimeout
// selects how the permit is acquired: zero means try without blocking,
// negative means block on ctx with no additional deadline, positive
// bounds the acquisition with its own timeout layered on ctx.
//
// Failures other than a bare optIgnoreClose/CanSend rejection initiate
// closing the connection with "Unexpected Condition", unless opt carries
// optNoErrors.
func (c *Connection) sendFrame(ctx context.Context, frame []byte, lockTimeout time.Duration, opt sendOpt) (ok bool, err error) {
	if opt&optIgnoreClose == 0 && !c.CanSend() {
		if opt&optNoErrors != 0 {
			return false, nil
		}
		return false, &wserr.StateError{Reason: "connection is closing"}
	}

	if opt&optNoLock == 0 {
		switch {
		case lockTimeout == 0:
			if !c.writePermit.TryLock() {
				return false, nil
			}
			defer c.writePermit.Unlock()
		case lockTimeout < 0:
			if err := c.writePermit.Lock(ctx); err != nil {
				return c.sendFailed(ctx, opt, err)
			}
			defer c.writePermit.Unlock()
		default:
			lctx, cancel := context.WithTimeout(ctx, lockTimeout)
			defer cancel()
			if err := c.writePermit.Lock(lctx); err != nil {
				return c.sendFailed(ctx, opt, err)
			}
			defer c.writePermit.Unlock()
		}
	}

	if err := c.transport.Write(ctx, frame); err != nil {
		return c.sendFailed(ctx, opt, c.wrapTransportErr("write", err))
	}
	if err := c.transport.Flush(ctx); err != nil {
		return c.sendFailed(ctx, opt, c.wrapTransportErr("flush", err))
	}
	return true, nil
}

func (c *Connection) sendFailed(ctx context.Context, opt sendOpt, err error) (bool, error) {
	if opt&optNoErrors != 0 {
		c.logDebug("best-effort write failed", "err", err)
		return false, nil
	}
	c.initiateClose(ctx, StatusInternalError, "Unexpected Condition")
	return false, err
}

// SendFrame writes a single data frame carrying payload, masked per
// this connection's role. Callers streaming a message across several
// continuation frames must bracket the whole span with BeginWrite and
// EndWrite so no other goroutine's frame is interleaved on the wire.
// payload must fit within the configured send buffer capacity.
func (c *Connection) SendFrame(ctx context.Context, opcode Opcode, final bool, payload []byte) (err error) {
	defer errd.Wrap(&err, "failed to send frame")

	capacity := len(c.send.raw) - maxHeaderSize
	if len(payload) > capacity {
		return &wserr.StateError{Reason: "payload exceeds send buffer capacity"}
	}
	copy(c.send.body(len(payload)), payload)
	frame, err := c.prepareFrame(c.send.raw, len(payload), final, opcode, false)
	if err != nil {
		return err
	}
	_, err = c.sendFrame(ctx, frame, -1, 0)
	return err
}

// sendControlFrame builds and writes a control frame (ping, pong, or a
// bare close code) out of the scratch region reserved for it.
func (c *Connection) sendControlFrame(ctx context.Context, opcode Opcode, payload []byte, lockTimeout time.Duration, opt sendOpt) (bool, error) {
	var region []byte
	switch opcode {
	case OpPing:
		region = c.scratch.outPing
	case OpPong:
		region = c.scratch.outPong
	case OpClose:
		region = c.scratch.outClose
	default:
		return false, &wserr.StateError{Reason: "not a control opcode"}
	}

	copy(outRegionBody(region, len(payload)), payload)
	frame, err := c.prepareFrame(region, len(payload), true, opcode, false)
	if err != nil {
		return false, err
	}
	return c.sendFrame(ctx, frame, lockTimeout, opt)
}
