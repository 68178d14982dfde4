package wsengine

import (
	"context"
	"io"

	"github.com/ionwire/wsengine/internal/errd"
	"github.com/ionwire/wsengine/wserr"
)

// AwaitHeader reads and returns the next data-frame header, silently
// consuming and dispatching any control frames (ping, pong, close)
// interleaved before it. It fails with a *wserr.StateError if another
// AwaitHeader/Receive span is already in flight, or if the previous
// frame's payload hasn't been fully drained through Receive yet.
//
// Any I/O or protocol failure while looking for the next data header
// initiates closing the connection with "Protocol Error" and is
// reported to the caller as a single wrapped error.
func (c *Connection) AwaitHeader(ctx context.Context) (h *FrameHeader, err error) {
	defer errd.Wrap(&err, "failed to await header")

	if !c.CanReceive() {
		return nil, &wserr.StateError{Reason: "connection not open for receive"}
	}
	if !c.acquireReading() {
		return nil, &wserr.StateError{Reason: "concurrent read attempt"}
	}

	h, err = c.awaitDataHeader(ctx)
	if err != nil {
		c.releaseReading()
		c.initiateClose(ctx, StatusProtocolError, "Protocol Error")
		return nil, err
	}

	c.currentHeader = h
	c.recvPos = 0
	return h, nil
}

func (c *Connection) awaitDataHeader(ctx context.Context) (*FrameHeader, error) {
	for {
		h, err := c.readHeader(ctx)
		if err != nil {
			return nil, err
		}
		c.pingHandler.NotifyActivity()

		if !h.Opcode.IsControl() {
			if h.Opcode.IsReserved() {
				return nil, &wserr.ProtocolError{Reason: "reserved opcode"}
			}
			return &h, nil
		}
		if err := c.dispatchControl(ctx, h); err != nil {
			return nil, err
		}
	}
}

// readHeader reads exactly one frame header off the transport into the
// header scratch region.
func (c *Connection) readHeader(ctx context.Context) (FrameHeader, error) {
	prefix := c.scratch.headerScratch[:2]
	if err := c.readFull(ctx, prefix); err != nil {
		return FrameHeader{}, err
	}

	total := headerLength(prefix[0], prefix[1])
	full := c.scratch.headerScratch[:total]
	if total > 2 {
		if err := c.readFull(ctx, full[2:]); err != nil {
			return FrameHeader{}, err
		}
	}

	return ParseHeader(full, 0)
}

// dispatchControl reads a control frame's payload (the header h has
// already been parsed) and acts on it. Of a close frame only the 2-byte
// status code is kept; any reason text after it is read off the wire
// and dropped. A close frame only advances the close state machine
// here - it never emits the answering close frame itself; a later call
// to Close does that.
func (c *Connection) dispatchControl(ctx context.Context, h FrameHeader) error {
	var region []byte
	switch h.Opcode {
	case OpPing:
		region = c.scratch.inPing
	case OpPong:
		region = c.scratch.inPong
	case OpClose:
		region = c.scratch.inClose
	default:
		return &wserr.ProtocolError{Reason: "reserved control opcode"}
	}

	n := h.PayloadLength
	if n > int64(len(region)) {
		n = int64(len(region))
	}
	payload := region[:n]
	if err := c.readFull(ctx, payload); err != nil {
		return err
	}
	if rest := h.PayloadLength - n; rest > 0 {
		if err := c.readFull(ctx, c.scratch.inPing[:rest]); err != nil {
			return err
		}
	}
	if h.Masked {
		maskBytes(h.MaskKey, 0, payload)
	}

	switch h.Opcode {
	case OpPing:
		_, err := c.sendControlFrame(ctx, OpPong, payload, -1, optNoErrors)
		return err
	case OpPong:
		c.pingHandler.NotifyPong(payload)
		return nil
	case OpClose:
		return c.handleCloseFrame(payload)
	}
	return nil
}

// Receive copies up to len(dst) bytes of the current data frame's
// payload into dst, unmasking in place if the frame was masked, and
// returns how many bytes it read, decrementing the header's Remaining.
// The call that delivers the frame's last payload byte also clears the
// current header (CurrentHeader returns nil) and ends the read span, so
// callers watch the Remaining field of the header AwaitHeader returned,
// then check its Fin to know whether to call AwaitHeader again for a
// continuation frame or treat the message as complete. For a
// zero-length frame Receive returns (0, nil) and clears the header;
// once the header is cleared, a further Receive returns a
// *wserr.StateError.
//
// A failure here initiates closing the connection with "Unexpected
// Condition".
func (c *Connection) Receive(ctx context.Context, dst []byte) (n int, err error) {
	defer errd.Wrap(&err, "failed to receive")

	h := c.currentHeader
	if h == nil {
		return 0, &wserr.StateError{Reason: "Receive called without a pending header"}
	}
	if h.Remaining == 0 {
		c.disposeHeaderIfFinished()
		return 0, nil
	}

	if int64(len(dst)) > h.Remaining {
		dst = dst[:h.Remaining]
	}

	if err := c.readFull(ctx, dst); err != nil {
		c.currentHeader = nil
		c.releaseReading()
		c.initiateClose(ctx, StatusInternalError, "Unexpected Condition")
		return 0, err
	}

	if h.Masked {
		// h.MaskKey is always the original key parsed off the wire;
		// maskBytes re-derives the correct phase from the absolute
		// stream position on every call, so nothing needs to be fed
		// back for the next chunk.
		maskBytes(h.MaskKey, c.recvPos, dst)
	}

	n = len(dst)
	c.recvPos += int64(n)
	h.Remaining -= int64(n)
	c.disposeHeaderIfFinished()
	return n, nil
}

func (c *Connection) disposeHeaderIfFinished() {
	if c.currentHeader != nil && c.currentHeader.Remaining == 0 {
		c.currentHeader = nil
		c.recvPos = 0
		c.releaseReading()
	}
}

// readFull reads len(dst) bytes from the transport, looping over
// partial reads. A graceful half-close (n==0, err==nil) surfaces as an
// unexpected-EOF transport error since it can only occur mid-frame
// here.
func (c *Connection) readFull(ctx context.Context, dst []byte) error {
	for len(dst) > 0 {
		n, err := c.transport.Read(ctx, dst)
		if n == 0 && err == nil {
			return &wserr.TransportError{Op: "read", Err: io.ErrUnexpectedEOF}
		}
		dst = dst[n:]
		if err != nil {
			return c.wrapTransportErr("read", err)
		}
	}
	return nil
}
