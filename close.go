package wsengine

import (
	"context"
	"encoding/binary"

	"github.com/ionwire/wsengine/internal/errd"
	"github.com/ionwire/wsengine/wserr"
)

// Close performs the local half of the closing handshake: it CASes
// Open->CloseSent or CloseReceived->Closed (returning immediately, a
// no-op, if neither applies - Close is idempotent) and writes a close
// frame carrying code, ignoring both the write permit and any write
// failure. If the peer's close frame had already arrived, the
// handshake is now complete and the transport is closed; otherwise the
// caller must keep driving AwaitHeader until the peer's close frame
// arrives, which completes the handshake and closes the transport
// (a later Close is then a no-op; Dispose once done).
func (c *Connection) Close(ctx context.Context, code StatusCode, reason string) (err error) {
	defer errd.Wrap(&err, "failed to close")

	if !validOutboundCloseCode(code) {
		return &wserr.StateError{Reason: "invalid outbound close code"}
	}

	result, ok := c.state.localClose()
	if !ok {
		return nil
	}
	c.closeReason = &CloseError{Code: code, Reason: reason}

	_, _ = c.sendControlFrame(ctx, OpClose, encodeCloseCode(code), -1, optNoLock|optNoErrors|optIgnoreClose)

	if result == StateClosed {
		return c.transport.Close()
	}
	return nil
}

// handleCloseFrame processes an inbound close frame's payload: it
// records the parsed reason and advances the close state machine
// (Open->CloseReceived or CloseSent->Closed), closing the transport if
// the latter. It never writes an answering close frame - that only
// happens when the application later calls Close.
func (c *Connection) handleCloseFrame(payload []byte) error {
	ce := parseClosePayload(payload)
	c.closeReason = &ce

	result, ok := c.state.remoteClose()
	if !ok {
		return nil
	}
	if result == StateClosed {
		return c.transport.Close()
	}
	return nil
}

func encodeCloseCode(code StatusCode) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(code))
	return b[:]
}
