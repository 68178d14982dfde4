package wsengine

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/ionwire/wsengine/internal/errd"
	"github.com/ionwire/wsengine/wserr"
)

// Connection is a full-duplex WebSocket session multiplexed over a
// single Transport. All exported methods are safe for concurrent use
// except that only one AwaitHeader/Receive pair and one
// BeginWrite/EndWrite pair may be in flight at a time; violating that
// returns a *wserr.StateError rather than corrupting the shared
// buffers.
//
// Construct with New and always call Dispose when done, even after an
// error - it is idempotent and is what returns the pooled buffers.
type Connection struct {
	transport Transport
	pool      BufferPool
	opts      Options
	log       *slog.Logger

	scratch scratchLayout
	send    sendLayout

	writePermit permit

	reading int32 // CAS guard: at most one AwaitHeader/Receive in flight
	writing int32 // CAS guard: at most one BeginWrite/EndWrite span in flight

	state closeStateBox

	currentHeader *FrameHeader
	closeReason   *CloseError
	recvPos       int64 // mask-key rotation offset within the current frame's payload

	pingHandler PingHandler

	latencyNanos int64 // atomic; math.MaxInt64 sentinel means "infinite"

	maskOutbound bool

	closedCh chan struct{} // closed exactly once, by Dispose
}

// New constructs a Connection around an already-established transport.
// opts.MaskOutbound must be true for the client role and false for the
// server role, per RFC 6455's masking requirement.
func New(transport Transport, pool BufferPool, opts Options) *Connection {
	opts = opts.withDefaults()

	c := &Connection{
		transport:    transport,
		pool:         pool,
		opts:         opts,
		log:          opts.Logger,
		scratch:      newScratchLayout(pool),
		send:         newSendLayout(pool, opts.SendBufferSize),
		writePermit:  newPermit(),
		maskOutbound: opts.MaskOutbound,
		closedCh:     make(chan struct{}),
	}
	atomic.StoreInt64(&c.latencyNanos, int64(math.MaxInt64))
	c.pingHandler = newPingHandler(c, opts)
	return c
}

// CurrentHeader returns the header of the data frame currently being
// delivered through Receive, or nil once that frame's payload has been
// fully delivered (or before the first AwaitHeader).
func (c *Connection) CurrentHeader() *FrameHeader {
	return c.currentHeader
}

// CloseReason returns the most recently recorded close reason: the
// one parsed from the peer's close frame, the one passed to Close, or
// the one recorded by an internal failure that started closing (the
// latter only if no reason was recorded before). It is nil while none
// of these has happened.
func (c *Connection) CloseReason() *CloseError {
	return c.closeReason
}

// Latency returns the last latency estimate, in nanoseconds, recorded
// by a PingLatencyControl handler: half of the measured ping round
// trip. It returns -1 and false if unavailable (any other ping
// mode, or no pong has been received yet, or the connection timed
// out).
func (c *Connection) Latency() (d int64, ok bool) {
	v := atomic.LoadInt64(&c.latencyNanos)
	if v == math.MaxInt64 {
		return -1, false
	}
	return v, true
}

func (c *Connection) setLatencyInfinite() {
	atomic.StoreInt64(&c.latencyNanos, math.MaxInt64)
}

func (c *Connection) setLatency(d int64) {
	atomic.StoreInt64(&c.latencyNanos, d)
}

// CanReceive reports whether Receive is currently permitted.
func (c *Connection) CanReceive() bool {
	return c.state.load().CanReceive()
}

// CanSend reports whether an application data send is currently
// permitted.
func (c *Connection) CanSend() bool {
	return c.state.load().CanSend()
}

// IsClosed reports whether the connection has completed the close
// handshake (or been disposed).
func (c *Connection) IsClosed() bool {
	s := c.state.load()
	return s == StateClosed || s == StateDisposed
}

// State returns the connection's current position in the closing
// handshake.
func (c *Connection) State() CloseState {
	return c.state.load()
}

// Dispose releases both pooled buffers and closes the transport. It is
// idempotent and safe to call multiple times or after an error.
func (c *Connection) Dispose() (err error) {
	defer errd.Wrap(&err, "failed to dispose")

	if c.state.dispose() {
		return nil
	}
	close(c.closedCh)
	c.setLatencyInfinite()
	err = c.transport.Close()
	c.scratch.release(c.pool)
	c.send.release(c.pool)
	return err
}

func (c *Connection) acquireReading() bool {
	return atomic.CompareAndSwapInt32(&c.reading, 0, 1)
}

func (c *Connection) releaseReading() {
	atomic.StoreInt32(&c.reading, 0)
}

func (c *Connection) beginWriteGuard() bool {
	return atomic.CompareAndSwapInt32(&c.writing, 0, 1)
}

func (c *Connection) endWriteGuard() {
	atomic.StoreInt32(&c.writing, 0)
}

// BeginWrite marks the start of a caller-driven multi-frame write
// span, guaranteeing exclusivity against any other BeginWrite/EndWrite
// span. It does not itself touch the wire or the write permit - it
// exists so a caller streaming a large message across several
// SendFrame calls (continuation frames) cannot be interleaved with
// another goroutine's message on the same Connection.
func (c *Connection) BeginWrite() error {
	if !c.beginWriteGuard() {
		return &wserr.StateError{Reason: "concurrent write attempt"}
	}
	return nil
}

// EndWrite closes the write span opened by BeginWrite. Calling it
// without a preceding successful BeginWrite is a programming error and
// panics; the contract never fires in correct callers.
func (c *Connection) EndWrite() {
	if !atomic.CompareAndSwapInt32(&c.writing, 1, 0) {
		panic("wsengine: EndWrite without matching BeginWrite")
	}
}

// wrapTransportErr wraps a raw transport error as a *wserr.TransportError
// unless it's already a cancellation or an already-classified error -
// classified errors are never double-wrapped.
func (c *Connection) wrapTransportErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if wserr.IsCancelled(err) {
		return err
	}
	var te *wserr.TransportError
	if errors.As(err, &te) {
		return err
	}
	var pe *wserr.ProtocolError
	if errors.As(err, &pe) {
		return err
	}
	return &wserr.TransportError{Op: op, Err: err}
}

func (c *Connection) logDebug(msg string, args ...interface{}) {
	c.log.Debug(msg, args...)
}

// Done returns a channel closed when Dispose runs, so a caller managing
// several connections in a select loop can notice one going away
// without polling State.
func (c *Connection) Done() <-chan struct{} {
	return c.closedCh
}

// initiateClose drives the local half of the closing handshake in
// response to an internal failure: it records reason as the close
// cause (unless one is already recorded), attempts the Open->CloseSent
// or CloseReceived->Closed transition, and best-effort writes a close
// frame carrying code. It does not wait for the write permit (the
// transport write itself may still block) and never returns an error -
// the write it issues swallows its own failures, since a connection
// already being torn down for one error has nothing new to report
// from a failed close frame.
func (c *Connection) initiateClose(ctx context.Context, code StatusCode, reason string) {
	if c.closeReason == nil {
		c.closeReason = &CloseError{Code: code, Reason: reason}
	}
	result, ok := c.state.localClose()
	if !ok {
		return
	}
	_, _ = c.sendControlFrame(ctx, OpClose, encodeCloseCode(code), -1, optNoLock|optNoErrors|optIgnoreClose)
	if result == StateClosed {
		_ = c.transport.Close()
	}
}
