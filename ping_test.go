package wsengine

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ionwire/wsengine/nettransport"
	"github.com/ionwire/wsengine/wstest"
)

// newDrainedConnection wires a Connection to one end of a net.Pipe
// whose other end is continuously drained, so outbound control frames
// never block on a peer that isn't there to read them.
func newDrainedConnection(t *testing.T, opts Options) *Connection {
	t.Helper()
	c1, c2 := net.Pipe()
	go io.Copy(io.Discard, c2)

	c := New(nettransport.New(c1, 0), wstest.Pool{}, opts)
	t.Cleanup(func() {
		c.Dispose()
		c2.Close()
	})
	return c
}

func TestManualHandlerStagesLengthPrefixedPayload(t *testing.T) {
	t.Parallel()

	c := newDrainedConnection(t, Options{PingMode: PingManual, PingTimeout: -1})
	h := c.pingHandler.(*manualHandler)

	if err := c.Ping(context.Background(), []byte("ping-data")); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	h.mu.Lock()
	staged := append([]byte(nil), h.staged...)
	h.mu.Unlock()

	if len(staged) != 1+len("ping-data") || staged[0] != byte(len("ping-data")) {
		t.Fatalf("unexpected staged payload: %v", staged)
	}
}

func TestManualHandlerStagePayloadFitsOutPingRegion(t *testing.T) {
	t.Parallel()

	c := newDrainedConnection(t, Options{PingMode: PingManual, PingTimeout: -1})
	h := c.pingHandler.(*manualHandler)

	oversized := make([]byte, maxControlPayload)
	if err := c.Ping(context.Background(), oversized); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	h.mu.Lock()
	staged := len(h.staged)
	h.mu.Unlock()

	if staged != maxControlPayload {
		t.Fatalf("staged payload is %d bytes, want %d (1-byte prefix + %d bytes of data)", staged, maxControlPayload, maxControlPayload-1)
	}
	if staged > len(c.scratch.outPing)-maxHeaderSize {
		t.Fatalf("staged payload of %d bytes overflows outPing's %d-byte body", staged, len(c.scratch.outPing)-maxHeaderSize)
	}
}

func TestManualHandlerNotifyPongRequiresMatchingEcho(t *testing.T) {
	t.Parallel()

	c := newDrainedConnection(t, Options{PingMode: PingManual, PingTimeout: -1})
	h := c.pingHandler.(*manualHandler)

	if err := c.Ping(context.Background(), []byte("abc")); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	h.mu.Lock()
	staged := append([]byte(nil), h.staged...)
	h.mu.Unlock()

	before := atomic.LoadInt64(&h.lastPong)

	h.NotifyPong([]byte{0xff, 0xff})
	if atomic.LoadInt64(&h.lastPong) != before {
		t.Fatalf("a mismatched pong payload must not update lastPong")
	}

	h.NotifyPong(staged)
	if atomic.LoadInt64(&h.lastPong) == before {
		t.Fatalf("a matching pong payload must update lastPong")
	}
}

func TestManualHandlerGoesAwayOnStalePeer(t *testing.T) {
	t.Parallel()

	c := newDrainedConnection(t, Options{PingMode: PingManual, PingTimeout: time.Millisecond})
	h := c.pingHandler.(*manualHandler)
	atomic.StoreInt64(&h.lastPong, time.Now().Add(-time.Hour).UnixNano())

	if err := h.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if s := c.State(); s != StateCloseSent && s != StateClosed {
		t.Fatalf("expected Ping to initiate closing on a stale peer, got state %v", s)
	}
}

func TestLatencyControlHandlerRecordsHalfRTT(t *testing.T) {
	t.Parallel()

	c := newDrainedConnection(t, Options{PingMode: PingLatencyControl, PingInterval: time.Hour, PingTimeout: time.Hour})
	h := c.pingHandler.(*latencyControlHandler)

	const rtt = 20 * time.Millisecond
	sent := time.Now().Add(-rtt)
	var payload [8]byte
	binary.LittleEndian.PutUint64(payload[:], uint64(sent.UnixNano()))

	h.NotifyPong(payload[:])

	lat, ok := c.Latency()
	if !ok {
		t.Fatalf("expected a latency reading after NotifyPong")
	}
	if lat <= 0 || lat >= int64(rtt) {
		t.Fatalf("expected latency near half of %v, got %v", rtt, time.Duration(lat))
	}
}

func TestLatencyControlHandlerIgnoresShortPayload(t *testing.T) {
	t.Parallel()

	c := newDrainedConnection(t, Options{PingMode: PingLatencyControl, PingInterval: time.Hour, PingTimeout: time.Hour})
	h := c.pingHandler.(*latencyControlHandler)

	h.NotifyPong([]byte{1, 2, 3})
	if _, ok := c.Latency(); ok {
		t.Fatalf("a short pong payload should not produce a latency reading")
	}
}

func TestLatencyControlHandlerDisposesOnStalePeer(t *testing.T) {
	t.Parallel()

	c := newDrainedConnection(t, Options{PingMode: PingLatencyControl, PingInterval: time.Hour, PingTimeout: time.Millisecond})
	h := c.pingHandler.(*latencyControlHandler)
	atomic.StoreInt64(&h.lastActivity, time.Now().Add(-time.Hour).UnixNano())

	if err := h.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if !c.IsClosed() {
		t.Fatalf("expected the connection disposed after a stale peer")
	}
	if _, ok := c.Latency(); ok {
		t.Fatalf("expected latency unavailable after dispose")
	}
}

func TestBandwidthSavingHandlerSkipsWhenRecentlyActive(t *testing.T) {
	t.Parallel()

	c := newDrainedConnection(t, Options{PingMode: PingBandwidthSaving, PingInterval: time.Hour, PingTimeout: -1})
	h := c.pingHandler.(*bandwidthSavingHandler)
	h.NotifyActivity()

	if err := h.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestBandwidthSavingHandlerGoesAwayOnStalePeer(t *testing.T) {
	t.Parallel()

	c := newDrainedConnection(t, Options{PingMode: PingBandwidthSaving, PingInterval: time.Hour, PingTimeout: time.Millisecond})
	h := c.pingHandler.(*bandwidthSavingHandler)
	atomic.StoreInt64(&h.lastPong, time.Now().Add(-time.Hour).UnixNano())

	if err := h.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if s := c.State(); s != StateCloseSent && s != StateClosed {
		t.Fatalf("expected Ping to initiate closing on a stale peer, got state %v", s)
	}
}
