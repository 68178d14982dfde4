package wsengine

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"
)

// manualHandler sends only payloads the caller explicitly stages
// through Connection.Ping. It tracks time since the last accepted pong
// and closes gracefully if the peer stops answering.
type manualHandler struct {
	c           *Connection
	pingTimeout time.Duration

	mu     sync.Mutex
	staged []byte // length-prefixed: staged[0] holds the payload length

	lastPong int64 // UnixNano, atomic
}

func newManualHandler(c *Connection, opts Options) *manualHandler {
	return &manualHandler{
		c:           c,
		pingTimeout: opts.PingTimeout,
		lastPong:    time.Now().UnixNano(),
	}
}

// stagePayload records data as the next ping's payload, prefixed with
// its own length so NotifyPong can recognize a genuine echo. The
// prefix byte itself counts against the RFC 6455 control-frame payload
// cap, so data is capped one byte short of maxControlPayload here.
func (h *manualHandler) stagePayload(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(data) > maxControlPayload-1 {
		data = data[:maxControlPayload-1]
	}
	buf := make([]byte, 1+len(data))
	buf[0] = byte(len(data))
	copy(buf[1:], data)
	h.staged = buf
}

func (h *manualHandler) Ping(ctx context.Context) error {
	if h.pingTimeout >= 0 {
		since := time.Since(time.Unix(0, atomic.LoadInt64(&h.lastPong)))
		if since > h.pingTimeout {
			h.c.initiateClose(ctx, StatusGoingAway, "Going Away")
			return nil
		}
	}

	h.mu.Lock()
	payload := h.staged
	h.mu.Unlock()

	_, err := h.c.sendControlFrame(ctx, OpPing, payload, -1, 0)
	return err
}

func (h *manualHandler) NotifyActivity() {}

// NotifyPong accepts the pong only if its payload matches what this
// handler last staged, guarding against a stale echo of an earlier ping.
func (h *manualHandler) NotifyPong(payload []byte) {
	h.mu.Lock()
	staged := h.staged
	h.mu.Unlock()
	if !bytes.Equal(payload, staged) {
		return
	}
	atomic.StoreInt64(&h.lastPong, time.Now().UnixNano())
}

// latencyControlHandler pings on a fixed interval carrying its own
// timestamp payload, disposing the connection if the peer has been
// silent past pingTimeout, and records half the measured round trip as
// the latency estimate.
type latencyControlHandler struct {
	c            *Connection
	pingInterval time.Duration
	pingTimeout  time.Duration

	lastActivity int64 // UnixNano, atomic
}

func newLatencyControlHandler(c *Connection, opts Options) *latencyControlHandler {
	return &latencyControlHandler{
		c:            c,
		pingInterval: opts.PingInterval,
		pingTimeout:  opts.PingTimeout,
		lastActivity: time.Now().UnixNano(),
	}
}

func (h *latencyControlHandler) NotifyActivity() {
	atomic.StoreInt64(&h.lastActivity, time.Now().UnixNano())
}

func (h *latencyControlHandler) Ping(ctx context.Context) error {
	idle := time.Since(time.Unix(0, atomic.LoadInt64(&h.lastActivity)))
	if h.pingTimeout >= 0 && idle > h.pingTimeout {
		h.c.setLatencyInfinite()
		return h.c.Dispose()
	}

	var payload [8]byte
	binary.LittleEndian.PutUint64(payload[:], uint64(time.Now().UnixNano()))

	lockTimeout := time.Duration(-1)
	if h.pingInterval >= 0 && idle < h.pingInterval {
		lockTimeout = 0
	}

	_, err := h.c.sendControlFrame(ctx, OpPing, payload[:], lockTimeout, 0)
	return err
}

// NotifyPong records half the round trip between sending and this pong
// as the current latency estimate.
func (h *latencyControlHandler) NotifyPong(payload []byte) {
	if len(payload) != 8 {
		return
	}
	sent := int64(binary.LittleEndian.Uint64(payload))
	rtt := time.Now().UnixNano() - sent
	if rtt < 0 {
		return
	}
	h.c.setLatency(rtt / 2)
}

// bandwidthSavingHandler skips pinging entirely while other traffic
// already proves the connection is alive, and otherwise sends an empty
// probe. Like manualHandler it tracks time since the last pong and
// closes gracefully if the peer goes quiet.
type bandwidthSavingHandler struct {
	c            *Connection
	pingInterval time.Duration
	pingTimeout  time.Duration

	lastActivity int64 // UnixNano, atomic
	lastPong     int64 // UnixNano, atomic
}

func newBandwidthSavingHandler(c *Connection, opts Options) *bandwidthSavingHandler {
	now := time.Now().UnixNano()
	return &bandwidthSavingHandler{
		c:            c,
		pingInterval: opts.PingInterval,
		pingTimeout:  opts.PingTimeout,
		lastActivity: now,
		lastPong:     now,
	}
}

func (h *bandwidthSavingHandler) NotifyActivity() {
	atomic.StoreInt64(&h.lastActivity, time.Now().UnixNano())
}

func (h *bandwidthSavingHandler) Ping(ctx context.Context) error {
	if h.pingTimeout >= 0 {
		since := time.Since(time.Unix(0, atomic.LoadInt64(&h.lastPong)))
		if since > h.pingTimeout {
			h.c.initiateClose(ctx, StatusGoingAway, "Going Away")
			return nil
		}
	}

	idle := time.Since(time.Unix(0, atomic.LoadInt64(&h.lastActivity)))
	if h.pingInterval >= 0 && idle < h.pingInterval {
		return nil
	}

	_, err := h.c.sendControlFrame(ctx, OpPing, nil, -1, 0)
	return err
}

func (h *bandwidthSavingHandler) NotifyPong(_ []byte) {
	atomic.StoreInt64(&h.lastPong, time.Now().UnixNano())
}
