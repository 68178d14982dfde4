package wsengine

import (
	"io"
	"log/slog"
	"time"
)

// PingMode selects which liveness strategy a Connection uses.
type PingMode int

const (
	// PingManual means the caller supplies ping payloads explicitly via
	// Connection.Ping and drives sends off its own timer.
	PingManual PingMode = iota
	// PingLatencyControl measures round-trip latency with timestamped
	// pings and disposes the connection if the peer goes silent past
	// PingTimeout.
	PingLatencyControl
	// PingBandwidthSaving behaves like PingManual but favors longer,
	// externally-driven intervals and never forces a send when the peer
	// has been recently active.
	PingBandwidthSaving
)

func (m PingMode) String() string {
	switch m {
	case PingManual:
		return "manual"
	case PingLatencyControl:
		return "latency-control"
	case PingBandwidthSaving:
		return "bandwidth-saving"
	default:
		return "unknown"
	}
}

// Options configures a Connection. The zero value is valid: it
// defaults to manual pings, a 4096-byte send buffer, and a discarding
// logger.
type Options struct {
	PingMode PingMode

	// PingInterval is the quiet period after which a LatencyControl or
	// BandwidthSaving ping() call will actually write a ping frame
	// instead of skipping (BandwidthSaving) or trying without blocking
	// (LatencyControl).
	PingInterval time.Duration

	// PingTimeout is how long a handler tolerates silence from the peer
	// before treating the connection as dead. Negative means infinite
	// (never times out).
	PingTimeout time.Duration

	// SendBufferSize is the size of the pooled send buffer, including
	// the reserved header prefix. Defaults to 4096.
	SendBufferSize int

	// MaskOutbound is true for client-role connections (outbound frames
	// are masked) and false for server-role connections.
	MaskOutbound bool

	// Logger receives debug records for write errors swallowed by
	// best-effort sends (close frames and pong replies). A nil Logger
	// discards everything.
	Logger *slog.Logger
}

const defaultSendBufferSize = 4096

func (o Options) withDefaults() Options {
	if o.SendBufferSize <= 0 {
		o.SendBufferSize = defaultSendBufferSize
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.PingTimeout == 0 {
		o.PingTimeout = -1
	}
	return o
}
