package wsengine

import (
	"context"

	"github.com/ionwire/wsengine/internal/errd"
)

// PingHandler is the small capability shared by the three liveness
// strategies. The Connection calls NotifyActivity on every
// inbound header, NotifyPong when a pong frame arrives, and Ping on an
// external tick supplied by a scheduler (see the pingsched
// subpackage) - the scheduler itself is outside this engine's scope.
type PingHandler interface {
	// Ping is invoked on an external timer tick. Implementations decide
	// whether that tick should actually write a ping frame, and may
	// dispose or close the connection if the peer appears dead.
	Ping(ctx context.Context) error
	// NotifyActivity is called whenever an inbound frame header has been
	// read and parsed successfully.
	NotifyActivity()
	// NotifyPong is called with the unmasked payload of an inbound pong
	// frame.
	NotifyPong(payload []byte)
}

func newPingHandler(c *Connection, opts Options) PingHandler {
	switch opts.PingMode {
	case PingLatencyControl:
		return newLatencyControlHandler(c, opts)
	case PingBandwidthSaving:
		return newBandwidthSavingHandler(c, opts)
	default:
		return newManualHandler(c, opts)
	}
}

// Ping stages data as the next outbound ping payload when running in
// PingManual mode, then delegates to the handler's Ping. It is a no-op
// if the connection cannot currently send. Payloads longer than 125
// bytes are truncated per the RFC 6455 control-frame payload cap;
// PingManual mode truncates one byte shorter still, since
// manualHandler prefixes the staged payload with its own length byte.
// In PingLatencyControl and PingBandwidthSaving mode data is ignored -
// both modes choose their own outbound payload.
func (c *Connection) Ping(ctx context.Context, data []byte) (err error) {
	defer errd.Wrap(&err, "failed to ping")

	if !c.CanSend() {
		return nil
	}
	if len(data) > maxControlPayload {
		data = data[:maxControlPayload]
	}
	if s, ok := c.pingHandler.(payloadStager); ok {
		s.stagePayload(data)
	}
	return c.pingHandler.Ping(ctx)
}

// payloadStager is implemented by handlers that accept a
// caller-supplied ping payload (Manual only), as opposed to
// LatencyControl and BandwidthSaving, which choose their own payload.
type payloadStager interface {
	stagePayload(data []byte)
}
