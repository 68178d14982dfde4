// Package wserr classifies the error kinds a WebSocket connection can
// produce: protocol violations, transport I/O failures, invalid
// concurrent/lifecycle usage, and cooperative cancellation. Each kind
// wraps an underlying cause and is queryable with errors.As.
package wserr

import (
	"context"
	"errors"
	"fmt"
)

// ProtocolError indicates the peer violated RFC 6455 framing: a
// malformed header, a disallowed opcode, a length invariant violation,
// or a data opcode encountered mid control-frame handling.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// TransportError indicates the underlying byte transport failed, or
// closed unexpectedly mid-frame.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StateError indicates a caller violated the engine's usage contract:
// a concurrent read or write, a receive after close, or access to a
// property that is not valid in the current state.
type StateError struct {
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("invalid connection state: %s", e.Reason)
}

// IsCancelled reports whether err represents cooperative cancellation,
// i.e. it wraps context.Canceled or context.DeadlineExceeded.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// AsProtocolError reports whether err (or something it wraps) is a
// *ProtocolError, and returns it.
func AsProtocolError(err error) (*ProtocolError, bool) {
	var pe *ProtocolError
	ok := errors.As(err, &pe)
	return pe, ok
}
