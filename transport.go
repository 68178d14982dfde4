package wsengine

import "context"

// Transport is the abstract full-duplex byte stream this engine
// multiplexes framed messages over. It is the only place the engine
// blocks on I/O. Implementations are not required to be safe for
// concurrent Read and Write, but must tolerate one of each proceeding
// concurrently (the engine never issues two of the same kind at once
// thanks to its reading/writing guards).
//
// See the nettransport subpackage for a net.Conn-backed implementation
// and the wstest subpackage for an in-memory loopback pair.
type Transport interface {
	// Read reads into dst, blocking until at least one byte is
	// available, ctx is done, or the peer half-closes. io.Reader's
	// io.EOF-as-error convention is deliberately NOT used here: a
	// half-close is reported as n==0 with a nil error.
	Read(ctx context.Context, dst []byte) (n int, err error)

	// Write writes all of src to the underlying stream, or returns an
	// error. Partial writes are not exposed to callers.
	Write(ctx context.Context, src []byte) error

	// Flush pushes any writes buffered by the transport to the wire.
	Flush(ctx context.Context) error

	// Close closes the transport. It is idempotent.
	Close() error
}
