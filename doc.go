// Package wsengine implements the full-duplex core of an RFC 6455
// WebSocket connection: frame parsing and serialization, the closing
// handshake, and pluggable liveness strategies, layered over an
// abstract byte transport.
//
// The package does not perform the HTTP Upgrade handshake or open any
// socket itself; callers hand it an already-established Transport (see
// the nettransport subpackage for a net.Conn-backed one) and drive the
// receive loop by calling AwaitHeader in a loop.
package wsengine
