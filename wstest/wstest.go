// Package wstest supplies deterministic, allocation-cheap collaborators
// for exercising wsengine without a real socket: an in-memory loopback
// Transport pair and a trivial fake BufferPool.
package wstest

import (
	"net"

	"github.com/ionwire/wsengine/nettransport"
)

// Pipe returns two connected wsengine.Transports, analogous to
// net.Pipe: writes on one side become available to read on the other.
// Both ends are synchronous, unbuffered network pipes wrapped in a
// buffering Transport adapter, so a write completes only once the
// paired read consumes it - tests that need a write to return before
// its peer reads must run the two sides on separate goroutines.
func Pipe() (a, b *nettransport.Transport) {
	c1, c2 := net.Pipe()
	return nettransport.New(c1, 0), nettransport.New(c2, 0)
}

// Pool is a trivial BufferPool stub: every Take allocates fresh and
// every Return is a no-op. Fine for tests that care about correctness,
// not allocation behavior.
type Pool struct{}

func (Pool) Take(size int) []byte { return make([]byte, size) }
func (Pool) Return(buf []byte)    {}
