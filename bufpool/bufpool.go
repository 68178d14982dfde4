// Package bufpool provides a production wsengine.BufferPool backed by
// github.com/gobwas/pool's logarithmic size-class allocator, so
// repeated Take/Return cycles across many connections reuse a small
// number of size classes instead of allocating exactly-sized slices
// every time.
package bufpool

import "github.com/gobwas/pool"

// Pool reuses byte slices in power-of-two size classes between min and
// max bytes. Slices requested outside that range are allocated plainly
// and not pooled on Return.
type Pool struct {
	p *pool.Pool
}

// New constructs a Pool reusing slices whose size falls in [min, max].
// wsengine connections in practice ask for two sizes - the fixed
// scratch buffer and the configured send buffer - so a fairly narrow
// range is enough to get reuse without wasting memory on unused size
// classes.
func New(min, max int) *Pool {
	return &Pool{p: pool.New(min, max)}
}

// Take returns a slice with length exactly size, satisfying
// wsengine.BufferPool.
func (b *Pool) Take(size int) []byte {
	v, c := b.p.Get(size)
	if v != nil {
		return v.([]byte)[:size]
	}
	return make([]byte, size, c)
}

// Return releases buf back to its size class.
func (b *Pool) Return(buf []byte) {
	b.p.Put(buf, cap(buf))
}
