package wsengine

// BufferPool is the abstract collaborator the engine gets its pooled
// byte slices from. See the bufpool subpackage for a production
// implementation backed by github.com/gobwas/pool, and the wstest
// subpackage for a deterministic fake used in tests.
type BufferPool interface {
	// Take returns a []byte of length size. Its contents are
	// unspecified; callers must not assume it is zeroed.
	Take(size int) []byte
	// Return releases buf back to the pool. buf must not be used
	// afterward.
	Return(buf []byte)
}

// outRegionSize is the size of a scratch region used to build an
// outbound control frame in place: a maxHeaderSize-byte prefix (so
// prepareFrame can emit a header directly before the payload) plus
// room for the largest control payload.
func outRegionSize(payloadCap int) int { return maxHeaderSize + payloadCap }

// scratchBufferSize is the total size of the pooled scratch buffer
// carved by newScratchLayout: a header-parse buffer, an outbound and
// inbound ping region, an outbound and inbound pong region, and an
// outbound and inbound close region. Each close region gets the 2
// full bytes a close status code needs, in both directions.
var scratchBufferSize = maxHeaderSize + // header-scratch
	outRegionSize(maxControlPayload) + maxControlPayload + // ping: out, in
	outRegionSize(maxControlPayload) + maxControlPayload + // pong: out, in
	outRegionSize(2) + 2 // close: out, in

// scratchLayout is the set of disjoint slices carved out of one pooled
// buffer, one per named sub-range. All slices alias the
// same backing array; there is exactly one allocation (via the
// injected BufferPool) per connection.
type scratchLayout struct {
	raw []byte

	headerScratch []byte // recv-side: header bytes as they're read
	outPing       []byte // header prefix + payload for an outbound ping
	inPing        []byte // unmasked payload of an inbound ping
	outPong       []byte // header prefix + payload for an outbound pong
	inPong        []byte // unmasked payload of an inbound pong
	outClose      []byte // header prefix + 2-byte outbound close code
	inClose       []byte // 2-byte inbound close code
}

func newScratchLayout(pool BufferPool) scratchLayout {
	raw := pool.Take(scratchBufferSize)
	l := scratchLayout{raw: raw}

	off := 0
	take := func(n int) []byte {
		s := raw[off : off+n]
		off += n
		return s
	}

	l.headerScratch = take(maxHeaderSize)
	l.outPing = take(outRegionSize(maxControlPayload))
	l.inPing = take(maxControlPayload)
	l.outPong = take(outRegionSize(maxControlPayload))
	l.inPong = take(maxControlPayload)
	l.outClose = take(outRegionSize(2))
	l.inClose = take(2)

	return l
}

func (l *scratchLayout) release(pool BufferPool) {
	if l.raw != nil {
		pool.Return(l.raw)
		l.raw = nil
	}
}

// sendLayout is the larger, separately-pooled send buffer used for
// application data frames. Its first maxHeaderSize bytes are always
// reserved so prepareFrame can emit a header directly before the
// payload without copying the payload.
type sendLayout struct {
	raw []byte
}

func newSendLayout(pool BufferPool, size int) sendLayout {
	if size < maxHeaderSize+1 {
		size = maxHeaderSize + 1
	}
	return sendLayout{raw: pool.Take(size)}
}

// body returns the portion of the send buffer available to hold a
// payload of up to n bytes, immediately following the reserved header
// prefix. Callers fill this in before calling prepareFrame.
func (l *sendLayout) body(n int) []byte {
	return l.raw[maxHeaderSize : maxHeaderSize+n]
}

func (l *sendLayout) release(pool BufferPool) {
	if l.raw != nil {
		pool.Return(l.raw)
		l.raw = nil
	}
}

// outRegionBody returns the payload-sized portion of an out-region
// carved by newScratchLayout (outPing/outPong/outClose), the part
// callers fill with plaintext payload before prepareFrame runs.
func outRegionBody(region []byte, n int) []byte {
	return region[maxHeaderSize : maxHeaderSize+n]
}
