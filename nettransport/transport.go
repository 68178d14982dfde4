// Package nettransport adapts a net.Conn into a wsengine.Transport,
// translating context deadlines into SetReadDeadline/SetWriteDeadline
// calls rather than spinning up a goroutine per call.
package nettransport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/ionwire/wsengine/internal/errd"
)

// Transport wraps a net.Conn as a wsengine.Transport. Reads and writes
// are buffered independently so small control frames don't each cost a
// separate syscall.
type Transport struct {
	conn net.Conn
	br   *bufio.Reader
	bw   *bufio.Writer
}

// New wraps conn. bufSize sizes both the read and write buffers; 0
// selects bufio's default.
func New(conn net.Conn, bufSize int) *Transport {
	if bufSize <= 0 {
		return &Transport{conn: conn, br: bufio.NewReader(conn), bw: bufio.NewWriter(conn)}
	}
	return &Transport{conn: conn, br: bufio.NewReaderSize(conn, bufSize), bw: bufio.NewWriterSize(conn, bufSize)}
}

// Read satisfies wsengine.Transport, applying ctx's deadline (if any)
// to the underlying connection before reading.
func (t *Transport) Read(ctx context.Context, dst []byte) (n int, err error) {
	defer errd.Wrap(&err, "nettransport: read failed")
	if err := t.applyDeadline(ctx, t.conn.SetReadDeadline); err != nil {
		return 0, err
	}
	n, err = t.br.Read(dst)
	if n > 0 {
		return n, nil
	}
	if err != nil && isHalfClose(err) {
		return 0, nil
	}
	return n, err
}

// Write satisfies wsengine.Transport, buffering src and applying ctx's
// deadline before writing.
func (t *Transport) Write(ctx context.Context, src []byte) (err error) {
	defer errd.Wrap(&err, "nettransport: write failed")
	if err := t.applyDeadline(ctx, t.conn.SetWriteDeadline); err != nil {
		return err
	}
	_, err = t.bw.Write(src)
	return err
}

// Flush pushes buffered writes to the wire.
func (t *Transport) Flush(ctx context.Context) (err error) {
	defer errd.Wrap(&err, "nettransport: flush failed")
	if err := t.applyDeadline(ctx, t.conn.SetWriteDeadline); err != nil {
		return err
	}
	return t.bw.Flush()
}

// Close closes the underlying connection.
func (t *Transport) Close() error {
	return t.conn.Close()
}

func (t *Transport) applyDeadline(ctx context.Context, set func(time.Time) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return set(time.Time{})
	}
	return set(deadline)
}

// isHalfClose reports whether err represents a graceful peer half-close
// that wsengine.Transport's contract wants reported as (0, nil) rather
// than as an error, so it surfaces through readFull's own
// io.ErrUnexpectedEOF classification instead of net's io.EOF.
func isHalfClose(err error) bool {
	return errors.Is(err, io.EOF)
}
