// Command wsecho is a minimal echo server and client wired against the
// engine over raw TCP, for exercising nettransport, bufpool and
// pingsched together outside of the test suite. It skips the
// HTTP-Upgrade handshake entirely - both sides start exchanging
// WebSocket frames the moment the TCP connection is open.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/ionwire/wsengine"
	"github.com/ionwire/wsengine/bufpool"
	"github.com/ionwire/wsengine/nettransport"
	"github.com/ionwire/wsengine/pingsched"
)

func main() {
	listen := flag.String("listen", "", "run an echo server on this address")
	dial := flag.String("dial", "", "connect to an echo server at this address and send stdin lines")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var err error
	switch {
	case *listen != "":
		err = runServer(log, *listen)
	case *dial != "":
		err = runClient(log, *dial)
	default:
		err = errors.New("either -listen or -dial is required")
	}
	if err != nil {
		log.Error("wsecho exited", "err", err)
		os.Exit(1)
	}
}

var pool = bufpool.New(64, 64<<10)

func runServer(log *slog.Logger, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer ln.Close()
	log.Info("listening", "addr", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("accept: %w", err)
		}
		go serveConn(log, conn)
	}
}

func serveConn(log *slog.Logger, conn net.Conn) {
	ctx := context.Background()
	c := wsengine.New(nettransport.New(conn, 0), pool, wsengine.Options{
		PingMode:       wsengine.PingLatencyControl,
		PingInterval:   10 * time.Second,
		PingTimeout:    30 * time.Second,
		MaskOutbound:   false,
		SendBufferSize: echoScratchSize + 32,
		Logger:         log,
	})
	defer c.Dispose()

	sched := pingsched.New(15*time.Second, 1)
	go func() {
		if err := sched.Run(ctx, c); err != nil && !errors.Is(err, context.Canceled) {
			log.Debug("ping scheduler stopped", "err", err)
		}
	}()

	if err := echoLoop(ctx, c); err != nil && !isCleanClose(err) {
		log.Error("echo loop failed", "remote", conn.RemoteAddr(), "err", err)
	}
}

// echoScratchSize is the largest message echoLoop and the client reader
// will reassemble in one shot; SendBufferSize is set a header's worth
// larger than this so echoing a message of exactly this size back out
// never exceeds SendFrame's send-buffer capacity check.
const echoScratchSize = 32 << 10

func echoLoop(ctx context.Context, c *wsengine.Connection) error {
	buf := make([]byte, echoScratchSize)
	for {
		header, err := c.AwaitHeader(ctx)
		if err != nil {
			return err
		}

		n, err := drainMessage(ctx, c, header, buf)
		if err != nil {
			return err
		}

		if err := c.BeginWrite(); err != nil {
			return err
		}
		err = c.SendFrame(ctx, header.Opcode, true, buf[:n])
		c.EndWrite()
		if err != nil {
			return err
		}
	}
}

// drainMessage reads every frame of the message headed by header into
// buf, following continuations via AwaitHeader until a Fin frame is
// fully delivered.
func drainMessage(ctx context.Context, c *wsengine.Connection, header *wsengine.FrameHeader, buf []byte) (int, error) {
	n := 0
	for {
		read, err := c.Receive(ctx, buf[n:])
		if err != nil {
			return 0, err
		}
		n += read
		if header.Remaining > 0 {
			if read == 0 {
				return 0, fmt.Errorf("message exceeds %d-byte buffer", len(buf))
			}
			continue
		}
		if header.Fin {
			return n, nil
		}
		header, err = c.AwaitHeader(ctx)
		if err != nil {
			return 0, err
		}
	}
}

func runClient(log *slog.Logger, addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	ctx := context.Background()
	c := wsengine.New(nettransport.New(conn, 0), pool, wsengine.Options{
		PingMode:       wsengine.PingManual,
		MaskOutbound:   true,
		SendBufferSize: echoScratchSize + 32,
		Logger:         log,
	})
	defer c.Dispose()
	defer c.Close(ctx, wsengine.StatusNormalClosure, "bye")

	go func() {
		buf := make([]byte, echoScratchSize)
		for {
			header, err := c.AwaitHeader(ctx)
			if err != nil {
				return
			}
			n, err := drainMessage(ctx, c, header, buf)
			if err != nil {
				return
			}
			fmt.Printf("echo: %s\n", buf[:n])
		}
	}()

	lines := bufio.NewScanner(os.Stdin)
	for lines.Scan() {
		if err := c.BeginWrite(); err != nil {
			return err
		}
		err := c.SendFrame(ctx, wsengine.OpText, true, lines.Bytes())
		c.EndWrite()
		if err != nil {
			return err
		}
	}
	return lines.Err()
}

func isCleanClose(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe)
}
