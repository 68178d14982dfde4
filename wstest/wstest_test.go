package wstest_test

import (
	"context"
	"testing"

	"github.com/ionwire/wsengine/wstest"
)

func TestPipeRoundTrip(t *testing.T) {
	t.Parallel()

	a, b := wstest.Pipe()
	defer a.Close()
	defer b.Close()

	msg := []byte("loopback")
	errCh := make(chan error, 1)
	go func() {
		if err := a.Write(context.Background(), msg); err != nil {
			errCh <- err
			return
		}
		errCh <- a.Flush(context.Background())
	}()

	got := make([]byte, len(msg))
	n := 0
	for n < len(got) {
		read, err := b.Read(context.Background(), got[n:])
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		n += read
	}
	if string(got) != string(msg) {
		t.Fatalf("got %q, want %q", got, msg)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Write/Flush: %v", err)
	}
}

func TestPoolTakeReturn(t *testing.T) {
	t.Parallel()

	var p wstest.Pool
	buf := p.Take(16)
	if len(buf) != 16 {
		t.Fatalf("Take(16) returned length %d", len(buf))
	}
	p.Return(buf)
}
