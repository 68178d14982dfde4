package wsengine

import "testing"

func TestCloseStateLocalThenRemote(t *testing.T) {
	t.Parallel()

	var b closeStateBox

	result, ok := b.localClose()
	if !ok || result != StateCloseSent {
		t.Fatalf("first localClose: got (%v, %v), want (CloseSent, true)", result, ok)
	}

	result, ok = b.remoteClose()
	if !ok || result != StateClosed {
		t.Fatalf("remoteClose after localClose: got (%v, %v), want (Closed, true)", result, ok)
	}

	if _, ok := b.localClose(); ok {
		t.Fatalf("localClose on an already-closed box should not transition")
	}
}

func TestCloseStateRemoteThenLocal(t *testing.T) {
	t.Parallel()

	var b closeStateBox

	result, ok := b.remoteClose()
	if !ok || result != StateCloseReceived {
		t.Fatalf("first remoteClose: got (%v, %v), want (CloseReceived, true)", result, ok)
	}
	if !b.load().CanSend() {
		t.Fatalf("CloseReceived should still permit sending")
	}

	result, ok = b.localClose()
	if !ok || result != StateClosed {
		t.Fatalf("localClose after remoteClose: got (%v, %v), want (Closed, true)", result, ok)
	}
}

func TestCloseStateDisposeIsIdempotent(t *testing.T) {
	t.Parallel()

	var b closeStateBox

	if already := b.dispose(); already {
		t.Fatalf("first dispose reported already-disposed")
	}
	if b.load() != StateDisposed {
		t.Fatalf("state after dispose: got %v, want Disposed", b.load())
	}
	if already := b.dispose(); !already {
		t.Fatalf("second dispose should report already-disposed")
	}

	if _, ok := b.localClose(); ok {
		t.Fatalf("localClose after dispose should not transition")
	}
}

func TestCloseStateCanSendCanReceive(t *testing.T) {
	t.Parallel()

	cases := []struct {
		s              CloseState
		canSend, canRecv bool
	}{
		{StateOpen, true, true},
		{StateCloseSent, false, true},
		{StateCloseReceived, true, false},
		{StateClosed, false, false},
		{StateDisposed, false, false},
	}
	for _, c := range cases {
		if got := c.s.CanSend(); got != c.canSend {
			t.Errorf("%v.CanSend() = %v, want %v", c.s, got, c.canSend)
		}
		if got := c.s.CanReceive(); got != c.canRecv {
			t.Errorf("%v.CanReceive() = %v, want %v", c.s, got, c.canRecv)
		}
	}
}
