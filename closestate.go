package wsengine

import "sync/atomic"

// CloseState is the connection's position in the closing handshake,
// stored as a single atomically-transitioned integer. It is monotonic:
// once it reaches Closed it never regresses, and once Disposed no
// further operation succeeds.
type CloseState int32

const (
	// StateOpen is the initial state: both directions are live.
	StateOpen CloseState = iota
	// StateCloseSent means this side initiated the close handshake and
	// is waiting for the peer's close frame.
	StateCloseSent
	// StateCloseReceived means the peer initiated the close handshake
	// and this side has not yet answered.
	StateCloseReceived
	// StateClosed means both close frames have been exchanged; the
	// transport has been closed.
	StateClosed
	// StateDisposed means Dispose has run: buffers are returned and the
	// connection object must not be used again.
	StateDisposed
)

func (s CloseState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateCloseSent:
		return "close-sent"
	case StateCloseReceived:
		return "close-received"
	case StateClosed:
		return "closed"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// CanReceive reports whether a Receive call is permitted in state s.
func (s CloseState) CanReceive() bool {
	return s == StateOpen || s == StateCloseSent
}

// CanSend reports whether an application data send is permitted in
// state s.
func (s CloseState) CanSend() bool {
	return s == StateOpen || s == StateCloseReceived
}

// closeStateBox is the atomic holder for a CloseState, exposing the
// CAS transitions that drive the closing handshake.
type closeStateBox struct {
	v int32
}

func (b *closeStateBox) load() CloseState {
	return CloseState(atomic.LoadInt32(&b.v))
}

func (b *closeStateBox) cas(from, to CloseState) bool {
	return atomic.CompareAndSwapInt32(&b.v, int32(from), int32(to))
}

// localClose attempts the local-close transition: Open->CloseSent or
// CloseReceived->Closed. It reports the resulting state and whether a
// transition happened at all.
func (b *closeStateBox) localClose() (result CloseState, transitioned bool) {
	if b.cas(StateOpen, StateCloseSent) {
		return StateCloseSent, true
	}
	if b.cas(StateCloseReceived, StateClosed) {
		return StateClosed, true
	}
	return b.load(), false
}

// remoteClose attempts the remote-close transition: Open->CloseReceived
// or CloseSent->Closed.
func (b *closeStateBox) remoteClose() (result CloseState, transitioned bool) {
	if b.cas(StateOpen, StateCloseReceived) {
		return StateCloseReceived, true
	}
	if b.cas(StateCloseSent, StateClosed) {
		return StateClosed, true
	}
	return b.load(), false
}

// dispose transitions unconditionally to Disposed exactly once.
func (b *closeStateBox) dispose() (already bool) {
	for {
		cur := b.load()
		if cur == StateDisposed {
			return true
		}
		if b.cas(cur, StateDisposed) {
			return false
		}
	}
}
