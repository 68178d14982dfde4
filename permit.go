package wsengine

import "context"

// permit is a single-slot counting semaphore used as a cancellable
// mutex: a capacity-1 buffered channel where sending acquires and
// receiving releases. Unlike sync.Mutex it composes with context
// cancellation and supports a non-blocking TryLock.
type permit struct {
	ch chan struct{}
}

func newPermit() permit {
	return permit{ch: make(chan struct{}, 1)}
}

// Lock blocks until the permit is acquired or ctx is done.
func (p permit) Lock(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.ch <- struct{}{}:
		return nil
	}
}

// TryLock acquires the permit without blocking, reporting success.
func (p permit) TryLock() bool {
	select {
	case p.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Unlock releases the permit. Unlock without a matching successful
// Lock/TryLock blocks forever.
func (p permit) Unlock() {
	<-p.ch
}
