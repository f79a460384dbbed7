package executor

import (
	"context"
	"sync"
	"time"
)

// accountLocks hands out one exclusive slot per account id. Serialization is
// strictly per-account; orders for different accounts never contend.
type accountLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newAccountLocks() *accountLocks {
	return &accountLocks{slots: make(map[string]chan struct{})}
}

func (l *accountLocks) slot(id string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[id]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[id] = ch
	}
	return ch
}

// acquire blocks until the account slot is free, the timeout fires, or ctx is
// cancelled. On success the returned func releases the slot.
func (l *accountLocks) acquire(ctx context.Context, id string, timeout time.Duration) (func(), error) {
	ch := l.slot(id)
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-timer.C:
		return nil, ErrLockTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
