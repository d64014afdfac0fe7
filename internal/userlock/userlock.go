// Package userlock serializes transmission lifecycle operations per user.
// The lock closes the read-then-write race on the "one active transmission
// per user" invariant: the precondition check and the activation write happen
// under the same lease.
package userlock

import (
	"context"
	"sync"
)

// Locker grants an exclusive per-user lease. Acquire blocks until the lease
// is free or the context is done; the returned release function must be
// called exactly once.
type Locker interface {
	Acquire(ctx context.Context, userID string) (release func(), err error)
}

type userSlot struct {
	ch   chan struct{}
	refs int
}

// MemoryLocker is an in-process Locker for single-instance deployments.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[string]*userSlot
}

// NewMemoryLocker constructs an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: make(map[string]*userSlot)}
}

// Acquire takes the user's slot, waiting for any holder to release it first.
func (l *MemoryLocker) Acquire(ctx context.Context, userID string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[userID]
	if !ok {
		slot = &userSlot{ch: make(chan struct{}, 1)}
		l.slots[userID] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
	case <-ctx.Done():
		l.put(userID, slot)
		return nil, ctx.Err()
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			<-slot.ch
			l.put(userID, slot)
		})
	}
	return release, nil
}

func (l *MemoryLocker) put(userID string, slot *userSlot) {
	l.mu.Lock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, userID)
	}
	l.mu.Unlock()
}
