// Package locking provides the in-process workspace locker.
package locking

import (
	"context"
	"sync"

	"stackture/application/ports"
	"stackture/domain/core/valueobjects"
)

// LocalLocker serializes operations per workspace inside one process.
// Slots are reference counted and dropped once nobody holds or waits on them.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[valueobjects.WorkspaceID]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker creates an empty locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[valueobjects.WorkspaceID]*slot)}
}

// Acquire blocks until the workspace is free or ctx is done
func (l *LocalLocker) Acquire(ctx context.Context, workspaceID valueobjects.WorkspaceID) (ports.Lease, error) {
	l.mu.Lock()
	s, ok := l.slots[workspaceID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[workspaceID] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return &localLease{locker: l, workspaceID: workspaceID, slot: s}, nil
	case <-ctx.Done():
		l.unref(workspaceID, s)
		return nil, ctx.Err()
	}
}

// Held returns the number of workspaces with a holder or waiter
func (l *LocalLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

func (l *LocalLocker) unref(workspaceID valueobjects.WorkspaceID, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, workspaceID)
	}
}

type localLease struct {
	locker      *LocalLocker
	workspaceID valueobjects.WorkspaceID
	slot        *slot
	once        sync.Once
}

func (le *localLease) Release(context.Context) error {
	le.once.Do(func() {
		<-le.slot.ch
		le.locker.unref(le.workspaceID, le.slot)
	})
	return nil
}
