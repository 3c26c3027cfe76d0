////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package session

import (
	"context"

	"gitlab.com/elixxir/cryptostore/olm"
	"golang.org/x/sync/semaphore"
)

// List is the shared handle on the sessions of one sender key, most
// recently used first. The sessions are advanced in place as messages flow,
// so every access goes through a Lease, which is exclusive.
type List struct {
	senderKey string
	lease     *semaphore.Weighted

	// guarded by lease
	sessions []*olm.Session
}

func newList(senderKey string, sessions []*olm.Session) *List {
	return &List{
		senderKey: senderKey,
		lease:     semaphore.NewWeighted(1),
		sessions:  sessions,
	}
}

// SenderKey returns the curve25519 key the sessions are shared with.
func (l *List) SenderKey() string { return l.senderKey }

// Lease waits for exclusive access to the list. The lease must be released
// before the same sender key is saved.
func (l *List) Lease(ctx context.Context) (*Lease, error) {
	if err := l.lease.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return &Lease{list: l}, nil
}

// TryLease takes the lease if it is free.
func (l *List) TryLease() (*Lease, bool) {
	if !l.lease.TryAcquire(1) {
		return nil, false
	}
	return &Lease{list: l}, true
}

// Snapshot returns copies of the sessions.
func (l *List) Snapshot(ctx context.Context) ([]*olm.Session, error) {
	lease, err := l.Lease(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	sessions := make([]*olm.Session, len(lease.list.sessions))
	for i, s := range lease.list.sessions {
		sessions[i] = s.Copy()
	}
	return sessions, nil
}

// Lease is exclusive access to a List.
type Lease struct {
	list     *List
	released bool
}

// Sessions returns the live sessions, most recently used first. They may
// be mutated until the lease is released.
func (le *Lease) Sessions() []*olm.Session {
	return le.list.sessions
}

// Latest returns the most recently used session, or nil for an empty list.
func (le *Lease) Latest() *olm.Session {
	if len(le.list.sessions) == 0 {
		return nil
	}
	return le.list.sessions[0]
}

// Find returns the session with the given ID, or nil.
func (le *Lease) Find(sessionID string) *olm.Session {
	for _, s := range le.list.sessions {
		if s.SessionID == sessionID {
			return s
		}
	}
	return nil
}

// Len returns the number of sessions.
func (le *Lease) Len() int { return len(le.list.sessions) }

// Release gives up the lease. Releasing twice is a no-op.
func (le *Lease) Release() {
	if le.released {
		return
	}
	le.released = true
	le.list.lease.Release(1)
}
