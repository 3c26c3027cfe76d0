////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cryptostore

import (
	"context"

	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/cryptostore/olm"
	"gitlab.com/elixxir/cryptostore/storage/groupSession"
	"gitlab.com/elixxir/cryptostore/storage/kvdb"
	"gitlab.com/elixxir/cryptostore/storage/session"
	"gitlab.com/elixxir/cryptostore/storage/storeErrors"
)

// SaveSessions stores sessions, each becoming the most recently used of its
// sender key. Every session is saved or none is. The caller must not hold
// the lease of any of the sender keys.
func (s *Store) SaveSessions(ctx context.Context,
	sessions []*olm.Session) error {
	if len(sessions) == 0 {
		return nil
	}
	return s.updateWithSessions(ctx, sessions, nil)
}

// GetSessions returns the shared list of senderKey, or nil if no session
// with that key was ever saved. Repeated calls return the same list.
func (s *Store) GetSessions(ctx context.Context,
	senderKey string) (*session.List, error) {
	if l, ok := s.sessions.Get(senderKey); ok {
		return l, nil
	}

	var l *session.List
	err := s.view(ctx, func(txn *kvdb.Txn) error {
		var err error
		l, err = session.Load(txn, s.sessions, senderKey)
		return err
	}, session.Partition)
	return l, err
}

// SaveInboundGroupSession stores a group session and reports whether it is
// new.
func (s *Store) SaveInboundGroupSession(ctx context.Context,
	gs *olm.InboundGroupSession) (bool, error) {
	var inserted bool
	err := s.update(ctx, func(txn *kvdb.Txn) error {
		var err error
		inserted, err = groupSession.Save(txn, gs)
		return err
	}, groupSession.Partition)
	return inserted, err
}

// GetInboundGroupSession returns a group session, or nil.
func (s *Store) GetInboundGroupSession(ctx context.Context, roomID,
	senderKey, sessionID string) (*olm.InboundGroupSession, error) {
	var gs *olm.InboundGroupSession
	err := s.view(ctx, func(txn *kvdb.Txn) error {
		var err error
		gs, err = groupSession.Get(txn, roomID, senderKey, sessionID)
		return err
	}, groupSession.Partition)
	return gs, err
}

// GetInboundGroupSessions returns every stored group session, for key
// export and backup.
func (s *Store) GetInboundGroupSessions(
	ctx context.Context) ([]*olm.InboundGroupSession, error) {
	var all []*olm.InboundGroupSession
	err := s.view(ctx, func(txn *kvdb.Txn) error {
		var err error
		all, err = groupSession.All(txn)
		return err
	}, groupSession.Partition)
	return all, err
}

// InboundGroupSessionCount returns the number of stored group sessions.
func (s *Store) InboundGroupSessionCount(ctx context.Context) (int, error) {
	var n int
	err := s.view(ctx, func(txn *kvdb.Txn) error {
		var err error
		n, err = groupSession.Count(txn)
		return err
	}, groupSession.Partition)
	return n, err
}

// updateWithSessions saves sessions and runs fn in one read-write
// transaction over the sessions partition and partitions. The leases of the
// cached lists are taken before the transaction so the lists can be
// replaced while the transaction still holds its locks.
func (s *Store) updateWithSessions(ctx context.Context,
	sessions []*olm.Session, fn func(txn *kvdb.Txn) error,
	partitions ...string) error {
	keys := session.SenderKeys(sessions)
	scope := append([]string{session.Partition}, partitions...)

	for {
		leases, err := s.sessions.LeaseCached(ctx, keys)
		if err != nil {
			return storeErrors.New(storeErrors.Store, "save sessions", err)
		}

		retry, err := s.commitSessions(ctx, leases, keys, sessions, fn, scope)
		leases.Release()
		if !retry {
			return err
		}
		jww.DEBUG.Printf("Session lists were loaded while saving, retrying")
	}
}

func (s *Store) commitSessions(ctx context.Context, leases *session.Leases,
	keys []string, sessions []*olm.Session, fn func(txn *kvdb.Txn) error,
	scope []string) (bool, error) {
	txn, err := s.db.Transaction(ctx, kvdb.ReadWrite, scope...)
	if err != nil {
		return false, err
	}
	defer txn.Rollback()

	if !leases.Covers(keys) {
		return true, nil
	}

	merged, err := session.Save(txn, leases, sessions)
	if err != nil {
		return false, err
	}

	if fn != nil {
		if err = fn(txn); err != nil {
			return false, err
		}
	}

	txn.OnCommit(func() { leases.Store(merged) })
	return false, txn.Commit()
}
