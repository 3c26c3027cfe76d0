////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package session stores the pairwise sessions shared with remote devices.
// All sessions of one sender key live in a single record, ordered most
// recently used first, and are handed out through a shared List handle.
package session

import (
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/cryptostore/codec"
	"gitlab.com/elixxir/cryptostore/olm"
	"gitlab.com/elixxir/cryptostore/storage/kvdb"
	"gitlab.com/elixxir/cryptostore/storage/storeErrors"
	"gitlab.com/elixxir/cryptostore/storage/versioned"
)

const (
	// Partition holds one record per sender key.
	Partition = "sessions"

	currentVersion = 0
)

var sessionsCodec = codec.New[[]*olm.Session](codec.Sessions,
	versioned.UpgradeTable{CurrentVersion: currentVersion})

// Load returns the list of senderKey, or nil if no session with that key
// was ever saved. A list already in the table is returned as is; otherwise
// it is read and cached. The caller's transaction must cover Partition.
func Load(txn *kvdb.Txn, table *Table, senderKey string) (*List, error) {
	if l, ok := table.Get(senderKey); ok {
		return l, nil
	}

	sessions, found, err := read(txn, senderKey)
	if err != nil || !found {
		return nil, err
	}

	return table.getOrInsert(senderKey, sessions), nil
}

// SenderKeys returns the distinct sender keys of sessions in first-seen
// order.
func SenderKeys(sessions []*olm.Session) []string {
	seen := make(map[string]struct{}, len(sessions))
	keys := make([]string, 0, len(sessions))
	for _, s := range sessions {
		if _, ok := seen[s.SenderKey]; ok {
			continue
		}
		seen[s.SenderKey] = struct{}{}
		keys = append(keys, s.SenderKey)
	}
	return keys
}

// Save merges sessions into the records of their sender keys and returns
// the merged lists, which the caller installs with Leases.Store once the
// transaction commits. Each saved session becomes the most recent of its
// list, replacing the session with the same ID; later sessions in the call
// are more recent than earlier ones. Leased lists are merged from memory,
// the rest from the stored records.
func Save(txn *kvdb.Txn, leases *Leases,
	sessions []*olm.Session) (map[string][]*olm.Session, error) {
	p, err := txn.Partition(Partition)
	if err != nil {
		return nil, err
	}

	merged := make(map[string][]*olm.Session)
	for _, s := range sessions {
		if s == nil || s.SenderKey == "" || s.SessionID == "" {
			return nil, storeErrors.Errorf(storeErrors.Serialization,
				"save sessions", "session must have a sender key and an ID")
		}

		list, ok := merged[s.SenderKey]
		if !ok {
			list, err = base(txn, leases, s.SenderKey)
			if err != nil {
				return nil, err
			}
		}
		merged[s.SenderKey] = moveToFront(list, s)
	}

	for _, key := range SenderKeys(sessions) {
		data, err := sessionsCodec.Encode(merged[key])
		if err != nil {
			return nil, err
		}
		if err = p.Set(key, data); err != nil {
			return nil, errors.WithMessagef(err,
				"failed to save sessions of %s", key)
		}
		jww.TRACE.Printf("Staged %d sessions of %s", len(merged[key]), key)
	}

	return merged, nil
}

// Count returns the number of sender keys with stored sessions.
func Count(txn *kvdb.Txn) (int, error) {
	p, err := txn.Partition(Partition)
	if err != nil {
		return 0, err
	}
	return p.Len()
}

func base(txn *kvdb.Txn, leases *Leases,
	senderKey string) ([]*olm.Session, error) {
	if current, ok := leases.current(senderKey); ok {
		return append([]*olm.Session(nil), current...), nil
	}
	sessions, _, err := read(txn, senderKey)
	return sessions, err
}

func read(txn *kvdb.Txn, senderKey string) ([]*olm.Session, bool, error) {
	p, err := txn.Partition(Partition)
	if err != nil {
		return nil, false, err
	}

	data, found, err := p.Get(senderKey)
	if err != nil || !found {
		return nil, false, err
	}

	sessions, err := sessionsCodec.Decode(data)
	if err != nil {
		return nil, false, errors.WithMessagef(err,
			"failed to load sessions of %s", senderKey)
	}
	return sessions, true, nil
}

// moveToFront returns list with s first and any older copy of s removed.
func moveToFront(list []*olm.Session, s *olm.Session) []*olm.Session {
	result := make([]*olm.Session, 0, len(list)+1)
	result = append(result, s)
	for _, existing := range list {
		if existing.SessionID != s.SessionID {
			result = append(result, existing)
		}
	}
	return result
}
