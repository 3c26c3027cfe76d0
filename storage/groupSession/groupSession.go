////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package groupSession stores inbound group sessions under the triple of
// room, sender key and session ID. Group sessions are never deleted; they
// are needed to decrypt room history.
package groupSession

import (
	"encoding/base64"
	"encoding/binary"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/cryptostore/codec"
	"gitlab.com/elixxir/cryptostore/olm"
	"gitlab.com/elixxir/cryptostore/storage/kvdb"
	"gitlab.com/elixxir/cryptostore/storage/storeErrors"
	"gitlab.com/elixxir/cryptostore/storage/versioned"
	"golang.org/x/crypto/blake2b"
)

const (
	// Partition holds one record per group session.
	Partition = "group_sessions"

	currentVersion = 0
)

var groupSessionCodec = codec.New[*olm.InboundGroupSession](
	codec.InboundGroupSession,
	versioned.UpgradeTable{CurrentVersion: currentVersion})

// MakeKey returns the record key of a group session. Each part is length
// prefixed before hashing so no two triples share a key.
func MakeKey(roomID, senderKey, sessionID string) string {
	h, err := blake2b.New256(nil)
	if err != nil {
		jww.FATAL.Panicf("Failed to create group session hash: %+v", err)
	}

	var length [8]byte
	for _, part := range []string{roomID, senderKey, sessionID} {
		binary.BigEndian.PutUint64(length[:], uint64(len(part)))
		h.Write(length[:])
		h.Write([]byte(part))
	}

	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// Save stores s, replacing any session with the same triple. It returns
// true when the session was not stored before.
func Save(txn *kvdb.Txn, s *olm.InboundGroupSession) (bool, error) {
	if s == nil || s.RoomID == "" || s.SenderKey == "" || s.SessionID == "" {
		return false, storeErrors.Errorf(storeErrors.Serialization,
			"save group session",
			"group session must have a room, a sender key and an ID")
	}

	p, err := txn.Partition(Partition)
	if err != nil {
		return false, err
	}

	key := MakeKey(s.RoomID, s.SenderKey, s.SessionID)
	exists, err := p.Has(key)
	if err != nil {
		return false, err
	}

	data, err := groupSessionCodec.Encode(s)
	if err != nil {
		return false, err
	}

	if err = p.Set(key, data); err != nil {
		return false, errors.WithMessagef(err,
			"failed to save group session %s in %s", s.SessionID, s.RoomID)
	}

	if exists {
		jww.TRACE.Printf("Replaced group session %s in %s", s.SessionID,
			s.RoomID)
	} else {
		jww.DEBUG.Printf("Added group session %s in %s", s.SessionID,
			s.RoomID)
	}

	return !exists, nil
}

// Get returns the group session with the given triple, or nil.
func Get(txn *kvdb.Txn, roomID, senderKey,
	sessionID string) (*olm.InboundGroupSession, error) {
	p, err := txn.Partition(Partition)
	if err != nil {
		return nil, err
	}

	data, found, err := p.Get(MakeKey(roomID, senderKey, sessionID))
	if err != nil || !found {
		return nil, err
	}

	return groupSessionCodec.Decode(data)
}

// All returns every stored group session ordered by record key.
func All(txn *kvdb.Txn) ([]*olm.InboundGroupSession, error) {
	p, err := txn.Partition(Partition)
	if err != nil {
		return nil, err
	}

	keys, err := p.Keys()
	if err != nil {
		return nil, err
	}

	sessions := make([]*olm.InboundGroupSession, 0, len(keys))
	for _, key := range keys {
		data, found, err := p.Get(key)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, storeErrors.Errorf(storeErrors.Store,
				"list group sessions", "indexed record %s is missing", key)
		}

		s, err := groupSessionCodec.Decode(data)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	return sessions, nil
}

// Count returns the number of stored group sessions.
func Count(txn *kvdb.Txn) (int, error) {
	p, err := txn.Partition(Partition)
	if err != nil {
		return 0, err
	}
	return p.Len()
}
