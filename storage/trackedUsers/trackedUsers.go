////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package trackedUsers stores the users whose device lists are kept up to
// date, each with a dirty flag marking a list that needs a key query. The
// whole set is mirrored in memory so membership and the dirty subset can be
// read without touching the database.
package trackedUsers

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/cryptostore/codec"
	"gitlab.com/elixxir/cryptostore/storage/kvdb"
	"gitlab.com/elixxir/cryptostore/storage/storeErrors"
	"gitlab.com/elixxir/cryptostore/storage/versioned"
)

const (
	// Partition holds one record per tracked user.
	Partition = "tracked_users"

	currentVersion = 0
)

type record struct {
	Dirty bool `json:"dirty"`
}

var recordCodec = codec.New[record](codec.TrackedUser,
	versioned.UpgradeTable{CurrentVersion: currentVersion})

// Set is the in-memory copy of the tracked users. It only changes in commit
// hooks, so it always reflects committed state.
type Set struct {
	mux   sync.RWMutex
	users map[string]struct{}
	dirty map[string]struct{}
}

// Load reads every tracked user.
func Load(txn *kvdb.Txn) (*Set, error) {
	p, err := txn.Partition(Partition)
	if err != nil {
		return nil, err
	}

	keys, err := p.Keys()
	if err != nil {
		return nil, err
	}

	s := &Set{
		users: make(map[string]struct{}, len(keys)),
		dirty: make(map[string]struct{}),
	}
	for _, user := range keys {
		r, found, err := get(p, user)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, storeErrors.Errorf(storeErrors.Store,
				"load tracked users", "indexed record %s is missing", user)
		}
		s.set(user, r.Dirty)
	}

	jww.DEBUG.Printf("Loaded %d tracked users, %d dirty", len(s.users),
		len(s.dirty))
	return s, nil
}

// Update tracks user with the given dirty flag. It returns true if the user
// was not tracked before or its flag changed. The in-memory set follows once
// txn commits.
func (s *Set) Update(txn *kvdb.Txn, user string, dirty bool) (bool, error) {
	if user == "" {
		return false, storeErrors.Errorf(storeErrors.Serialization,
			"update tracked user", "user ID may not be empty")
	}

	p, err := txn.Partition(Partition)
	if err != nil {
		return false, err
	}

	r, found, err := get(p, user)
	if err != nil {
		return false, err
	}
	if found && r.Dirty == dirty {
		return false, nil
	}

	data, err := recordCodec.Encode(record{Dirty: dirty})
	if err != nil {
		return false, err
	}
	if err = p.Set(user, data); err != nil {
		return false, errors.WithMessagef(err,
			"failed to track user %s", user)
	}

	txn.OnCommit(func() {
		s.mux.Lock()
		defer s.mux.Unlock()
		s.set(user, dirty)
	})
	return true, nil
}

// IsTracked reports whether user is tracked.
func (s *Set) IsTracked(user string) bool {
	s.mux.RLock()
	defer s.mux.RUnlock()
	_, ok := s.users[user]
	return ok
}

// UsersForKeyQuery returns the dirty users in sorted order.
func (s *Set) UsersForKeyQuery() []string {
	s.mux.RLock()
	defer s.mux.RUnlock()

	users := make([]string, 0, len(s.dirty))
	for user := range s.dirty {
		users = append(users, user)
	}
	sort.Strings(users)
	return users
}

// HasUsersForKeyQuery reports whether any tracked user is dirty.
func (s *Set) HasUsersForKeyQuery() bool {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return len(s.dirty) > 0
}

// Users returns every tracked user in sorted order.
func (s *Set) Users() []string {
	s.mux.RLock()
	defer s.mux.RUnlock()

	users := make([]string, 0, len(s.users))
	for user := range s.users {
		users = append(users, user)
	}
	sort.Strings(users)
	return users
}

// Len returns the number of tracked users.
func (s *Set) Len() int {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return len(s.users)
}

// set must be called with the lock held or before the Set is shared.
func (s *Set) set(user string, dirty bool) {
	s.users[user] = struct{}{}
	if dirty {
		s.dirty[user] = struct{}{}
	} else {
		delete(s.dirty, user)
	}
}

func get(p *kvdb.Partition, user string) (record, bool, error) {
	data, found, err := p.Get(user)
	if err != nil || !found {
		return record{}, false, err
	}

	r, err := recordCodec.Decode(data)
	if err != nil {
		return record{}, false, errors.WithMessagef(err,
			"failed to load tracked user %s", user)
	}
	return r, true, nil
}
