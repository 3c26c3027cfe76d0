////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package session

import (
	"context"
	"sort"
	"sync"

	"gitlab.com/elixxir/cryptostore/olm"
)

// Table owns the List of every sender key loaded so far. A list stays in
// the table for the life of the store, so every caller asking for the same
// sender key shares one handle.
type Table struct {
	mux   sync.Mutex
	lists map[string]*List
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{lists: make(map[string]*List)}
}

// Get returns the cached list of senderKey.
func (t *Table) Get(senderKey string) (*List, bool) {
	t.mux.Lock()
	defer t.mux.Unlock()
	l, ok := t.lists[senderKey]
	return l, ok
}

// Len returns the number of cached lists.
func (t *Table) Len() int {
	t.mux.Lock()
	defer t.mux.Unlock()
	return len(t.lists)
}

// getOrInsert caches a list built from sessions unless one is cached
// already, and returns the cached one.
func (t *Table) getOrInsert(senderKey string, sessions []*olm.Session) *List {
	t.mux.Lock()
	defer t.mux.Unlock()
	if l, ok := t.lists[senderKey]; ok {
		return l
	}
	l := newList(senderKey, sessions)
	t.lists[senderKey] = l
	return l
}

// LeaseCached leases the cached lists of senderKeys in sorted order. Keys
// without a cached list are skipped.
func (t *Table) LeaseCached(ctx context.Context,
	senderKeys []string) (*Leases, error) {
	keys := append([]string(nil), senderKeys...)
	sort.Strings(keys)

	ls := &Leases{table: t, held: make(map[string]*Lease, len(keys))}
	for _, key := range keys {
		l, ok := t.Get(key)
		if !ok {
			continue
		}
		lease, err := l.Lease(ctx)
		if err != nil {
			ls.Release()
			return nil, err
		}
		ls.held[key] = lease
	}
	return ls, nil
}

// Leases is a set of leases taken for a save.
type Leases struct {
	table *Table
	held  map[string]*Lease
}

// Covers reports whether every cached list of senderKeys is leased. A
// reader may cache a list between LeaseCached and the start of the write
// transaction; the save must then start over.
func (ls *Leases) Covers(senderKeys []string) bool {
	for _, key := range senderKeys {
		if _, leased := ls.held[key]; leased {
			continue
		}
		if _, cached := ls.table.Get(key); cached {
			return false
		}
	}
	return true
}

// current returns the in-memory sessions of a leased list.
func (ls *Leases) current(senderKey string) ([]*olm.Session, bool) {
	if ls == nil {
		return nil, false
	}
	lease, ok := ls.held[senderKey]
	if !ok {
		return nil, false
	}
	return lease.Sessions(), true
}

// Store installs committed lists: leased lists are replaced in place and
// the others are cached. It must run while the write transaction still
// holds the sessions partition.
func (ls *Leases) Store(merged map[string][]*olm.Session) {
	for key, sessions := range merged {
		if lease, ok := ls.held[key]; ok {
			lease.list.sessions = sessions
			continue
		}
		ls.table.getOrInsert(key, sessions)
	}
}

// Release releases every lease.
func (ls *Leases) Release() {
	for _, lease := range ls.held {
		lease.Release()
	}
}
