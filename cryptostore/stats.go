////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cryptostore

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"gitlab.com/elixxir/cryptostore/codec"
	"gitlab.com/elixxir/cryptostore/storage/account"
	"gitlab.com/elixxir/cryptostore/storage/device"
	"gitlab.com/elixxir/cryptostore/storage/groupSession"
	"gitlab.com/elixxir/cryptostore/storage/kvdb"
	"gitlab.com/elixxir/cryptostore/storage/session"
)

// Stats summarises the content of a store.
type Stats struct {
	SchemaVersion  uint64
	WriterVersion  string
	HasAccount     bool
	SenderKeys     int
	GroupSessions  int
	DeviceUsers    int
	Identities     int
	TrackedUsers   int
	UsersForQuery  int
	CachedSessions int
}

// Stats counts the records of every partition in one read transaction.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{
		SchemaVersion:  s.db.Version(),
		TrackedUsers:   s.tracked.Len(),
		UsersForQuery:  len(s.tracked.UsersForKeyQuery()),
		CachedSessions: s.sessions.Len(),
	}
	writer := s.writer.Get()
	st.WriterVersion = writer.String()

	err := s.view(ctx, func(txn *kvdb.Txn) error {
		acc, err := account.Load(txn)
		if err != nil {
			return err
		}
		st.HasAccount = acc != nil

		if st.SenderKeys, err = session.Count(txn); err != nil {
			return err
		}
		if st.GroupSessions, err = groupSession.Count(txn); err != nil {
			return err
		}
		users, err := device.Users(txn)
		if err != nil {
			return err
		}
		st.DeviceUsers = len(users)

		p, err := txn.Partition(device.IdentitiesPartition)
		if err != nil {
			return err
		}
		st.Identities, err = p.Len()
		return err
	}, Partitions...)

	return st, err
}

func (st Stats) String() string {
	return fmt.Sprintf("schema version:       %d\n"+
		"written by:           %s\n"+
		"account:              %t\n"+
		"session sender keys:  %d\n"+
		"group sessions:       %d\n"+
		"users with devices:   %d\n"+
		"identities:           %d\n"+
		"tracked users:        %d\n"+
		"users for key query:  %d\n",
		st.SchemaVersion, st.WriterVersion, st.HasAccount, st.SenderKeys,
		st.GroupSessions, st.DeviceUsers, st.Identities, st.TrackedUsers,
		st.UsersForQuery)
}

// RecordVersion counts the stored records of one kind at one version.
// Current is the version this library writes, when Known.
type RecordVersion struct {
	Kind    codec.Kind
	Version uint64
	Count   int
	Known   bool
	Current uint64
}

// Stale reports whether the records are upgraded when read.
func (rv RecordVersion) Stale() bool {
	return rv.Known && rv.Version < rv.Current
}

func (rv RecordVersion) String() string {
	switch {
	case !rv.Known:
		return fmt.Sprintf("%-20s v%d  %6d  (unknown kind)", rv.Kind,
			rv.Version, rv.Count)
	case rv.Stale():
		return fmt.Sprintf("%-20s v%d  %6d  (upgraded to v%d on read)",
			rv.Kind, rv.Version, rv.Count, rv.Current)
	}
	return fmt.Sprintf("%-20s v%d  %6d", rv.Kind, rv.Version, rv.Count)
}

// RecordVersions reads the envelope of every stored record and counts them
// per kind and version, sorted by kind then version.
func (s *Store) RecordVersions(ctx context.Context) ([]RecordVersion, error) {
	type kindVersion struct {
		kind    codec.Kind
		version uint64
	}
	counts := make(map[kindVersion]*RecordVersion)

	err := s.view(ctx, func(txn *kvdb.Txn) error {
		for _, name := range Partitions {
			p, err := txn.Partition(name)
			if err != nil {
				return err
			}
			keys, err := p.Keys()
			if err != nil {
				return err
			}
			for _, key := range keys {
				data, found, err := p.Get(key)
				if err != nil {
					return err
				}
				if !found {
					continue
				}
				h, err := codec.Describe(data)
				if err != nil {
					return errors.WithMessagef(err, "record %q in %s", key,
						name)
				}

				kv := kindVersion{h.Kind, h.Version}
				rv, ok := counts[kv]
				if !ok {
					rv = &RecordVersion{Kind: h.Kind, Version: h.Version,
						Known: h.Known, Current: h.Current}
					counts[kv] = rv
				}
				rv.Count++
			}
		}
		return nil
	}, Partitions...)
	if err != nil {
		return nil, err
	}

	result := make([]RecordVersion, 0, len(counts))
	for _, rv := range counts {
		result = append(result, *rv)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Kind != result[j].Kind {
			return result[i].Kind < result[j].Kind
		}
		return result[i].Version < result[j].Version
	})
	return result, nil
}
