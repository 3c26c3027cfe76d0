////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package groupSession

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/elixxir/cryptostore/olm"
	"gitlab.com/elixxir/cryptostore/storage/kvdb"
	"gitlab.com/elixxir/cryptostore/storage/storeErrors"
)

func openDB(t *testing.T) *kvdb.DB {
	db, err := kvdb.OpenMemory("groupSessionTest", 1,
		func(_ uint64, db *kvdb.DB) error {
			return db.CreatePartition(Partition)
		})
	require.NoError(t, err)
	return db
}

func newGroupSession(room, id string) *olm.InboundGroupSession {
	return &olm.InboundGroupSession{
		RoomID:     room,
		SenderKey:  "bobCurveKey",
		SessionID:  id,
		SigningKey: "bobEdKey",
		Pickle:     []byte("pickle " + id),
	}
}

func saveOne(t *testing.T, db *kvdb.DB, s *olm.InboundGroupSession) bool {
	txn, err := db.Transaction(context.Background(), kvdb.ReadWrite,
		Partition)
	require.NoError(t, err)
	defer txn.Rollback()

	inserted, err := Save(txn, s)
	require.NoError(t, err)
	require.NoError(t, txn.Commit())
	return inserted
}

func readTxn(t *testing.T, db *kvdb.DB) *kvdb.Txn {
	txn, err := db.Transaction(context.Background(), kvdb.ReadOnly,
		Partition)
	require.NoError(t, err)
	t.Cleanup(txn.Rollback)
	return txn
}

func TestMakeKey(t *testing.T) {
	k := MakeKey("!room:example.org", "sender", "session")
	require.Equal(t, k, MakeKey("!room:example.org", "sender", "session"))
	require.Len(t, k, 43)

	// shifting bytes between the parts gives a different key
	require.NotEqual(t, MakeKey("ab", "c", "d"), MakeKey("a", "bc", "d"))
	require.NotEqual(t, MakeKey("a", "b", "cd"), MakeKey("a", "bc", "d"))
}

// The first save of a triple reports an insert, later saves report an
// overwrite and the latest content wins.
func TestSave_InsertSignal(t *testing.T) {
	db := openDB(t)

	s := newGroupSession("!room:example.org", "gs1")
	require.True(t, saveOne(t, db, s))

	updated := newGroupSession("!room:example.org", "gs1")
	updated.Pickle = []byte("advanced")
	updated.ForwardingChains = []string{"carolCurveKey"}
	require.False(t, saveOne(t, db, updated))

	got, err := Get(readTxn(t, db), "!room:example.org", "bobCurveKey",
		"gs1")
	require.NoError(t, err)
	require.Equal(t, updated, got)
}

// Two saves of a new triple in one transaction: the second sees the first.
func TestSave_SameTransaction(t *testing.T) {
	db := openDB(t)

	txn, err := db.Transaction(context.Background(), kvdb.ReadWrite,
		Partition)
	require.NoError(t, err)
	defer txn.Rollback()

	inserted, err := Save(txn, newGroupSession("!r", "gs1"))
	require.NoError(t, err)
	require.True(t, inserted)
	inserted, err = Save(txn, newGroupSession("!r", "gs1"))
	require.NoError(t, err)
	require.False(t, inserted)
}

func TestGet_Absent(t *testing.T) {
	db := openDB(t)
	saveOne(t, db, newGroupSession("!room:example.org", "gs1"))

	txn := readTxn(t, db)
	for _, triple := range [][3]string{
		{"!other:example.org", "bobCurveKey", "gs1"},
		{"!room:example.org", "otherKey", "gs1"},
		{"!room:example.org", "bobCurveKey", "gs2"},
	} {
		got, err := Get(txn, triple[0], triple[1], triple[2])
		require.NoError(t, err)
		require.Nil(t, got, "%v", triple)
	}
}

func TestSave_Invalid(t *testing.T) {
	db := openDB(t)
	txn, err := db.Transaction(context.Background(), kvdb.ReadWrite,
		Partition)
	require.NoError(t, err)
	defer txn.Rollback()

	_, err = Save(txn, newGroupSession("", "gs1"))
	require.ErrorIs(t, err, storeErrors.ErrSerialization)
}

func TestAllCount(t *testing.T) {
	db := openDB(t)
	saveOne(t, db, newGroupSession("!a", "gs1"))
	saveOne(t, db, newGroupSession("!a", "gs2"))
	saveOne(t, db, newGroupSession("!b", "gs1"))
	saveOne(t, db, newGroupSession("!a", "gs1"))

	txn := readTxn(t, db)
	n, err := Count(txn)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	all, err := All(txn)
	require.NoError(t, err)
	require.Len(t, all, 3)
	seen := make(map[string]bool)
	for _, s := range all {
		seen[s.RoomID+"|"+s.SessionID] = true
	}
	require.Equal(t, map[string]bool{"!a|gs1": true, "!a|gs2": true,
		"!b|gs1": true}, seen)
}
