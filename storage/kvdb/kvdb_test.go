////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package kvdb

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gitlab.com/elixxir/cryptostore/storage/storeErrors"
	"gitlab.com/elixxir/cryptostore/storage/versioned"
	"gitlab.com/elixxir/ekv"
)

const testDB = "testDB"

// faultyEngine wraps a memstore and fails the writes selected by fail.
type faultyEngine struct {
	kv Engine

	mux  sync.Mutex
	fail func(op, key string) bool
}

func newFaultyEngine() *faultyEngine {
	return &faultyEngine{kv: NewEngine(ekv.MakeMemstore())}
}

func (f *faultyEngine) setFault(fail func(op, key string) bool) {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.fail = fail
}

func (f *faultyEngine) shouldFail(op, key string) bool {
	f.mux.Lock()
	defer f.mux.Unlock()
	return f.fail != nil && f.fail(op, key)
}

func (f *faultyEngine) GetBytes(key string) ([]byte, error) {
	return f.kv.GetBytes(key)
}

func (f *faultyEngine) SetBytes(key string, data []byte) error {
	if f.shouldFail("set", key) {
		return errors.Errorf("injected set failure on %s", key)
	}
	return f.kv.SetBytes(key, data)
}

func (f *faultyEngine) Delete(key string) error {
	if f.shouldFail("delete", key) {
		return errors.Errorf("injected delete failure on %s", key)
	}
	return f.kv.Delete(key)
}

func createPartitions(names ...string) Migration {
	return func(oldVersion uint64, db *DB) error {
		for _, name := range names {
			if err := db.CreatePartition(name); err != nil {
				return err
			}
		}
		return nil
	}
}

func openTestDB(t *testing.T, engine Engine) *DB {
	db, err := Open(engine, testDB, 1, createPartitions("a", "b"))
	require.NoError(t, err)
	return db
}

func put(t *testing.T, db *DB, partition, key, value string) {
	txn, err := db.Transaction(context.Background(), ReadWrite, partition)
	require.NoError(t, err)
	defer txn.Rollback()

	p, err := txn.Partition(partition)
	require.NoError(t, err)
	require.NoError(t, p.Set(key, []byte(value)))
	require.NoError(t, txn.Commit())
}

func read(t *testing.T, db *DB, partition, key string) (string, bool) {
	txn, err := db.Transaction(context.Background(), ReadOnly, partition)
	require.NoError(t, err)
	defer txn.Rollback()

	p, err := txn.Partition(partition)
	require.NoError(t, err)
	data, found, err := p.Get(key)
	require.NoError(t, err)
	return string(data), found
}

///////////////////////////////////////////////////////////////////////////////
// Open & migration
///////////////////////////////////////////////////////////////////////////////

// A fresh database runs the migration from version 0.
func TestOpen_New(t *testing.T) {
	var calls []uint64
	db, err := Open(NewEngine(ekv.MakeMemstore()), testDB, 2,
		func(oldVersion uint64, db *DB) error {
			calls = append(calls, oldVersion)
			return createPartitions("a", "b")(oldVersion, db)
		})
	require.NoError(t, err)

	require.Equal(t, []uint64{0}, calls)
	require.Equal(t, uint64(2), db.Version())
	require.Equal(t, testDB, db.Name())
	require.Equal(t, []string{"a", "b"}, db.Partitions())
	require.True(t, db.HasPartition("a"))
	require.False(t, db.HasPartition("c"))
}

// Reopening at the current version does not migrate and keeps the data.
func TestOpen_CurrentVersion(t *testing.T) {
	engine := NewEngine(ekv.MakeMemstore())
	db := openTestDB(t, engine)
	put(t, db, "a", "key", "value")
	require.NoError(t, db.Close())

	migrated := false
	db, err := Open(engine, testDB, 1, func(uint64, *DB) error {
		migrated = true
		return nil
	})
	require.NoError(t, err)
	require.False(t, migrated)
	require.Equal(t, []string{"a", "b"}, db.Partitions())

	value, found := read(t, db, "a", "key")
	require.True(t, found)
	require.Equal(t, "value", value)
}

// Upgrading passes the stored version and keeps existing partitions.
func TestOpen_Upgrade(t *testing.T) {
	engine := NewEngine(ekv.MakeMemstore())
	db := openTestDB(t, engine)
	put(t, db, "a", "key", "value")
	require.NoError(t, db.Close())

	var from uint64
	db, err := Open(engine, testDB, 2, func(oldVersion uint64, db *DB) error {
		from = oldVersion
		return createPartitions("a", "b", "c")(oldVersion, db)
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), from)
	require.Equal(t, []string{"a", "b", "c"}, db.Partitions())

	_, found := read(t, db, "a", "key")
	require.True(t, found)
}

// Opening with an older version than stored is a hard error.
func TestOpen_Downgrade(t *testing.T) {
	engine := NewEngine(ekv.MakeMemstore())
	db, err := Open(engine, testDB, 3, createPartitions("a"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(engine, testDB, 2, createPartitions("a"))
	require.ErrorIs(t, err, storeErrors.ErrOpen)
	require.Contains(t, err.Error(), "newer than the supported version")
}

// A failing migration fails Open and does not record the new version.
func TestOpen_MigrationError(t *testing.T) {
	engine := NewEngine(ekv.MakeMemstore())
	_, err := Open(engine, testDB, 1, func(uint64, *DB) error {
		return errors.New("no space")
	})
	require.ErrorIs(t, err, storeErrors.ErrOpen)

	// the migration runs again on the next open
	db := openTestDB(t, engine)
	require.Equal(t, []string{"a", "b"}, db.Partitions())
}

// Running a migration twice, as after a crash before the version was saved,
// is harmless.
func TestOpen_MigrationIdempotent(t *testing.T) {
	engine := NewEngine(ekv.MakeMemstore())
	migrate := createPartitions("a", "b")

	db, err := Open(engine, testDB, 0, nil)
	require.NoError(t, err)
	require.NoError(t, migrate(0, db))
	require.NoError(t, migrate(0, db))
	put(t, db, "a", "key", "value")

	db, err = Open(engine, testDB, 1, migrate)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, db.Partitions())
	value, _ := read(t, db, "a", "key")
	require.Equal(t, "value", value)
}

func TestOpen_EngineFailure(t *testing.T) {
	engine := newFaultyEngine()
	engine.setFault(func(op, key string) bool { return op == "set" })

	_, err := Open(engine, testDB, 1, createPartitions("a"))
	require.ErrorIs(t, err, storeErrors.ErrOpen)
}

func TestOpen_BadNames(t *testing.T) {
	_, err := OpenMemory("", 1, nil)
	require.ErrorIs(t, err, storeErrors.ErrOpen)

	db, err := OpenMemory(testDB, 1, nil)
	require.NoError(t, err)
	for _, name := range []string{"", "_hidden", "a/b", "a#b"} {
		require.ErrorIs(t, db.CreatePartition(name), storeErrors.ErrAccess,
			"partition %q", name)
	}
}

///////////////////////////////////////////////////////////////////////////////
// Transactions
///////////////////////////////////////////////////////////////////////////////

// Writes are visible to the transaction itself but to nobody else until
// Commit.
func TestTxn_Isolation(t *testing.T) {
	db := openTestDB(t, NewEngine(ekv.MakeMemstore()))

	txn, err := db.Transaction(context.Background(), ReadWrite, "a")
	require.NoError(t, err)
	p, err := txn.Partition("a")
	require.NoError(t, err)
	require.NoError(t, p.Set("key", []byte("value")))

	data, found, err := p.Get("key")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("value"), data)

	// the record has not reached the engine yet
	_, found, err = get(db.engine, makeKey(testDB, "a", "key"))
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, txn.Commit())
	value, found := read(t, db, "a", "key")
	require.True(t, found)
	require.Equal(t, "value", value)
}

func TestTxn_Rollback(t *testing.T) {
	db := openTestDB(t, NewEngine(ekv.MakeMemstore()))

	txn, err := db.Transaction(context.Background(), ReadWrite, "a", "b")
	require.NoError(t, err)
	for _, name := range []string{"a", "b"} {
		p, err := txn.Partition(name)
		require.NoError(t, err)
		require.NoError(t, p.Set("key", []byte(name)))
	}
	txn.Rollback()
	txn.Rollback()

	_, found := read(t, db, "a", "key")
	require.False(t, found)
	_, found = read(t, db, "b", "key")
	require.False(t, found)

	require.ErrorIs(t, txn.Commit(), storeErrors.ErrAccess)
}

func TestTxn_ReadOnlyWrite(t *testing.T) {
	db := openTestDB(t, NewEngine(ekv.MakeMemstore()))

	txn, err := db.Transaction(context.Background(), ReadOnly, "a")
	require.NoError(t, err)
	defer txn.Rollback()

	p, err := txn.Partition("a")
	require.NoError(t, err)
	require.ErrorIs(t, p.Set("key", nil), storeErrors.ErrAccess)
	require.ErrorIs(t, p.Delete("key"), storeErrors.ErrAccess)
}

func TestTxn_Scope(t *testing.T) {
	db := openTestDB(t, NewEngine(ekv.MakeMemstore()))

	_, err := db.Transaction(context.Background(), ReadOnly, "missing")
	require.ErrorIs(t, err, storeErrors.ErrAccess)

	_, err = db.Transaction(context.Background(), ReadOnly)
	require.ErrorIs(t, err, storeErrors.ErrAccess)

	txn, err := db.Transaction(context.Background(), ReadOnly, "a")
	require.NoError(t, err)
	defer txn.Rollback()
	_, err = txn.Partition("b")
	require.ErrorIs(t, err, storeErrors.ErrAccess)
}

func TestPartition_KeysDelete(t *testing.T) {
	db := openTestDB(t, NewEngine(ekv.MakeMemstore()))
	put(t, db, "a", "@bob:example.org", "1")
	put(t, db, "a", "@alice:example.org/with/slashes", "2")

	txn, err := db.Transaction(context.Background(), ReadWrite, "a")
	require.NoError(t, err)
	defer txn.Rollback()
	p, err := txn.Partition("a")
	require.NoError(t, err)

	keys, err := p.Keys()
	require.NoError(t, err)
	require.Equal(t, []string{"@alice:example.org/with/slashes",
		"@bob:example.org"}, keys)

	require.NoError(t, p.Delete("@bob:example.org"))
	require.NoError(t, p.Delete("never-written"))
	has, err := p.Has("@bob:example.org")
	require.NoError(t, err)
	require.False(t, has)
	n, err := p.Len()
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, txn.Commit())

	_, found := read(t, db, "a", "@bob:example.org")
	require.False(t, found)
	value, _ := read(t, db, "a", "@alice:example.org/with/slashes")
	require.Equal(t, "2", value)
}

// Abandoning a transaction through its context rolls it back at Commit.
func TestTxn_CommitCancelled(t *testing.T) {
	db := openTestDB(t, NewEngine(ekv.MakeMemstore()))

	ctx, cancel := context.WithCancel(context.Background())
	txn, err := db.Transaction(ctx, ReadWrite, "a")
	require.NoError(t, err)
	p, err := txn.Partition("a")
	require.NoError(t, err)
	require.NoError(t, p.Set("key", []byte("value")))

	cancel()
	err = txn.Commit()
	require.ErrorIs(t, err, storeErrors.ErrStore)
	require.ErrorIs(t, err, context.Canceled)

	_, found := read(t, db, "a", "key")
	require.False(t, found)
}

// Hooks run only after a successful commit.
func TestTxn_OnCommit(t *testing.T) {
	db := openTestDB(t, NewEngine(ekv.MakeMemstore()))

	ran := 0
	txn, err := db.Transaction(context.Background(), ReadWrite, "a")
	require.NoError(t, err)
	txn.OnCommit(func() { ran++ })
	txn.Rollback()
	require.Equal(t, 0, ran)

	txn, err = db.Transaction(context.Background(), ReadWrite, "a")
	require.NoError(t, err)
	txn.OnCommit(func() { ran++ })
	require.NoError(t, txn.Commit())
	require.Equal(t, 1, ran)
}

// A failing write inside a multi-partition commit leaves nothing behind.
func TestTxn_CommitFailureRestores(t *testing.T) {
	engine := newFaultyEngine()
	db := openTestDB(t, engine)
	put(t, db, "a", "existing", "old")

	engine.setFault(func(op, key string) bool {
		return op == "set" && key == makeKey(testDB, "b", "new")
	})

	txn, err := db.Transaction(context.Background(), ReadWrite, "a", "b")
	require.NoError(t, err)
	pa, _ := txn.Partition("a")
	pb, _ := txn.Partition("b")
	require.NoError(t, pa.Set("existing", []byte("updated")))
	require.NoError(t, pa.Set("added", []byte("added")))
	require.NoError(t, pb.Set("new", []byte("new")))
	require.ErrorIs(t, txn.Commit(), storeErrors.ErrStore)

	engine.setFault(nil)
	value, _ := read(t, db, "a", "existing")
	require.Equal(t, "old", value)
	_, found := read(t, db, "a", "added")
	require.False(t, found)
	_, found = read(t, db, "b", "new")
	require.False(t, found)

	// the key index was restored as well
	txn, err = db.Transaction(context.Background(), ReadOnly, "a")
	require.NoError(t, err)
	pa, _ = txn.Partition("a")
	keys, err := pa.Keys()
	require.NoError(t, err)
	require.Equal(t, []string{"existing"}, keys)
	txn.Rollback()

	// and the database keeps working
	put(t, db, "b", "new", "new")
	_, found = read(t, db, "b", "new")
	require.True(t, found)
}

// When even the undo fails the database refuses work until it is reopened,
// and reopening undoes the partial commit.
func TestTxn_BrokenRecoversOnOpen(t *testing.T) {
	engine := newFaultyEngine()
	db := openTestDB(t, engine)
	put(t, db, "a", "k1", "original")

	k1 := makeKey(testDB, "a", "k1")
	engine.setFault(func(op, key string) bool {
		return op == "set" && key == k1
	})

	txn, err := db.Transaction(context.Background(), ReadWrite, "a")
	require.NoError(t, err)
	pa, _ := txn.Partition("a")
	require.NoError(t, pa.Set("k1", []byte("changed")))
	require.NoError(t, pa.Set("k2", []byte("new")))
	require.ErrorIs(t, txn.Commit(), storeErrors.ErrStore)

	_, err = db.Transaction(context.Background(), ReadOnly, "a")
	require.ErrorIs(t, err, storeErrors.ErrStore)

	engine.setFault(nil)
	db = openTestDB(t, engine)
	value, _ := read(t, db, "a", "k1")
	require.Equal(t, "original", value)
	_, found := read(t, db, "a", "k2")
	require.False(t, found)
}

// A journal left by a crash mid-commit is undone on open.
func TestOpen_RecoversJournal(t *testing.T) {
	engine := NewEngine(ekv.MakeMemstore())
	db := openTestDB(t, engine)
	put(t, db, "a", "k1", "original")

	// simulate a crash after the journal and the first write hit the disk
	k1 := makeKey(testDB, "a", "k1")
	k2 := makeKey(testDB, "a", "k2")
	writeJournal(t, engine, []journalEntry{
		{Key: k1, Existed: true, Before: []byte("original")},
		{Key: k2, Existed: false},
	})
	require.NoError(t, engine.SetBytes(k1, []byte("changed")))
	require.NoError(t, engine.SetBytes(k2, []byte("partial")))

	db = openTestDB(t, engine)
	value, _ := read(t, db, "a", "k1")
	require.Equal(t, "original", value)
	_, found := read(t, db, "a", "k2")
	require.False(t, found)

	_, found, err := get(engine, makeJournalKey(testDB))
	require.NoError(t, err)
	require.False(t, found)
}

func writeJournal(t *testing.T, engine Engine, entries []journalEntry) {
	data, err := json.Marshal(entries)
	require.NoError(t, err)
	obj := versioned.Object{
		Kind:      journalKind,
		Version:   journalVersion,
		Timestamp: time.Unix(1, 0).UTC(),
		Data:      data,
	}
	require.NoError(t, engine.SetBytes(makeJournalKey(testDB), obj.Marshal()))
}

///////////////////////////////////////////////////////////////////////////////
// Concurrency
///////////////////////////////////////////////////////////////////////////////

// A writer excludes other writers; waiting honours the context.
func TestTransaction_WriterExcludes(t *testing.T) {
	db := openTestDB(t, NewEngine(ekv.MakeMemstore()))

	txn, err := db.Transaction(context.Background(), ReadWrite, "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(),
		20*time.Millisecond)
	defer cancel()
	_, err = db.Transaction(ctx, ReadWrite, "a", "b")
	require.ErrorIs(t, err, storeErrors.ErrStore)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = db.Transaction(ctx, ReadOnly, "a")
	require.Error(t, err)

	// disjoint partitions are not blocked
	other, err := db.Transaction(context.Background(), ReadWrite, "b")
	require.NoError(t, err)
	other.Rollback()

	txn.Rollback()
	after, err := db.Transaction(context.Background(), ReadWrite, "a")
	require.NoError(t, err)
	after.Rollback()
}

// Readers share a partition.
func TestTransaction_ReadersShare(t *testing.T) {
	db := openTestDB(t, NewEngine(ekv.MakeMemstore()))

	r1, err := db.Transaction(context.Background(), ReadOnly, "a")
	require.NoError(t, err)
	defer r1.Rollback()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r2, err := db.Transaction(ctx, ReadOnly, "a", "b")
	require.NoError(t, err)
	r2.Rollback()
}

// Concurrent read-modify-write transactions never lose an update.
func TestTransaction_SerializedWriters(t *testing.T) {
	db := openTestDB(t, NewEngine(ekv.MakeMemstore()))
	put(t, db, "a", "counter", "")

	const workers = 8
	const increments = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < increments; j++ {
				txn, err := db.Transaction(context.Background(), ReadWrite,
					"a")
				if err != nil {
					t.Error(err)
					return
				}
				p, _ := txn.Partition("a")
				data, _, err := p.Get("counter")
				if err == nil {
					err = p.Set("counter", append(data, 'x'))
				}
				if err == nil {
					err = txn.Commit()
				}
				txn.Rollback()
				if err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	value, _ := read(t, db, "a", "counter")
	require.Len(t, value, workers*increments)
}

func TestDB_Close(t *testing.T) {
	db := openTestDB(t, NewEngine(ekv.MakeMemstore()))

	txn, err := db.Transaction(context.Background(), ReadOnly, "a")
	require.NoError(t, err)

	closed := make(chan struct{})
	go func() {
		_ = db.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned with a transaction in flight")
	case <-time.After(20 * time.Millisecond):
	}

	txn.Rollback()
	<-closed

	_, err = db.Transaction(context.Background(), ReadOnly, "a")
	require.ErrorIs(t, err, storeErrors.ErrAccess)
	require.NoError(t, db.Close())
}

func TestDB_Meta(t *testing.T) {
	db := openTestDB(t, NewEngine(ekv.MakeMemstore()))

	_, found, err := db.GetMeta("writer")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, db.SetMeta("writer", []byte("1.0.0")))
	data, found, err := db.GetMeta("writer")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("1.0.0"), data)

	require.ErrorIs(t, db.SetMeta(versionKey, nil), storeErrors.ErrAccess)
}
