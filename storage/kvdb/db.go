////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package kvdb is a transactional database over a key-value Engine. It
// groups records into named partitions, runs schema migrations on open and
// gives all-or-nothing transactions spanning several partitions: writes are
// buffered until Commit, applied under an undo journal and discarded if the
// transaction is rolled back, abandoned or its context is cancelled.
package kvdb

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/cryptostore/storage/storeErrors"
	"gitlab.com/elixxir/cryptostore/storage/versioned"
	"gitlab.com/xx_network/primitives/netTime"
	"golang.org/x/sync/semaphore"
)

const (
	versionKey    = "version"
	partitionsKey = "partitions"

	metaObjectVersion = 0
	versionKind       = "schemaVersion"
	partitionsKind    = "partitions"
)

// Migration brings a database from oldVersion to the version passed to
// Open. It must create every partition the new version uses and must be
// idempotent: a crash before the new version is recorded runs it again.
type Migration func(oldVersion uint64, db *DB) error

// DB is an open database. It is safe for concurrent use.
type DB struct {
	engine  Engine
	name    string
	version uint64

	// guards partitions, closed and broken
	mux        sync.RWMutex
	partitions map[string]*semaphore.Weighted
	closed     bool
	broken     error

	// serializes the journal of concurrent commits on disjoint partitions
	commitMux sync.Mutex

	inFlight sync.WaitGroup
}

// Open opens the database called name in engine, migrating it to version
// if the stored schema is older. Opening a database whose stored schema is
// newer than version fails, as does a failing migration; both are Open
// errors. When the stored version equals version the migration is not run.
func Open(engine Engine, name string, version uint64,
	migrate Migration) (*DB, error) {
	if err := checkName("database", name); err != nil {
		return nil, storeErrors.New(storeErrors.Open, "open", err)
	}

	db := &DB{
		engine:     engine,
		name:       name,
		version:    version,
		partitions: make(map[string]*semaphore.Weighted),
	}

	if err := db.recoverJournal(); err != nil {
		return nil, storeErrors.New(storeErrors.Open, "recover journal", err)
	}

	if err := db.loadPartitions(); err != nil {
		return nil, storeErrors.New(storeErrors.Open, "load partitions", err)
	}

	stored, err := db.loadVersion()
	if err != nil {
		return nil, storeErrors.New(storeErrors.Open, "load version", err)
	}

	switch {
	case stored > version:
		return nil, storeErrors.Errorf(storeErrors.Open, "open",
			"database %s has schema version %d which is newer than the "+
				"supported version %d", name, stored, version)
	case stored < version:
		jww.INFO.Printf("Migrating database %s from schema version %d "+
			"to %d", name, stored, version)
		if migrate != nil {
			if err = migrate(stored, db); err != nil {
				return nil, storeErrors.New(storeErrors.Open, "migrate",
					errors.WithMessagef(err, "failed to migrate %s from "+
						"version %d to %d", name, stored, version))
			}
		}
		if err = db.saveVersion(version); err != nil {
			return nil, storeErrors.New(storeErrors.Open, "save version", err)
		}
	default:
		jww.DEBUG.Printf("Database %s is at schema version %d", name, stored)
	}

	return db, nil
}

// Name returns the database name.
func (db *DB) Name() string { return db.name }

// Version returns the schema version the database was opened at.
func (db *DB) Version() uint64 { return db.version }

// CreatePartition registers a partition. Creating an existing partition is
// a no-op, which keeps migrations idempotent.
func (db *DB) CreatePartition(name string) error {
	if err := checkName("partition", name); err != nil {
		return storeErrors.New(storeErrors.Access, "create partition", err)
	}

	db.mux.Lock()
	defer db.mux.Unlock()

	if db.closed {
		return storeErrors.Errorf(storeErrors.Access, "create partition",
			"database %s is closed", db.name)
	}

	if _, exists := db.partitions[name]; exists {
		return nil
	}

	names := make([]string, 0, len(db.partitions)+1)
	for p := range db.partitions {
		names = append(names, p)
	}
	names = append(names, name)
	sort.Strings(names)

	data, err := json.Marshal(names)
	if err != nil {
		return storeErrors.New(storeErrors.Serialization, "create partition",
			err)
	}
	if err = db.setMetaObject(partitionsKey, partitionsKind, data); err != nil {
		return storeErrors.New(storeErrors.Store, "create partition",
			errors.WithMessagef(err, "failed to register partition %s", name))
	}

	db.partitions[name] = newPartitionLock()
	jww.DEBUG.Printf("Created partition %s in database %s", name, db.name)
	return nil
}

// HasPartition reports whether the partition exists.
func (db *DB) HasPartition(name string) bool {
	db.mux.RLock()
	defer db.mux.RUnlock()
	_, exists := db.partitions[name]
	return exists
}

// Partitions returns the names of all partitions in sorted order.
func (db *DB) Partitions() []string {
	db.mux.RLock()
	defer db.mux.RUnlock()
	names := make([]string, 0, len(db.partitions))
	for p := range db.partitions {
		names = append(names, p)
	}
	sort.Strings(names)
	return names
}

// GetMeta reads a database level metadata record.
func (db *DB) GetMeta(key string) ([]byte, bool, error) {
	data, found, err := get(db.engine, makeMetaKey(db.name, key))
	if err != nil {
		return nil, false, storeErrors.New(storeErrors.Store, "get meta", err)
	}
	return data, found, nil
}

// SetMeta writes a database level metadata record. Metadata writes are
// single-key and not part of any transaction.
func (db *DB) SetMeta(key string, data []byte) error {
	if key == versionKey || key == partitionsKey {
		return storeErrors.Errorf(storeErrors.Access, "set meta",
			"meta key %q is reserved", key)
	}
	if err := db.engine.SetBytes(makeMetaKey(db.name, key), data); err != nil {
		return storeErrors.New(storeErrors.Store, "set meta", err)
	}
	return nil
}

// Close waits for in-flight transactions to finish and refuses new ones.
func (db *DB) Close() error {
	db.mux.Lock()
	if db.closed {
		db.mux.Unlock()
		return nil
	}
	db.closed = true
	db.mux.Unlock()

	db.inFlight.Wait()
	jww.DEBUG.Printf("Closed database %s", db.name)
	return nil
}

func (db *DB) loadPartitions() error {
	data, found, err := db.getMetaObject(partitionsKey, partitionsKind)
	if err != nil || !found {
		return err
	}

	var names []string
	if err = json.Unmarshal(data, &names); err != nil {
		return errors.WithMessage(err, "partition registry is corrupt")
	}
	for _, name := range names {
		db.partitions[name] = newPartitionLock()
	}
	return nil
}

func (db *DB) loadVersion() (uint64, error) {
	data, found, err := db.getMetaObject(versionKey, versionKind)
	if err != nil || !found {
		return 0, err
	}

	var version uint64
	if err = json.Unmarshal(data, &version); err != nil {
		return 0, errors.WithMessage(err, "schema version is corrupt")
	}
	return version, nil
}

func (db *DB) saveVersion(version uint64) error {
	data, err := json.Marshal(version)
	if err != nil {
		return err
	}
	return db.setMetaObject(versionKey, versionKind, data)
}

func (db *DB) getMetaObject(key, kind string) ([]byte, bool, error) {
	data, found, err := get(db.engine, makeMetaKey(db.name, key))
	if err != nil || !found {
		return nil, false, err
	}

	obj := &versioned.Object{}
	if err = obj.Unmarshal(data); err != nil {
		return nil, false, storeErrors.New(storeErrors.Deserialization, key,
			err)
	}
	if obj.Kind != kind || obj.Version != metaObjectVersion {
		return nil, false, storeErrors.Errorf(storeErrors.Deserialization,
			key, "unexpected %s record version %d", obj.Kind, obj.Version)
	}
	return obj.Data, true, nil
}

func (db *DB) setMetaObject(key, kind string, data []byte) error {
	obj := versioned.Object{
		Kind:      kind,
		Version:   metaObjectVersion,
		Timestamp: netTime.Now(),
		Data:      data,
	}
	return db.engine.SetBytes(makeMetaKey(db.name, key), obj.Marshal())
}
