////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package kvdb

import (
	"context"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/cryptostore/storage/storeErrors"
	"golang.org/x/sync/semaphore"
)

// Mode is the access mode of a transaction.
type Mode uint8

const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "ReadWrite"
	}
	return "ReadOnly"
}

type pendingWrite struct {
	data    []byte
	deleted bool
}

// Txn is a transaction over a fixed set of partitions. It holds the
// partition locks from creation until Commit or Rollback. A Txn must not be
// used from more than one goroutine at a time.
//
// Always defer Rollback after creating a transaction; it is a no-op once the
// transaction committed.
type Txn struct {
	db    *DB
	ctx   context.Context
	mode  Mode
	scope map[string]struct{}

	writes  map[string]pendingWrite
	order   []string
	indexes map[string]*keyIndex
	hooks   []func()

	release func()
	done    bool
}

// Transaction starts a transaction over the given partitions. Every
// partition must exist. Waiting for conflicting transactions honours ctx;
// the same ctx is checked again at Commit.
func (db *DB) Transaction(ctx context.Context, mode Mode,
	partitions ...string) (*Txn, error) {
	if len(partitions) == 0 {
		return nil, storeErrors.Errorf(storeErrors.Access, "transaction",
			"no partitions requested")
	}

	db.mux.RLock()
	if db.closed {
		db.mux.RUnlock()
		return nil, storeErrors.Errorf(storeErrors.Access, "transaction",
			"database %s is closed", db.name)
	}
	if db.broken != nil {
		err := db.broken
		db.mux.RUnlock()
		return nil, storeErrors.New(storeErrors.Store, "transaction",
			errors.WithMessage(err, "database must be reopened"))
	}
	locks := make(map[string]*semaphore.Weighted, len(partitions))
	for _, p := range partitions {
		sem, exists := db.partitions[p]
		if !exists {
			db.mux.RUnlock()
			return nil, storeErrors.Errorf(storeErrors.Access, "transaction",
				"unknown partition %q", p)
		}
		locks[p] = sem
	}
	db.inFlight.Add(1)
	db.mux.RUnlock()

	release, err := acquire(ctx, mode, locks)
	if err != nil {
		db.inFlight.Done()
		return nil, storeErrors.New(storeErrors.Store, "transaction", err)
	}

	scope := make(map[string]struct{}, len(locks))
	for p := range locks {
		scope[p] = struct{}{}
	}

	return &Txn{
		db:      db,
		ctx:     ctx,
		mode:    mode,
		scope:   scope,
		writes:  make(map[string]pendingWrite),
		indexes: make(map[string]*keyIndex),
		release: release,
	}, nil
}

// Mode returns the access mode of the transaction.
func (t *Txn) Mode() Mode { return t.mode }

// Partition returns a handle on a partition in the transaction's scope.
func (t *Txn) Partition(name string) (*Partition, error) {
	if t.done {
		return nil, errFinished("partition")
	}
	if _, ok := t.scope[name]; !ok {
		return nil, storeErrors.Errorf(storeErrors.Access, "partition",
			"partition %q is not in the transaction's scope", name)
	}
	return &Partition{txn: t, name: name}, nil
}

// OnCommit registers fn to run after the transaction commits successfully.
// Hooks run in registration order while the partition locks are still held,
// so they may update in-memory state that mirrors the committed records.
func (t *Txn) OnCommit(fn func()) {
	t.hooks = append(t.hooks, fn)
}

// Rollback discards the transaction's writes and releases its locks. It is
// a no-op after Commit or a previous Rollback.
func (t *Txn) Rollback() {
	if t.done {
		return
	}
	if len(t.order) > 0 {
		jww.TRACE.Printf("Rolling back %d writes on database %s",
			len(t.order), t.db.name)
	}
	t.finish()
}

// Commit makes every write of the transaction visible at once. If the
// transaction's context is done the transaction rolls back instead. Any
// failure leaves the stored data as it was before the transaction.
func (t *Txn) Commit() error {
	if t.done {
		return errFinished("commit")
	}
	defer t.finish()

	if err := t.ctx.Err(); err != nil {
		return storeErrors.New(storeErrors.Store, "commit",
			errors.WithMessage(err, "transaction abandoned"))
	}

	if t.mode == ReadWrite {
		if err := t.flushIndexes(); err != nil {
			return err
		}
	}

	if len(t.order) > 0 {
		if err := t.db.apply(t.order, t.writes); err != nil {
			return err
		}
		jww.TRACE.Printf("Committed %d writes on database %s", len(t.order),
			t.db.name)
	}

	for _, hook := range t.hooks {
		hook()
	}
	return nil
}

func (t *Txn) finish() {
	t.done = true
	t.writes = nil
	t.indexes = nil
	t.hooks = nil
	t.release()
	t.db.inFlight.Done()
}

func (t *Txn) checkWrite(op string) error {
	if t.done {
		return errFinished(op)
	}
	if t.mode != ReadWrite {
		return storeErrors.Errorf(storeErrors.Access, op,
			"write in a %s transaction", t.mode)
	}
	return nil
}

func (t *Txn) stage(key string, w pendingWrite) {
	if _, exists := t.writes[key]; !exists {
		t.order = append(t.order, key)
	}
	t.writes[key] = w
}

func errFinished(op string) error {
	return storeErrors.Errorf(storeErrors.Access, op,
		"transaction already finished")
}

// Partition is a partition seen through a transaction.
type Partition struct {
	txn  *Txn
	name string
}

// Name returns the partition name.
func (p *Partition) Name() string { return p.name }

// Get returns the record stored under key. A missing record is reported
// with found == false and a nil error. The transaction's own writes are
// visible.
func (p *Partition) Get(key string) (data []byte, found bool, err error) {
	if p.txn.done {
		return nil, false, errFinished("get")
	}

	data, found, err = p.txn.lookup(makeKey(p.txn.db.name, p.name, key))
	if err != nil {
		return nil, false, errors.WithMessagef(err, "partition %s", p.name)
	}
	return data, found, nil
}

// Has reports whether a record is stored under key. It reads the key's
// index location, not the record.
func (p *Partition) Has(key string) (bool, error) {
	if p.txn.done {
		return false, errFinished("has")
	}

	_, exists, err := p.txn.location(p.name, key)
	return exists, err
}

// Set stores data under key, replacing any existing record.
func (p *Partition) Set(key string, data []byte) error {
	if err := p.txn.checkWrite("set"); err != nil {
		return err
	}

	_, exists, err := p.txn.location(p.name, key)
	if err != nil {
		return err
	}
	if !exists {
		if err = p.txn.addKey(p.name, key); err != nil {
			return err
		}
	}

	p.txn.stage(makeKey(p.txn.db.name, p.name, key),
		pendingWrite{data: append([]byte(nil), data...)})
	return nil
}

// Delete removes the record under key. Deleting a missing record is not an
// error.
func (p *Partition) Delete(key string) error {
	if err := p.txn.checkWrite("delete"); err != nil {
		return err
	}

	n, exists, err := p.txn.location(p.name, key)
	if err != nil {
		return err
	}
	if exists {
		if err = p.txn.removeKey(p.name, key, n); err != nil {
			return err
		}
	}

	p.txn.stage(makeKey(p.txn.db.name, p.name, key),
		pendingWrite{deleted: true})
	return nil
}

// Keys returns every key in the partition in sorted order, including keys
// written by this transaction.
func (p *Partition) Keys() ([]string, error) {
	if p.txn.done {
		return nil, errFinished("keys")
	}
	return p.txn.keys(p.name)
}

// Len returns the number of records in the partition without listing them.
func (p *Partition) Len() (int, error) {
	if p.txn.done {
		return 0, errFinished("len")
	}
	idx, err := p.txn.index(p.name)
	if err != nil {
		return 0, err
	}
	return idx.header.Count, nil
}
