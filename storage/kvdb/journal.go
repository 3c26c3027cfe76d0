////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package kvdb

import (
	"encoding/json"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/cryptostore/storage/storeErrors"
	"gitlab.com/elixxir/cryptostore/storage/versioned"
	"gitlab.com/xx_network/primitives/netTime"
)

const (
	journalKind    = "journal"
	journalVersion = 0
)

// journalEntry is the before-image of one key touched by a commit.
type journalEntry struct {
	Key     string
	Existed bool
	Before  []byte
}

// apply writes a committed transaction to the engine. The before-images of
// every key are journaled first; the journal is deleted once every write is
// applied, and only then is the commit durable. If a write fails the
// before-images are restored. If restoring fails too the database is marked
// broken and the journal is kept, so the next Open undoes the partial
// commit.
func (db *DB) apply(order []string, writes map[string]pendingWrite) error {
	db.commitMux.Lock()
	defer db.commitMux.Unlock()

	entries := make([]journalEntry, 0, len(order))
	for _, key := range order {
		before, existed, err := get(db.engine, key)
		if err != nil {
			return storeErrors.New(storeErrors.Store, "commit",
				errors.WithMessage(err, "failed to read before-image"))
		}
		entries = append(entries, journalEntry{Key: key, Existed: existed,
			Before: before})
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return storeErrors.New(storeErrors.Serialization, "commit", err)
	}
	obj := versioned.Object{
		Kind:      journalKind,
		Version:   journalVersion,
		Timestamp: netTime.Now(),
		Data:      data,
	}
	journalKey := makeJournalKey(db.name)
	if err = db.engine.SetBytes(journalKey, obj.Marshal()); err != nil {
		return storeErrors.New(storeErrors.Store, "commit",
			errors.WithMessage(err, "failed to write journal"))
	}

	for i, key := range order {
		w := writes[key]
		switch {
		case !w.deleted:
			err = db.engine.SetBytes(key, w.data)
		case entries[i].Existed:
			err = db.engine.Delete(key)
		}
		if err != nil {
			return db.abort(entries[:i+1],
				errors.WithMessage(err, "failed to apply write"))
		}
	}

	if err = db.engine.Delete(journalKey); err != nil {
		return db.abort(entries,
			errors.WithMessage(err, "failed to remove journal"))
	}

	return nil
}

// abort undoes a partially applied commit and reports cause.
func (db *DB) abort(entries []journalEntry, cause error) error {
	jww.WARN.Printf("Commit on database %s failed, restoring %d keys: %+v",
		db.name, len(entries), cause)

	if err := db.undo(entries); err != nil {
		db.mux.Lock()
		db.broken = errors.WithMessage(err, "failed to undo commit")
		db.mux.Unlock()
		jww.ERROR.Printf("Database %s is inconsistent until reopened: %+v",
			db.name, err)
		return storeErrors.New(storeErrors.Store, "commit",
			errors.WithMessagef(cause, "undo failed (%v)", err))
	}

	if err := db.engine.Delete(makeJournalKey(db.name)); err != nil {
		// the journal only holds before-images, so undoing again on the
		// next open is harmless
		jww.WARN.Printf("Failed to remove journal of database %s: %+v",
			db.name, err)
	}

	return storeErrors.New(storeErrors.Store, "commit", cause)
}

// undo restores before-images. Restoring the same images twice is
// harmless, which makes recovery idempotent.
func (db *DB) undo(entries []journalEntry) error {
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Existed {
			if err := db.engine.SetBytes(e.Key, e.Before); err != nil {
				return err
			}
			continue
		}
		if err := db.engine.Delete(e.Key); err != nil {
			// the key may never have been written
			if _, found, getErr := get(db.engine, e.Key); getErr != nil ||
				found {
				return err
			}
		}
	}
	return nil
}

// recoverJournal undoes a commit that was interrupted before its journal
// was removed.
func (db *DB) recoverJournal() error {
	journalKey := makeJournalKey(db.name)
	data, found, err := get(db.engine, journalKey)
	if err != nil || !found {
		return err
	}

	obj := &versioned.Object{}
	if err = obj.Unmarshal(data); err != nil {
		return errors.WithMessage(err, "journal is corrupt")
	}
	if obj.Kind != journalKind || obj.Version != journalVersion {
		return errors.Errorf("unsupported journal %s version %d", obj.Kind,
			obj.Version)
	}

	var entries []journalEntry
	if err = json.Unmarshal(obj.Data, &entries); err != nil {
		return errors.WithMessage(err, "journal entries are corrupt")
	}

	jww.WARN.Printf("Database %s has an interrupted commit from %s, "+
		"restoring %d keys", db.name, obj.Timestamp, len(entries))

	if err = db.undo(entries); err != nil {
		return errors.WithMessage(err, "failed to undo interrupted commit")
	}

	return db.engine.Delete(journalKey)
}
