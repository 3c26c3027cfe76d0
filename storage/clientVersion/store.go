////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package clientVersion records the version of the library that last wrote
// a database, so a database touched by a newer release can be spotted.
package clientVersion

import (
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/cryptostore/storage/kvdb"
	"gitlab.com/elixxir/cryptostore/storage/versioned"
	"gitlab.com/elixxir/primitives/version"
	"gitlab.com/xx_network/primitives/netTime"
)

const (
	storeKey     = "clientVersion"
	storeKind    = "clientVersion"
	storeVersion = 0
)

// Store stores the version of the library that last wrote the database.
type Store struct {
	version version.Version
	db      *kvdb.DB
	sync.RWMutex
}

// NewStore saves newVersion as the writer of db.
func NewStore(newVersion version.Version, db *kvdb.DB) (*Store, error) {
	s := &Store{
		version: newVersion,
		db:      db,
	}

	return s, s.save()
}

// LoadStore loads the stored version. It returns nil if no version was
// ever recorded.
func LoadStore(db *kvdb.DB) (*Store, error) {
	data, found, err := db.GetMeta(storeKey)
	if err != nil || !found {
		return nil, err
	}

	obj := &versioned.Object{}
	if err = obj.Unmarshal(data); err != nil {
		return nil, errors.WithMessage(err, "failed to load client version")
	}
	if obj.Kind != storeKind || obj.Version != storeVersion {
		return nil, errors.Errorf("unexpected client version record %s "+
			"version %d", obj.Kind, obj.Version)
	}

	s := &Store{db: db}
	s.version, err = version.ParseVersion(string(obj.Data))
	if err != nil {
		return nil, errors.Errorf("failed to parse client version: %+v", err)
	}

	return s, nil
}

// LoadOrNewStore loads the stored version, recording current if there is
// none.
func LoadOrNewStore(current version.Version, db *kvdb.DB) (*Store, error) {
	s, err := LoadStore(db)
	if err != nil || s != nil {
		return s, err
	}
	jww.DEBUG.Printf("Recording client version %s for database %s",
		&current, db.Name())
	return NewStore(current, db)
}

// Get returns the stored version.
func (s *Store) Get() version.Version {
	s.RLock()
	defer s.RUnlock()

	return s.version
}

// CheckUpdateRequired determines if the stored version must be replaced by
// newVersion. It returns true and records newVersion if it is newer. The
// old stored version is always returned. If newVersion is older than the
// stored version an error is returned and nothing is changed.
func (s *Store) CheckUpdateRequired(newVersion version.Version) (bool, version.Version, error) {
	s.Lock()
	defer s.Unlock()

	oldVersion := s.version
	diff := version.Cmp(oldVersion, newVersion)

	switch {
	case diff < 0:
		return true, oldVersion, s.update(newVersion)
	case diff > 0:
		return false, oldVersion, errors.Errorf("new version (%s) is older "+
			"than stored version (%s).", &newVersion, &oldVersion)
	default:
		return false, oldVersion, nil
	}
}

// update replaces the current version with the new version. Note that this
// function does not take a lock.
func (s *Store) update(newVersion version.Version) error {
	jww.DEBUG.Printf("Updating stored client version from %s to %s.",
		&s.version, &newVersion)

	s.version = newVersion

	return s.save()
}

// save stores the version. Note that this function does not take a lock.
func (s *Store) save() error {
	obj := &versioned.Object{
		Kind:      storeKind,
		Version:   storeVersion,
		Timestamp: netTime.Now(),
		Data:      []byte(s.version.String()),
	}

	return s.db.SetMeta(storeKey, obj.Marshal())
}
