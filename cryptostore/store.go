////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package cryptostore persists the end-to-end encryption state of one
// local account: its account keys, pairwise and group sessions, the device
// lists and cross-signing identities of other users, and the set of users
// whose device lists are tracked.
//
// A Store is opened once, handed to the encryption layer and closed at
// shutdown. It is safe for concurrent use. Every operation runs in one
// transaction over the partitions it touches, so an operation either takes
// effect completely or not at all.
package cryptostore

import (
	"context"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/cryptostore/olm"
	"gitlab.com/elixxir/cryptostore/storage/account"
	"gitlab.com/elixxir/cryptostore/storage/clientVersion"
	"gitlab.com/elixxir/cryptostore/storage/kvdb"
	"gitlab.com/elixxir/cryptostore/storage/session"
	"gitlab.com/elixxir/cryptostore/storage/trackedUsers"
	"gitlab.com/elixxir/primitives/version"
)

// CryptoStore is the persistence contract of the encryption layer. Lookups
// of records that were never stored return nil (or an empty device map)
// and no error.
type CryptoStore interface {
	SaveAccount(ctx context.Context, acc *olm.Account) error
	LoadAccount(ctx context.Context) (*olm.Account, error)

	SaveSessions(ctx context.Context, sessions []*olm.Session) error
	GetSessions(ctx context.Context, senderKey string) (*session.List, error)

	SaveInboundGroupSession(ctx context.Context,
		s *olm.InboundGroupSession) (bool, error)
	GetInboundGroupSession(ctx context.Context, roomID, senderKey,
		sessionID string) (*olm.InboundGroupSession, error)

	SaveDevices(ctx context.Context, devices []*olm.ReadOnlyDevice) error
	GetDevice(ctx context.Context, userID,
		deviceID string) (*olm.ReadOnlyDevice, error)
	GetUserDevices(ctx context.Context,
		userID string) (olm.ReadOnlyUserDevices, error)
	DeleteDevice(ctx context.Context, d *olm.ReadOnlyDevice) error

	SaveUserIdentities(ctx context.Context,
		identities []*olm.UserIdentity) error
	GetUserIdentity(ctx context.Context,
		userID string) (*olm.UserIdentity, error)

	UpdateTrackedUser(ctx context.Context, userID string,
		dirty bool) (bool, error)
	IsUserTracked(userID string) bool
	UsersForKeyQuery() []string
	HasUsersForKeyQuery() bool

	SaveChanges(ctx context.Context, changes Changes) error
	Close() error
}

// Store is the CryptoStore over a kvdb database.
type Store struct {
	db       *kvdb.DB
	sessions *session.Table
	tracked  *trackedUsers.Set
	writer   *clientVersion.Store
}

var _ CryptoStore = (*Store)(nil)

// Open opens the database described by params, creating and migrating it
// as needed.
func Open(params Params) (*Store, error) {
	var db *kvdb.DB
	var err error
	if params.StorageDir == "" {
		jww.INFO.Printf("Opening in-memory crypto store %s", params.Name)
		db, err = kvdb.OpenMemory(params.Name, SchemaVersion, migrate)
	} else {
		jww.INFO.Printf("Opening crypto store %s in %s", params.Name,
			params.StorageDir)
		db, err = kvdb.OpenFilestore(params.StorageDir, params.Password,
			params.Name, SchemaVersion, migrate)
	}
	if err != nil {
		return nil, err
	}

	return newStore(db)
}

// OpenWithEngine opens the database in an existing engine.
func OpenWithEngine(engine kvdb.Engine, params Params) (*Store, error) {
	db, err := kvdb.Open(engine, params.Name, SchemaVersion, migrate)
	if err != nil {
		return nil, err
	}

	return newStore(db)
}

func newStore(db *kvdb.DB) (*Store, error) {
	s := &Store{
		db:       db,
		sessions: session.NewTable(),
	}

	err := s.view(context.Background(), func(txn *kvdb.Txn) error {
		var err error
		s.tracked, err = trackedUsers.Load(txn)
		return err
	}, trackedUsers.Partition)
	if err != nil {
		_ = db.Close()
		return nil, errors.WithMessage(err, "failed to load tracked users")
	}

	current, err := version.ParseVersion(SEMVER)
	if err != nil {
		jww.FATAL.Panicf("Invalid library version %q: %+v", SEMVER, err)
	}
	s.writer, err = clientVersion.LoadOrNewStore(current, db)
	if err != nil {
		_ = db.Close()
		return nil, errors.WithMessage(err, "failed to load client version")
	}
	if _, stored, err := s.writer.CheckUpdateRequired(current); err != nil {
		jww.WARN.Printf("Crypto store %s was last written by version %s, "+
			"newer than this version %s", db.Name(), &stored, &current)
	}

	return s, nil
}

// Close waits for running operations and closes the database. The Store
// must not be used afterwards.
func (s *Store) Close() error {
	return s.db.Close()
}

// Name returns the database name.
func (s *Store) Name() string { return s.db.Name() }

// WriterVersion returns the version of the library that last wrote the
// database.
func (s *Store) WriterVersion() version.Version { return s.writer.Get() }

// SaveAccount replaces the stored account.
func (s *Store) SaveAccount(ctx context.Context, acc *olm.Account) error {
	return s.update(ctx, func(txn *kvdb.Txn) error {
		return account.Save(txn, acc)
	}, account.Partition)
}

// LoadAccount returns the stored account, or nil.
func (s *Store) LoadAccount(ctx context.Context) (*olm.Account, error) {
	var acc *olm.Account
	err := s.view(ctx, func(txn *kvdb.Txn) error {
		var err error
		acc, err = account.Load(txn)
		return err
	}, account.Partition)
	return acc, err
}

// update runs fn in a read-write transaction over partitions and commits
// if fn succeeds.
func (s *Store) update(ctx context.Context, fn func(txn *kvdb.Txn) error,
	partitions ...string) error {
	txn, err := s.db.Transaction(ctx, kvdb.ReadWrite, partitions...)
	if err != nil {
		return err
	}
	defer txn.Rollback()

	if err = fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// view runs fn in a read-only transaction over partitions.
func (s *Store) view(ctx context.Context, fn func(txn *kvdb.Txn) error,
	partitions ...string) error {
	txn, err := s.db.Transaction(ctx, kvdb.ReadOnly, partitions...)
	if err != nil {
		return err
	}
	defer txn.Rollback()

	return fn(txn)
}
