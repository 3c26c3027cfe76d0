////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cryptostore

import (
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/cryptostore/storage/account"
	"gitlab.com/elixxir/cryptostore/storage/device"
	"gitlab.com/elixxir/cryptostore/storage/groupSession"
	"gitlab.com/elixxir/cryptostore/storage/kvdb"
	"gitlab.com/elixxir/cryptostore/storage/session"
	"gitlab.com/elixxir/cryptostore/storage/trackedUsers"
)

// SchemaVersion is the layout version of databases written by this
// package.
const SchemaVersion = 1

// Partitions lists every partition of the current schema.
var Partitions = []string{
	account.Partition,
	session.Partition,
	groupSession.Partition,
	device.DevicesPartition,
	device.IdentitiesPartition,
	trackedUsers.Partition,
}

// migrations[v] brings a database from schema version v to v+1. Each step
// must be idempotent.
var migrations = []kvdb.Migration{
	// 0 -> 1: create the initial partitions
	func(_ uint64, db *kvdb.DB) error {
		for _, p := range Partitions {
			if err := db.CreatePartition(p); err != nil {
				return err
			}
		}
		return nil
	},
}

// migrate runs every step from oldVersion up to SchemaVersion.
func migrate(oldVersion uint64, db *kvdb.DB) error {
	if uint64(len(migrations)) != SchemaVersion {
		jww.FATAL.Panicf("Have %d migrations for schema version %d",
			len(migrations), SchemaVersion)
	}

	for v := oldVersion; v < SchemaVersion; v++ {
		jww.INFO.Printf("Migrating crypto store %s to schema version %d",
			db.Name(), v+1)
		if err := migrations[v](v, db); err != nil {
			return errors.WithMessagef(err,
				"migration to schema version %d failed", v+1)
		}
	}
	return nil
}
