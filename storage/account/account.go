////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package account stores the local device's account, a singleton record
// that is replaced whenever key material rotates.
package account

import (
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/cryptostore/codec"
	"gitlab.com/elixxir/cryptostore/olm"
	"gitlab.com/elixxir/cryptostore/storage/kvdb"
	"gitlab.com/elixxir/cryptostore/storage/storeErrors"
	"gitlab.com/elixxir/cryptostore/storage/versioned"
)

const (
	// Partition holds the account record.
	Partition = "account"

	accountKey     = "account"
	currentVersion = 0
)

var accountCodec = codec.New[*olm.Account](codec.Account,
	versioned.UpgradeTable{CurrentVersion: currentVersion})

// Save replaces the stored account.
func Save(txn *kvdb.Txn, acc *olm.Account) error {
	if acc == nil {
		return storeErrors.Errorf(storeErrors.Serialization, "save account",
			"account is nil")
	}

	data, err := accountCodec.Encode(acc)
	if err != nil {
		return err
	}

	p, err := txn.Partition(Partition)
	if err != nil {
		return err
	}

	if err = p.Set(accountKey, data); err != nil {
		return errors.WithMessagef(err, "failed to save account of %s/%s",
			acc.UserID, acc.DeviceID)
	}

	jww.DEBUG.Printf("Saved account of %s/%s", acc.UserID, acc.DeviceID)
	return nil
}

// Load returns the stored account, or nil if none was ever saved.
func Load(txn *kvdb.Txn) (*olm.Account, error) {
	p, err := txn.Partition(Partition)
	if err != nil {
		return nil, err
	}

	data, found, err := p.Get(accountKey)
	if err != nil || !found {
		return nil, err
	}

	return accountCodec.Decode(data)
}
