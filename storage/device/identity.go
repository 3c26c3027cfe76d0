////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package device

import (
	"github.com/pkg/errors"
	"gitlab.com/elixxir/cryptostore/codec"
	"gitlab.com/elixxir/cryptostore/olm"
	"gitlab.com/elixxir/cryptostore/storage/kvdb"
	"gitlab.com/elixxir/cryptostore/storage/storeErrors"
	"gitlab.com/elixxir/cryptostore/storage/versioned"
)

const (
	// IdentitiesPartition holds one cross-signing identity per user.
	IdentitiesPartition = "identities"

	identityVersion = 0
)

var identityCodec = codec.New[*olm.UserIdentity](codec.UserIdentity,
	versioned.UpgradeTable{CurrentVersion: identityVersion})

// SaveIdentities replaces the identity of each user.
func SaveIdentities(txn *kvdb.Txn, identities []*olm.UserIdentity) error {
	p, err := txn.Partition(IdentitiesPartition)
	if err != nil {
		return err
	}

	for _, id := range identities {
		if id == nil || id.UserID == "" {
			return storeErrors.Errorf(storeErrors.Serialization,
				"save identity", "identity must have a user ID")
		}

		data, err := identityCodec.Encode(id)
		if err != nil {
			return err
		}
		if err = p.Set(id.UserID, data); err != nil {
			return errors.WithMessagef(err,
				"failed to save identity of %s", id.UserID)
		}
	}

	return nil
}

// GetIdentity returns the identity of a user, or nil.
func GetIdentity(txn *kvdb.Txn, userID string) (*olm.UserIdentity, error) {
	p, err := txn.Partition(IdentitiesPartition)
	if err != nil {
		return nil, err
	}

	data, found, err := p.Get(userID)
	if err != nil || !found {
		return nil, err
	}

	return identityCodec.Decode(data)
}
