////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package device stores the device lists of users, one record per user
// holding all of that user's devices, and the users' cross-signing
// identities.
package device

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
	// DevicesPartition holds one record per user.
	DevicesPartition = "devices"

	devicesVersion = 0
)

var devicesCodec = codec.New[olm.ReadOnlyUserDevices](codec.UserDevices,
	versioned.UpgradeTable{CurrentVersion: devicesVersion})

// SaveDevices replaces the record of every device. Devices of the same
// user are written together.
func SaveDevices(txn *kvdb.Txn, devices []*olm.ReadOnlyDevice) error {
	p, err := txn.Partition(DevicesPartition)
	if err != nil {
		return err
	}

	users := make(map[string]olm.ReadOnlyUserDevices)
	order := make([]string, 0, len(devices))
	for _, d := range devices {
		if err = checkDevice(d); err != nil {
			return err
		}

		ud, ok := users[d.UserID]
		if !ok {
			if ud, err = load(p, d.UserID); err != nil {
				return err
			}
			users[d.UserID] = ud
			order = append(order, d.UserID)
		}
		ud[d.DeviceID] = d
	}

	for _, user := range order {
		if err = store(p, user, users[user]); err != nil {
			return err
		}
	}

	jww.DEBUG.Printf("Saved %d devices of %d users", len(devices),
		len(order))
	return nil
}

// GetDevice returns a device, or nil if it is not stored.
func GetDevice(txn *kvdb.Txn, userID, deviceID string) (
	*olm.ReadOnlyDevice, error) {
	ud, err := GetUserDevices(txn, userID)
	if err != nil {
		return nil, err
	}
	return ud.Get(deviceID), nil
}

// GetUserDevices returns every stored device of a user, including those
// marked deleted. A user without devices gets an empty map.
func GetUserDevices(txn *kvdb.Txn, userID string) (
	olm.ReadOnlyUserDevices, error) {
	p, err := txn.Partition(DevicesPartition)
	if err != nil {
		return nil, err
	}
	return load(p, userID)
}

// DeleteDevice removes a device. The user's record goes away with its last
// device. Deleting a device that is not stored is not an error.
func DeleteDevice(txn *kvdb.Txn, d *olm.ReadOnlyDevice) error {
	if err := checkDevice(d); err != nil {
		return err
	}

	p, err := txn.Partition(DevicesPartition)
	if err != nil {
		return err
	}

	ud, err := load(p, d.UserID)
	if err != nil {
		return err
	}
	if _, ok := ud[d.DeviceID]; !ok {
		return nil
	}
	delete(ud, d.DeviceID)

	jww.DEBUG.Printf("Deleting device %s of %s", d.DeviceID, d.UserID)
	if len(ud) == 0 {
		return p.Delete(d.UserID)
	}
	return store(p, d.UserID, ud)
}

// Users returns every user with stored devices in sorted order.
func Users(txn *kvdb.Txn) ([]string, error) {
	p, err := txn.Partition(DevicesPartition)
	if err != nil {
		return nil, err
	}
	return p.Keys()
}

func checkDevice(d *olm.ReadOnlyDevice) error {
	if d == nil || d.UserID == "" || d.DeviceID == "" {
		return storeErrors.Errorf(storeErrors.Serialization, "device",
			"device must have a user and a device ID")
	}
	return nil
}

func load(p *kvdb.Partition, userID string) (olm.ReadOnlyUserDevices, error) {
	data, found, err := p.Get(userID)
	if err != nil {
		return nil, err
	}
	if !found {
		return olm.ReadOnlyUserDevices{}, nil
	}

	ud, err := devicesCodec.Decode(data)
	if err != nil {
		return nil, errors.WithMessagef(err,
			"failed to load devices of %s", userID)
	}
	if ud == nil {
		ud = olm.ReadOnlyUserDevices{}
	}
	return ud, nil
}

func store(p *kvdb.Partition, userID string,
	ud olm.ReadOnlyUserDevices) error {
	data, err := devicesCodec.Encode(ud)
	if err != nil {
		return err
	}
	return errors.WithMessagef(p.Set(userID, data),
		"failed to save devices of %s", userID)
}
