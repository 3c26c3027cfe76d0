////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cryptostore

import (
	"context"

	"gitlab.com/elixxir/cryptostore/olm"
	"gitlab.com/elixxir/cryptostore/storage/device"
	"gitlab.com/elixxir/cryptostore/storage/kvdb"
	"gitlab.com/elixxir/cryptostore/storage/trackedUsers"
)

// SaveDevices replaces the records of devices. Either all devices are saved
// or none is.
func (s *Store) SaveDevices(ctx context.Context,
	devices []*olm.ReadOnlyDevice) error {
	return s.update(ctx, func(txn *kvdb.Txn) error {
		return device.SaveDevices(txn, devices)
	}, device.DevicesPartition)
}

// GetDevice returns a device, or nil.
func (s *Store) GetDevice(ctx context.Context, userID,
	deviceID string) (*olm.ReadOnlyDevice, error) {
	var d *olm.ReadOnlyDevice
	err := s.view(ctx, func(txn *kvdb.Txn) error {
		var err error
		d, err = device.GetDevice(txn, userID, deviceID)
		return err
	}, device.DevicesPartition)
	return d, err
}

// GetUserDevices returns all devices of a user, including deleted ones.
func (s *Store) GetUserDevices(ctx context.Context,
	userID string) (olm.ReadOnlyUserDevices, error) {
	var ud olm.ReadOnlyUserDevices
	err := s.view(ctx, func(txn *kvdb.Txn) error {
		var err error
		ud, err = device.GetUserDevices(txn, userID)
		return err
	}, device.DevicesPartition)
	return ud, err
}

// DeleteDevice removes a device.
func (s *Store) DeleteDevice(ctx context.Context,
	d *olm.ReadOnlyDevice) error {
	return s.update(ctx, func(txn *kvdb.Txn) error {
		return device.DeleteDevice(txn, d)
	}, device.DevicesPartition)
}

// SaveUserIdentities replaces the identities of their users.
func (s *Store) SaveUserIdentities(ctx context.Context,
	identities []*olm.UserIdentity) error {
	return s.update(ctx, func(txn *kvdb.Txn) error {
		return device.SaveIdentities(txn, identities)
	}, device.IdentitiesPartition)
}

// GetUserIdentity returns the identity of a user, or nil.
func (s *Store) GetUserIdentity(ctx context.Context,
	userID string) (*olm.UserIdentity, error) {
	var id *olm.UserIdentity
	err := s.view(ctx, func(txn *kvdb.Txn) error {
		var err error
		id, err = device.GetIdentity(txn, userID)
		return err
	}, device.IdentitiesPartition)
	return id, err
}

// UpdateTrackedUser tracks a user with the given dirty flag and reports
// whether anything changed.
func (s *Store) UpdateTrackedUser(ctx context.Context, userID string,
	dirty bool) (bool, error) {
	var changed bool
	err := s.update(ctx, func(txn *kvdb.Txn) error {
		var err error
		changed, err = s.tracked.Update(txn, userID, dirty)
		return err
	}, trackedUsers.Partition)
	return changed, err
}

// IsUserTracked reports whether the user's device list is tracked.
func (s *Store) IsUserTracked(userID string) bool {
	return s.tracked.IsTracked(userID)
}

// UsersForKeyQuery returns the tracked users whose device lists are
// outdated.
func (s *Store) UsersForKeyQuery() []string {
	return s.tracked.UsersForKeyQuery()
}

// HasUsersForKeyQuery reports whether any device list is outdated.
func (s *Store) HasUsersForKeyQuery() bool {
	return s.tracked.HasUsersForKeyQuery()
}

// TrackedUsers returns every tracked user.
func (s *Store) TrackedUsers() []string {
	return s.tracked.Users()
}
