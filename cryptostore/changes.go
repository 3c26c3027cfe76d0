////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cryptostore

import (
	"context"

	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/cryptostore/olm"
	"gitlab.com/elixxir/cryptostore/storage/account"
	"gitlab.com/elixxir/cryptostore/storage/device"
	"gitlab.com/elixxir/cryptostore/storage/groupSession"
	"gitlab.com/elixxir/cryptostore/storage/kvdb"
)

// DeviceChanges groups device updates by their origin.
type DeviceChanges struct {
	New     []*olm.ReadOnlyDevice
	Changed []*olm.ReadOnlyDevice
	Deleted []*olm.ReadOnlyDevice
}

// IdentityChanges groups identity updates by their origin.
type IdentityChanges struct {
	New     []*olm.UserIdentity
	Changed []*olm.UserIdentity
}

// Changes is a batch of updates produced by one step of the encryption
// layer, such as handling a sync response. SaveChanges writes it in one
// transaction.
type Changes struct {
	Account              *olm.Account
	Sessions             []*olm.Session
	InboundGroupSessions []*olm.InboundGroupSession
	Devices              DeviceChanges
	Identities           IdentityChanges
}

// IsEmpty reports whether the batch holds no update.
func (c Changes) IsEmpty() bool {
	return c.Account == nil && len(c.Sessions) == 0 &&
		len(c.InboundGroupSessions) == 0 && !c.hasDevices() &&
		!c.hasIdentities()
}

func (c Changes) hasDevices() bool {
	return len(c.Devices.New)+len(c.Devices.Changed)+
		len(c.Devices.Deleted) > 0
}

func (c Changes) hasIdentities() bool {
	return len(c.Identities.New)+len(c.Identities.Changed) > 0
}

// partitions returns the partitions the batch writes, sessions excluded.
func (c Changes) partitions() []string {
	var partitions []string
	if c.Account != nil {
		partitions = append(partitions, account.Partition)
	}
	if len(c.InboundGroupSessions) > 0 {
		partitions = append(partitions, groupSession.Partition)
	}
	if c.hasDevices() {
		partitions = append(partitions, device.DevicesPartition)
	}
	if c.hasIdentities() {
		partitions = append(partitions, device.IdentitiesPartition)
	}
	return partitions
}

// SaveChanges writes every update of the batch atomically. Deleted devices
// are removed after new and changed devices are saved.
func (s *Store) SaveChanges(ctx context.Context, changes Changes) error {
	if changes.IsEmpty() {
		return nil
	}

	write := func(txn *kvdb.Txn) error {
		if changes.Account != nil {
			if err := account.Save(txn, changes.Account); err != nil {
				return err
			}
		}

		for _, gs := range changes.InboundGroupSessions {
			if _, err := groupSession.Save(txn, gs); err != nil {
				return err
			}
		}

		if changes.hasDevices() {
			devices := append(append([]*olm.ReadOnlyDevice(nil),
				changes.Devices.New...), changes.Devices.Changed...)
			if err := device.SaveDevices(txn, devices); err != nil {
				return err
			}
			for _, d := range changes.Devices.Deleted {
				if err := device.DeleteDevice(txn, d); err != nil {
					return err
				}
			}
		}

		if changes.hasIdentities() {
			identities := append(append([]*olm.UserIdentity(nil),
				changes.Identities.New...), changes.Identities.Changed...)
			if err := device.SaveIdentities(txn, identities); err != nil {
				return err
			}
		}

		return nil
	}

	var err error
	if len(changes.Sessions) > 0 {
		err = s.updateWithSessions(ctx, changes.Sessions, write,
			changes.partitions()...)
	} else {
		err = s.update(ctx, write, changes.partitions()...)
	}
	if err != nil {
		return err
	}

	jww.DEBUG.Printf("Saved changes: %d sessions, %d group sessions, "+
		"%d/%d/%d new/changed/deleted devices", len(changes.Sessions),
		len(changes.InboundGroupSessions), len(changes.Devices.New),
		len(changes.Devices.Changed), len(changes.Devices.Deleted))
	return nil
}
