////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package olm

import (
	"fmt"
	"sort"
)

// LocalTrust is the trust the local user placed in a device.
type LocalTrust uint8

const (
	Unset LocalTrust = iota
	Verified
	BlackListed
	Ignored
)

func (lt LocalTrust) String() string {
	switch lt {
	case Unset:
		return "Unset"
	case Verified:
		return "Verified"
	case BlackListed:
		return "BlackListed"
	case Ignored:
		return "Ignored"
	default:
		return fmt.Sprintf("Unknown LocalTrust %d", uint8(lt))
	}
}

// ReadOnlyDevice is a remote device as published in a device list.
type ReadOnlyDevice struct {
	UserID     string            `json:"user_id"`
	DeviceID   string            `json:"device_id"`
	Algorithms []string          `json:"algorithms"`
	Keys       map[string]string `json:"keys"`

	// Signatures maps a signing user to key id to signature.
	Signatures map[string]map[string]string `json:"signatures,omitempty"`

	DisplayName string     `json:"display_name,omitempty"`
	Trust       LocalTrust `json:"trust"`

	// Deleted is set once the device disappeared from the user's device
	// list. Such devices are kept so old messages can still be verified.
	Deleted bool `json:"deleted"`
}

// ReadOnlyUserDevices maps device ID to device for a single user.
type ReadOnlyUserDevices map[string]*ReadOnlyDevice

// Get returns the device with the given ID or nil.
func (ud ReadOnlyUserDevices) Get(deviceID string) *ReadOnlyDevice {
	return ud[deviceID]
}

// Keys returns the device IDs in sorted order.
func (ud ReadOnlyUserDevices) Keys() []string {
	keys := make([]string, 0, len(ud))
	for k := range ud {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Devices returns the devices sorted by device ID.
func (ud ReadOnlyUserDevices) Devices() []*ReadOnlyDevice {
	devices := make([]*ReadOnlyDevice, 0, len(ud))
	for _, k := range ud.Keys() {
		devices = append(devices, ud[k])
	}
	return devices
}
