////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package olm holds the cryptographic objects the store persists. The store
// never interprets their cryptographic content: ratchet state arrives already
// pickled by the encryption layer and is kept as an opaque byte slice.
package olm

// IdentityKeys are the long-term public keys of a device.
type IdentityKeys struct {
	Curve25519 string `json:"curve25519"`
	Ed25519    string `json:"ed25519"`
}

// Account is the local device's long-term identity. Exactly one exists per
// store.
type Account struct {
	UserID       string       `json:"user_id"`
	DeviceID     string       `json:"device_id"`
	IdentityKeys IdentityKeys `json:"identity_keys"`

	// Pickle is the pickled account including one-time and fallback keys.
	Pickle []byte `json:"pickle"`

	// Shared is set once the device keys have been uploaded.
	Shared bool `json:"shared"`

	// UploadedKeyCount is the number of one-time keys the server holds.
	UploadedKeyCount uint64 `json:"uploaded_key_count"`
}
