////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package olm

// CrossSigningKey is one of the cross-signing keys of a user.
type CrossSigningKey struct {
	UserID string            `json:"user_id"`
	Usage  []string          `json:"usage"`
	Keys   map[string]string `json:"keys"`

	// Signatures maps a signing user to key id to signature.
	Signatures map[string]map[string]string `json:"signatures,omitempty"`
}

// UserIdentity is the cross-signing identity of a user. Own is set for the
// local user's identity, which additionally carries the user-signing key.
type UserIdentity struct {
	UserID         string           `json:"user_id"`
	Own            bool             `json:"own"`
	MasterKey      CrossSigningKey  `json:"master_key"`
	SelfSigningKey CrossSigningKey  `json:"self_signing_key"`
	UserSigningKey *CrossSigningKey `json:"user_signing_key,omitempty"`

	// Verified is only meaningful for the own identity.
	Verified bool `json:"verified"`
}
