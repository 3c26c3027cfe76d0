////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package olm

import "time"

// Session is a pairwise ratchet with one remote identity key.
type Session struct {
	// SessionID is stable for the life of the session and identifies it
	// among the sessions of the same sender key.
	SessionID string `json:"session_id"`

	// SenderKey is the curve25519 identity key of the remote device.
	SenderKey string `json:"sender_key"`

	Pickle []byte `json:"pickle"`

	CreationTime time.Time `json:"creation_time"`
	LastUseTime  time.Time `json:"last_use_time"`
}

// Copy returns a deep copy of the session.
func (s *Session) Copy() *Session {
	c := *s
	c.Pickle = append([]byte(nil), s.Pickle...)
	return &c
}

// InboundGroupSession decrypts the messages one sender sends to a room. The
// triple (RoomID, SenderKey, SessionID) identifies it.
type InboundGroupSession struct {
	RoomID    string `json:"room_id"`
	SenderKey string `json:"sender_key"`
	SessionID string `json:"session_id"`

	// SigningKey is the ed25519 key the sender claimed when sharing.
	SigningKey string `json:"signing_key"`

	Pickle []byte `json:"pickle"`

	// ForwardingChains lists the curve25519 keys the session was forwarded
	// through, if it was not received directly.
	ForwardingChains []string `json:"forwarding_chains,omitempty"`

	// Imported is set for sessions restored from a key export or backup.
	Imported bool `json:"imported"`
}
