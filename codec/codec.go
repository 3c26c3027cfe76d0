////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package codec turns the store's objects into stored records and back. Each
// object kind has its own Codec carrying the kind's current version and its
// upgrade table, so adding a kind or bumping one kind's layout never touches
// the others. Every record is wrapped in a versioned.Object envelope.
package codec

import (
	"encoding/json"
	"sync"
	"time"

	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/cryptostore/storage/storeErrors"
	"gitlab.com/elixxir/cryptostore/storage/versioned"
	"gitlab.com/xx_network/primitives/netTime"
)

// Kind names an object kind. It is stored in every envelope.
type Kind string

// Object kinds persisted by the crypto store.
const (
	Account             Kind = "account"
	Sessions            Kind = "sessions"
	InboundGroupSession Kind = "inboundGroupSession"
	UserDevices         Kind = "userDevices"
	UserIdentity        Kind = "userIdentity"
	TrackedUser         Kind = "trackedUser"
)

var registry = struct {
	sync.RWMutex
	versions map[Kind]uint64
}{versions: make(map[Kind]uint64)}

// Codec encodes and decodes values of one object kind.
type Codec[T any] struct {
	kind     Kind
	upgrades versioned.UpgradeTable
}

// New returns the codec for kind. The upgrade table's CurrentVersion is the
// version written by Encode; it panics if the table is malformed since that
// is a programming error.
func New[T any](kind Kind, upgrades versioned.UpgradeTable) *Codec[T] {
	if err := upgrades.Check(); err != nil {
		jww.FATAL.Panicf("Invalid upgrade table for %s: %+v", kind, err)
	}

	registry.Lock()
	registry.versions[kind] = upgrades.CurrentVersion
	registry.Unlock()

	return &Codec[T]{kind: kind, upgrades: upgrades}
}

// Kind returns the object kind this codec handles.
func (c *Codec[T]) Kind() Kind { return c.kind }

// Version returns the version Encode writes.
func (c *Codec[T]) Version() uint64 { return c.upgrades.CurrentVersion }

// Encode serializes v into an enveloped record.
func (c *Codec[T]) Encode(v T) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, storeErrors.New(storeErrors.Serialization,
			"encode "+string(c.kind), err)
	}

	obj := versioned.Object{
		Kind:      string(c.kind),
		Version:   c.upgrades.CurrentVersion,
		Timestamp: netTime.Now(),
		Data:      data,
	}

	return obj.Marshal(), nil
}

// Decode parses an enveloped record. Records of another kind, records
// written by a newer version and undecodable payloads are Deserialization
// errors. Older records are upgraded before decoding.
func (c *Codec[T]) Decode(b []byte) (T, error) {
	var result T
	op := "decode " + string(c.kind)

	obj := &versioned.Object{}
	if err := obj.Unmarshal(b); err != nil {
		return result, storeErrors.New(storeErrors.Deserialization, op, err)
	}

	if obj.Kind != string(c.kind) {
		return result, storeErrors.Errorf(storeErrors.Deserialization, op,
			"record holds kind %q", obj.Kind)
	}

	if obj.Version > c.upgrades.CurrentVersion {
		return result, storeErrors.Errorf(storeErrors.Deserialization, op,
			"unknown future version %d (supported up to %d)", obj.Version,
			c.upgrades.CurrentVersion)
	}

	obj, err := c.upgrades.Apply(obj)
	if err != nil {
		return result, storeErrors.New(storeErrors.Deserialization, op, err)
	}

	if err = json.Unmarshal(obj.Data, &result); err != nil {
		return result, storeErrors.New(storeErrors.Deserialization, op, err)
	}

	return result, nil
}

// Header describes a stored record without decoding its payload.
type Header struct {
	Kind      Kind
	Version   uint64
	Timestamp time.Time
	Size      int

	// Known is set when a codec for Kind is registered in this process, and
	// Current is that codec's version.
	Known   bool
	Current uint64
}

// Describe reads the envelope of a stored record.
func Describe(b []byte) (Header, error) {
	obj := versioned.Object{}
	if err := obj.Unmarshal(b); err != nil {
		return Header{}, storeErrors.New(storeErrors.Deserialization,
			"describe", err)
	}

	h := Header{
		Kind:      Kind(obj.Kind),
		Version:   obj.Version,
		Timestamp: obj.Timestamp,
		Size:      len(obj.Data),
	}

	registry.RLock()
	h.Current, h.Known = registry.versions[h.Kind]
	registry.RUnlock()

	return h, nil
}
