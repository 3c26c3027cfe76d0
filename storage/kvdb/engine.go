////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package kvdb

import (
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/cryptostore/storage/storeErrors"
	"gitlab.com/elixxir/ekv"
)

// Engine is the key-value storage the database is built on. NewEngine
// adapts any ekv.KeyValue to it. Single-key writes must be atomic; the
// database provides multi-key atomicity on top.
type Engine interface {
	GetBytes(key string) ([]byte, error)
	SetBytes(key string, data []byte) error
	Delete(key string) error
}

// NewEngine stores raw records in an ekv.KeyValue.
func NewEngine(kv ekv.KeyValue) Engine {
	return &kvEngine{kv: kv}
}

type kvEngine struct {
	kv ekv.KeyValue
}

func (e *kvEngine) GetBytes(key string) ([]byte, error) {
	b := &blob{}
	if err := e.kv.Get(key, b); err != nil {
		return nil, err
	}
	return b.data, nil
}

func (e *kvEngine) SetBytes(key string, data []byte) error {
	return e.kv.Set(key, &blob{data: append([]byte(nil), data...)})
}

func (e *kvEngine) Delete(key string) error {
	return e.kv.Delete(key)
}

// blob passes a record through ekv's Marshaler and Unmarshaler unchanged.
type blob struct {
	data []byte
}

func (b *blob) Marshal() []byte { return b.data }

func (b *blob) Unmarshal(data []byte) error {
	b.data = append([]byte(nil), data...)
	return nil
}

// OpenFilestore opens the database in an encrypted ekv filestore rooted at
// baseDir.
func OpenFilestore(baseDir, password, name string, version uint64,
	migrate Migration) (*DB, error) {
	fs, err := ekv.NewFilestore(baseDir, password)
	if err != nil {
		return nil, storeErrors.New(storeErrors.Open, "open filestore",
			errors.WithMessagef(err, "failed to create filestore at %s",
				baseDir))
	}
	jww.DEBUG.Printf("Opened filestore at %s for database %s", baseDir, name)
	return Open(NewEngine(fs), name, version, migrate)
}

// OpenMemory opens the database in a fresh in-memory ekv store.
func OpenMemory(name string, version uint64, migrate Migration) (*DB, error) {
	return Open(NewEngine(ekv.MakeMemstore()), name, version, migrate)
}

// get reads key from the engine. A key that does not exist is reported with
// found == false and no error.
func get(engine Engine, key string) (data []byte, found bool, err error) {
	data, err = engine.GetBytes(key)
	if err != nil {
		if !ekv.Exists(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}
