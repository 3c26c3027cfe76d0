////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cryptostore

import (
	"encoding/json"
)

// Params configures a Store.
type Params struct {
	// Name is the database name inside the storage directory. One database
	// holds the state of one local account.
	Name string

	// StorageDir is the directory of the encrypted filestore. An empty
	// directory keeps the database in memory.
	StorageDir string

	// Password encrypts the filestore.
	Password string `json:"-"`
}

// GetDefaultParams returns the default parameters: an in-memory database
// named "cryptostore".
func GetDefaultParams() Params {
	return Params{
		Name: "cryptostore",
	}
}

func (p Params) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// GetParameters returns the default parameters, or override with given
// parameters, if set.
func GetParameters(params string) (Params, error) {
	p := GetDefaultParams()
	if len(params) > 0 {
		err := json.Unmarshal([]byte(params), &p)
		if err != nil {
			return Params{}, err
		}
	}
	return p, nil
}
