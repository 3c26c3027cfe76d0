////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package versioned

import (
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Upgrade functions must be of this type. An upgrade receives an object at
// version N and returns the same object rewritten at version N+1.
type Upgrade func(oldObject *Object) (*Object, error)

// UpgradeTable lists the upgrade functions for one object kind. Table[N]
// upgrades version N to N+1, so len(Table) must equal CurrentVersion.
type UpgradeTable struct {
	CurrentVersion uint64
	Table          []Upgrade
}

// Check returns an error if the table cannot upgrade every version below
// CurrentVersion.
func (ut UpgradeTable) Check() error {
	if uint64(len(ut.Table)) != ut.CurrentVersion {
		return errors.Errorf("upgrade table length (%d) does not match "+
			"current version (%d)", len(ut.Table), ut.CurrentVersion)
	}
	return nil
}

// Apply runs every upgrade needed to bring obj to CurrentVersion. Objects
// already at CurrentVersion are returned untouched. An object newer than
// CurrentVersion is an error: it was written by a newer release and its
// layout is unknown.
func (ut UpgradeTable) Apply(obj *Object) (*Object, error) {
	if err := ut.Check(); err != nil {
		return nil, err
	}
	if obj.Version > ut.CurrentVersion {
		return nil, errors.Errorf("object version %d is newer than the "+
			"supported version %d", obj.Version, ut.CurrentVersion)
	}

	initialVersion := obj.Version
	result := obj
	for result.Version < ut.CurrentVersion {
		oldVersion := result.Version
		upgraded, err := ut.Table[oldVersion](result)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to upgrade %s "+
				"from version %d, initial version %d", obj.Kind, oldVersion,
				initialVersion)
		}
		if upgraded == nil || upgraded.Version != oldVersion+1 {
			return nil, errors.Errorf("upgrade of %s from version %d did "+
				"not produce version %d", obj.Kind, oldVersion, oldVersion+1)
		}
		result = upgraded
	}

	if initialVersion != result.Version {
		jww.TRACE.Printf("upgraded %s from version %d to %d", obj.Kind,
			initialVersion, result.Version)
	}

	return result, nil
}
