////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package kvdb

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Key layout inside the engine:
//
//	<db>/<partition>/<base64url(key)>      partition records
//	<db>/<partition>#keys                  key index header
//	<db>/<partition>#page/<n>              key index page n
//	<db>/<partition>#loc/<base64url(key)>  index page holding a key
//	<db>/_meta/<key>                       schema version, partition registry
//	<db>/_journal                          undo journal of an in-flight commit
//
// Record keys are base64url encoded so caller supplied identifiers may
// contain any character. '#' never appears in base64url and partition names
// may not start with '_', so the spaces cannot collide.
const (
	PrefixSeparator = "/"
	indexSuffix     = "#keys"
	pageInfix       = "#page"
	locationInfix   = "#loc"
	metaPrefix      = "_meta"
	journalName     = "_journal"
)

func makeKey(db, partition, key string) string {
	return db + PrefixSeparator + partition + PrefixSeparator +
		base64.RawURLEncoding.EncodeToString([]byte(key))
}

func makeIndexKey(db, partition string) string {
	return db + PrefixSeparator + partition + indexSuffix
}

func makePageKey(db, partition string, n int) string {
	return db + PrefixSeparator + partition + pageInfix + PrefixSeparator +
		strconv.Itoa(n)
}

func makeLocationKey(db, partition, key string) string {
	return db + PrefixSeparator + partition + locationInfix +
		PrefixSeparator + base64.RawURLEncoding.EncodeToString([]byte(key))
}

func makeMetaKey(db, key string) string {
	return db + PrefixSeparator + metaPrefix + PrefixSeparator + key
}

func makeJournalKey(db string) string {
	return db + PrefixSeparator + journalName
}

// checkName validates a database or partition name.
func checkName(kind, name string) error {
	switch {
	case name == "":
		return errors.Errorf("%s name may not be empty", kind)
	case strings.HasPrefix(name, "_"):
		return errors.Errorf("%s name %q may not start with '_'", kind, name)
	case strings.ContainsAny(name, PrefixSeparator+"#"):
		return errors.Errorf("%s name %q may not contain '/' or '#'",
			kind, name)
	}
	return nil
}
