////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package storeErrors defines the kinds of failure the crypto store reports.
// Absence of a record is never one of them; lookups that find nothing return
// a nil result and a nil error.
package storeErrors

import (
	"errors"
	"fmt"
)

// Kind classifies a store failure.
type Kind uint8

const (
	// Open means the underlying storage could not be allocated or opened,
	// or the schema migration failed.
	Open Kind = iota + 1

	// Access means the operation is not permitted by the current
	// transaction, such as a write inside a read-only transaction or use of
	// a partition outside the transaction's scope.
	Access

	// Serialization means an object could not be encoded for storage.
	Serialization

	// Deserialization means stored bytes could not be decoded, including
	// envelopes written by an unknown future version.
	Deserialization

	// Store means the underlying engine failed an I/O operation or the
	// transaction could not be completed.
	Store
)

func (k Kind) String() string {
	switch k {
	case Open:
		return "OpenError"
	case Access:
		return "AccessError"
	case Serialization:
		return "SerializationError"
	case Deserialization:
		return "DeserializationError"
	case Store:
		return "StoreError"
	default:
		return fmt.Sprintf("UnknownError(%d)", uint8(k))
	}
}

// Sentinels for use with errors.Is.
var (
	ErrOpen            = &Error{Kind: Open}
	ErrAccess          = &Error{Kind: Access}
	ErrSerialization   = &Error{Kind: Serialization}
	ErrDeserialization = &Error{Kind: Deserialization}
	ErrStore           = &Error{Kind: Store}
)

// Error is a classified store failure. Op names the operation that failed
// and Err carries the underlying cause, if any.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New returns an error of the given kind for the operation op, wrapping err.
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf returns an error of the given kind whose cause is the formatted
// message.
func Errorf(kind Kind, op string, format string, a ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, a...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return e.Kind.String()
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	case e.Op == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind. This lets the
// package sentinels match any error of their kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or 0 if there
// is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
