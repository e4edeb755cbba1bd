// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package rpc

import (
	"errors"
	"fmt"
)

// Decode error kinds. Match them with errors.Is.
var (
	ErrMissingField = errors.New("missing field")
	ErrTypeMismatch = errors.New("type mismatch")
	ErrMalformed    = errors.New("malformed JSON")
)

// DecodeError is returned when an entity cannot be built from its JSON form.
type DecodeError struct {
	// Entity is the name of the entity being decoded.
	Entity string
	// Field is the top-level member at fault, empty for the document root.
	Field string
	// Kind is one of ErrMissingField, ErrTypeMismatch or ErrMalformed.
	Kind error
	// Err is the underlying decoder error, if any.
	Err error
}

func (e *DecodeError) Error() string {
	where := e.Entity
	if e.Field != "" {
		where = fmt.Sprintf("%s.%s", e.Entity, e.Field)
	}
	if e.Err != nil {
		return fmt.Sprintf("cannot decode %s: %v: %v", where, e.Kind, e.Err)
	}
	return fmt.Sprintf("cannot decode %s: %v", where, e.Kind)
}

// Unwrap exposes the kind and the cause. A missing field is also reported as
// a type mismatch: an absent member is not the object it should have been.
func (e *DecodeError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Kind == ErrMissingField {
		errs = append(errs, ErrTypeMismatch)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
