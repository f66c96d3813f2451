// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package errors

import (
	stdliberrors "errors"
)

var (
	// ErrInvalidCapacity is returned when a buffer is created or resized with
	// a capacity that is not strictly positive.
	ErrInvalidCapacity = stdliberrors.New("invalid capacity")

	// ErrOutOfRange is returned when a logical offset does not address a
	// live element.
	ErrOutOfRange = stdliberrors.New("out of range")

	As     = stdliberrors.As
	Is     = stdliberrors.Is
	Join   = stdliberrors.Join
	New    = stdliberrors.New
	Unwrap = stdliberrors.Unwrap
)

func NewRetryable(text string) RetryableError {
	return &retryableError{text: text}
}

// MarkRetryable wraps err so that Retryable reports true for it while
// errors.Is/As still see the original chain.
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{text: err.Error(), cause: err}
}

func Retryable(err error) bool {
	var rerr RetryableError
	return As(err, &rerr)
}

type RetryableError interface {
	error
	Retryable()
}

type retryableError struct {
	text  string
	cause error
}

func (r *retryableError) Error() string {
	return r.text
}

func (r *retryableError) Unwrap() error {
	return r.cause
}

func (r *retryableError) Retryable() {}
