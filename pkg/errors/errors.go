package errors

import (
	"errors"
	"fmt"
)

// New returns an error with the given message.
func New(msg string) error {
	return errors.New(msg)
}

// ContextError annotates an error with the operation that caused it.
// The chain of contexts reads like a call stack when printed.
type ContextError struct {
	Context string
	Err     error
}

func (err ContextError) Error() string {
	return fmt.Sprintf("%s: %s", err.Context, err.Err)
}

func (err ContextError) Unwrap() error {
	return err.Err
}

// WithContext wraps err with a short description of the operation that
// failed. It returns nil if err is nil so that it can be used directly on
// return values.
func WithContext(err error, context string) error {
	if err == nil {
		return nil
	}
	return ContextError{Context: context, Err: err}
}

// RootCause returns the innermost error in a chain of ContextErrors.
func RootCause(err error) error {
	for {
		ctxErr, ok := err.(ContextError)
		if !ok {
			return err
		}
		err = ctxErr.Err
	}
}
