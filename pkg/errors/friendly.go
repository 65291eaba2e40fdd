package errors

import "fmt"

// FriendlyError is an error whose message is meant to be shown to the user
// directly, without the context chain that the internal errors carry.
type FriendlyError struct {
	msg string
}

func (err FriendlyError) Error() string {
	return err.msg
}

// FriendlyMessage returns the user-facing message.
func (err FriendlyError) FriendlyMessage() string {
	return err.msg
}

// NewFriendlyError creates an error that is printed to the user as-is.
func NewFriendlyError(format string, args ...interface{}) error {
	return FriendlyError{msg: fmt.Sprintf(format, args...)}
}
