package errors

import (
	"fmt"
	"strings"
)

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// ConfigError represents a missing or malformed checkout configuration.
// It is fatal before any network request is attempted.
type ConfigError struct {
	Reason string
}

func (err ConfigError) Error() string {
	return err.Reason
}

// AuthError represents a 401 or 403 response from the server. It is never
// retried since retrying with the same credentials can't succeed.
type AuthError struct {
	Endpoint   string
	StatusCode int
}

func (err AuthError) Error() string {
	return fmt.Sprintf("authentication failed (HTTP %d) for %s. "+
		"Check the credentials in the .repo file or the -u flag",
		err.StatusCode, err.Endpoint)
}

// NotFoundError represents a 404 response for a repository path or package.
type NotFoundError struct {
	Endpoint string
}

func (err NotFoundError) Error() string {
	return fmt.Sprintf("not found on server: %s", err.Endpoint)
}

// TransientError represents a network timeout or a 5xx response. It is
// retried with backoff until the retry budget is exhausted, at which point
// the last TransientError becomes fatal.
type TransientError struct {
	Endpoint string
	Err      error
}

func (err TransientError) Error() string {
	return fmt.Sprintf("transient failure for %s: %s", err.Endpoint, err.Err)
}

func (err TransientError) Unwrap() error {
	return err.Err
}

// ConflictError reports paths whose kind differs between the local checkout
// and the server. Without --force the whole operation aborts; with --force
// the conflicting paths are skipped.
type ConflictError struct {
	Paths []string
}

func (err ConflictError) Error() string {
	return fmt.Sprintf("file/directory conflicts at: %s. "+
		"Resolve them manually, or pass --force to skip the conflicting paths",
		strings.Join(err.Paths, ", "))
}

// PartialApplyError means a transfer succeeded on one side only, so the
// local checkout and the server no longer describe the same baseline. It is
// never retried automatically; the user has to reconcile by hand.
type PartialApplyError struct {
	Op     string
	Detail string
}

func (err PartialApplyError) Error() string {
	return fmt.Sprintf("%s applied on one side only (%s). "+
		"The checkout and the server are out of sync; run `status` and "+
		"reconcile manually before the next transfer", err.Op, err.Detail)
}
