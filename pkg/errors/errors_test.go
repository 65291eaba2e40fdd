package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithContext(t *testing.T) {
	assert.NoError(t, WithContext(nil, "noop"))

	root := New("connection refused")
	wrapped := WithContext(WithContext(root, "list tree"), "fetch remote snapshot")
	assert.EqualError(t, wrapped, "fetch remote snapshot: list tree: connection refused")
	assert.Equal(t, root, RootCause(wrapped))
}

func TestRootCausePassthrough(t *testing.T) {
	err := AuthError{Endpoint: "http://localhost:4502", StatusCode: 401}
	assert.Equal(t, error(err), RootCause(err))

	wrapped := WithContext(err, "list tree")
	assert.Equal(t, error(err), RootCause(wrapped))
}
