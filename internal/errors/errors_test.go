package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncError_ErrorIncludesCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := New(KindIntegrity, "hash directory", cause)

	assert.Contains(t, err.Error(), "integrity")
	assert.Contains(t, err.Error(), "hash directory")
	assert.Contains(t, err.Error(), "disk full")
}

func TestSyncError_ErrorWithoutCause(t *testing.T) {
	err := New(KindInput, "missing absolute path", nil)
	assert.Equal(t, "input: missing absolute path", err.Error())
}

func TestSyncError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := New(KindWatcher, "subscribe failed", cause)
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestSyncError_IsMatchesByKindOnly(t *testing.T) {
	err := New(KindCapacity, "collection limit reached", nil)

	require.True(t, errors.Is(err, ErrCapacity))
	assert.False(t, errors.Is(err, ErrTransientStore))
}

func TestSyncError_IsIgnoresMessageAndCause(t *testing.T) {
	a := New(KindTransientStore, "dial failed", fmt.Errorf("x"))
	b := New(KindTransientStore, "totally different message", nil)
	assert.True(t, errors.Is(a, b))
}

func TestSyncError_IsRejectsNonSyncError(t *testing.T) {
	err := New(KindInput, "bad input", nil)
	assert.False(t, err.Is(fmt.Errorf("plain error")))
}
