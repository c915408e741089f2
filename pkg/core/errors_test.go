package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoRetryError(t *testing.T) {
	originalErr := errors.New("permanent failure")
	wrapped := NoRetry(originalErr)

	var noRetryErr *NoRetryError
	assert.True(t, errors.As(wrapped, &noRetryErr))
	assert.Equal(t, originalErr, noRetryErr.Unwrap())
	assert.Contains(t, noRetryErr.Error(), "no retry")
	assert.Contains(t, noRetryErr.Error(), "permanent failure")
}

func TestRetryAfterError(t *testing.T) {
	originalErr := errors.New("temporary failure")
	delay := 5 * time.Second
	wrapped := RetryAfter(delay, originalErr)

	var retryErr *RetryAfterError
	assert.True(t, errors.As(wrapped, &retryErr))
	assert.Equal(t, originalErr, retryErr.Unwrap())
	assert.Equal(t, delay, retryErr.Delay)
	assert.Contains(t, retryErr.Error(), "retry after")
	assert.Contains(t, retryErr.Error(), "5s")
}

func TestIsInsertFault(t *testing.T) {
	assert.True(t, IsInsertFault(ErrTransient))
	assert.True(t, IsInsertFault(ErrTaskExists))
	assert.True(t, IsInsertFault(ErrTaskTombstoned))
	assert.True(t, IsInsertFault(fmt.Errorf("insert batch: %w", ErrTransient)))

	assert.False(t, IsInsertFault(nil))
	assert.False(t, IsInsertFault(errors.New("disk full")))
	assert.False(t, IsInsertFault(ErrConflict))
}

func TestErrorVariables(t *testing.T) {
	assert.Contains(t, ErrInvalidContext.Error(), "context id")
	assert.Contains(t, ErrNoCurrentJob.Error(), "no job")
	assert.Contains(t, ErrTaskExists.Error(), "already exists")
	assert.Contains(t, ErrTaskTombstoned.Error(), "tombstoned")
	assert.Contains(t, ErrTaskNotOwned.Error(), "not owned")
}
