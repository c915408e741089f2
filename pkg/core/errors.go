package core

import (
	"errors"
	"fmt"
	"time"
)

// Construction errors
var (
	ErrInvalidContext    = errors.New("fanin: callback job requires a context id")
	ErrNoCurrentJob      = errors.New("fanin: no job is currently executing")
	ErrContextStarted    = errors.New("fanin: context already started")
	ErrContextNotFound   = errors.New("fanin: context record not found")
	ErrUnknownTarget     = errors.New("fanin: no function registered for target")
	ErrInvalidTargetName = errors.New("fanin: invalid target name (must be alphanumeric, start with letter)")
	ErrTargetNameTooLong = errors.New("fanin: target name too long")
	ErrInvalidQueueName  = errors.New("fanin: invalid queue name")
	ErrQueueNameTooLong  = errors.New("fanin: queue name too long")
	ErrPayloadTooLarge   = errors.New("fanin: task payload exceeds size limit")
	ErrTaskNotOwned      = errors.New("fanin: task not owned by this worker")
)

// Queue insertion faults. Batches failing with one of these are split
// and retried by the batch inserter.
var (
	ErrTransient      = errors.New("fanin: transient queue error")
	ErrTaskExists     = errors.New("fanin: task with this id already exists")
	ErrTaskTombstoned = errors.New("fanin: task id is tombstoned")
)

// ErrConflict is returned by a store when a concurrent writer changed the
// record between read and write. Stores retry it internally.
var ErrConflict = errors.New("fanin: concurrent update conflict")

// IsInsertFault reports whether err is a queue fault handled by batch splitting.
func IsInsertFault(err error) bool {
	return errors.Is(err, ErrTransient) ||
		errors.Is(err, ErrTaskExists) ||
		errors.Is(err, ErrTaskTombstoned)
}

// NoRetryError indicates an error that should not be retried.
type NoRetryError struct {
	Err error
}

func (e *NoRetryError) Error() string {
	return fmt.Sprintf("no retry: %v", e.Err)
}

func (e *NoRetryError) Unwrap() error {
	return e.Err
}

// NoRetry wraps an error to indicate it should not be retried.
func NoRetry(err error) error {
	return &NoRetryError{Err: err}
}

// RetryAfterError indicates an error that should be retried after a delay.
type RetryAfterError struct {
	Err   error
	Delay time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("retry after %v: %v", e.Delay, e.Err)
}

func (e *RetryAfterError) Unwrap() error {
	return e.Err
}

// RetryAfter wraps an error to indicate it should be retried after a delay.
func RetryAfter(d time.Duration, err error) error {
	return &RetryAfterError{Err: err, Delay: d}
}
