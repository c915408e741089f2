package core

import (
	"context"
	"time"
)

// Starter is the interface for starting workers.
type Starter interface {
	Start(ctx context.Context) error
}

// QueueBackend accepts batches of tasks addressed to a named queue.
// Insert returns an error wrapping ErrTransient, ErrTaskExists or
// ErrTaskTombstoned for faults that may be resolved by resubmitting a
// smaller batch. Any other error is final.
type QueueBackend interface {
	Insert(ctx context.Context, queue string, tasks []*Task, transactional bool) error
}

// TaskStorage is the worker side of the queue backend.
type TaskStorage interface {
	QueueBackend

	Dequeue(ctx context.Context, queues []string, workerID string) (*Task, error)
	Complete(ctx context.Context, taskID string, workerID string) error
	Fail(ctx context.Context, taskID string, workerID string, errMsg string, retryAt *time.Time) error
	GetTask(ctx context.Context, taskID string) (*Task, error)
	ReleaseStaleLocks(ctx context.Context, staleDuration time.Duration) (int64, error)
}

// UpdateFunc mutates a snapshot inside a store transaction.
type UpdateFunc func(s *Snapshot) error

// ContextStore is the persistence engine for callback contexts.
type ContextStore interface {
	// GetOrInsert creates the record if absent. An existing record is
	// returned unchanged.
	GetOrInsert(ctx context.Context, contextID string, snapshot Snapshot) (*ContextRecord, error)

	// Update applies fn as an atomic read-modify-write, retrying on
	// conflicting writes. The returned bool is true only for the update
	// that moved the record from incomplete to complete.
	Update(ctx context.Context, contextID string, fn UpdateFunc) (*ContextRecord, bool, error)

	// Get returns the record, or nil if it does not exist.
	Get(ctx context.Context, contextID string) (*ContextRecord, error)

	// ListIncomplete returns incomplete records created before olderThan.
	ListIncomplete(ctx context.Context, olderThan time.Time, limit int) ([]*ContextRecord, error)
}

// Emitter receives events.
type Emitter interface {
	Emit(e Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(e Event)

func (f EmitterFunc) Emit(e Event) { f(e) }

// NopEmitter discards events.
var NopEmitter Emitter = EmitterFunc(func(Event) {})
