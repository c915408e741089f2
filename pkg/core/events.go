package core

import "time"

// Event is the interface for all events.
type Event interface {
	eventMarker()
}

// TaskDropped is emitted when a single task still faults after batch
// splitting and is given up on.
type TaskDropped struct {
	Task      *Task
	Queue     string
	Error     error
	Timestamp time.Time
}

func (*TaskDropped) eventMarker() {}

// BatchSplit is emitted when a faulting batch is split in two.
type BatchSplit struct {
	Queue     string
	Size      int
	Error     error
	Timestamp time.Time
}

func (*BatchSplit) eventMarker() {}

// ContextPersisted is emitted after a callback context record is stored.
type ContextPersisted struct {
	ContextID string
	TaskCount int
	Timestamp time.Time
}

func (*ContextPersisted) eventMarker() {}

// ContextCompleted is emitted when the last job of a callback context reports in.
type ContextCompleted struct {
	ContextID string
	TaskID    string
	Timestamp time.Time
}

func (*ContextCompleted) eventMarker() {}

// ContextStalled is emitted for a callback context that is still incomplete
// after the stall threshold.
type ContextStalled struct {
	ContextID string
	Total     int
	Completed int
	Age       time.Duration
	Timestamp time.Time
}

func (*ContextStalled) eventMarker() {}

// JobStarted is emitted when a worker starts a task.
type JobStarted struct {
	Task      *Task
	Timestamp time.Time
}

func (*JobStarted) eventMarker() {}

// JobCompleted is emitted when a task completes successfully.
type JobCompleted struct {
	Task      *Task
	Duration  time.Duration
	Timestamp time.Time
}

func (*JobCompleted) eventMarker() {}

// JobFailed is emitted when a task fails permanently.
type JobFailed struct {
	Task      *Task
	Error     error
	Timestamp time.Time
}

func (*JobFailed) eventMarker() {}

// JobRetrying is emitted when a task is retried.
type JobRetrying struct {
	Task      *Task
	Attempt   int
	Error     error
	NextRunAt time.Time
	Timestamp time.Time
}

func (*JobRetrying) eventMarker() {}
