// Package core provides the domain models and interfaces for the fanin packages.
package core

import (
	"time"
)

// TaskStatus represents the current state of a queued task.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
)

// DefaultQueue is used when a job does not name a queue.
const DefaultQueue = "default"

// Task is the durable descriptor of one job as it sits in a queue.
// Payload holds the JSON encoded job (arguments, options, callbacks).
type Task struct {
	ID          string     `gorm:"primaryKey;size:36"`
	Queue       string     `gorm:"index;size:255;default:'default'"`
	Target      string     `gorm:"index;size:255;not null"`
	Payload     []byte
	Priority    int        `gorm:"index;default:0"`
	Status      TaskStatus `gorm:"index;size:20;default:'pending'"`
	Attempt     int        `gorm:"default:0"`
	MaxRetries  int        `gorm:"default:2"`
	LastError   string     `gorm:"type:text"`
	RunAt       *time.Time `gorm:"index"`
	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time  `gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime"`
	LockedBy    string     `gorm:"size:255"`
	LockedUntil *time.Time `gorm:"index"`
}

// Tombstone marks a task id that already ran. Re-inserting a tombstoned id
// is rejected with ErrTaskTombstoned.
type Tombstone struct {
	TaskID    string    `gorm:"primaryKey;size:36"`
	Queue     string    `gorm:"size:255"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}
