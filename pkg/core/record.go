package core

import (
	"slices"
	"time"
)

// Snapshot is the persisted state of a callback context.
type Snapshot struct {
	TaskIDs          []string       `json:"task_ids"`
	CompletedTaskIDs []string       `json:"completed_task_ids"`
	OnComplete       string         `json:"on_complete,omitempty"`
	OnCompleteArgs   []any          `json:"on_complete_args"`
	OnCompleteKwargs map[string]any `json:"on_complete_kwargs"`
}

// MarkCompleted records taskID as completed. Returns false when the id was
// already recorded, so duplicate deliveries do not count twice.
func (s *Snapshot) MarkCompleted(taskID string) bool {
	if slices.Contains(s.CompletedTaskIDs, taskID) {
		return false
	}
	s.CompletedTaskIDs = append(s.CompletedTaskIDs, taskID)
	return true
}

// IsComplete reports whether as many jobs reported in as were submitted.
func (s *Snapshot) IsComplete() bool {
	return len(s.CompletedTaskIDs) >= len(s.TaskIDs)
}

// Clone returns a deep copy of the id sets. Callback arguments are shared.
func (s Snapshot) Clone() Snapshot {
	s.TaskIDs = slices.Clone(s.TaskIDs)
	s.CompletedTaskIDs = slices.Clone(s.CompletedTaskIDs)
	return s
}

// ContextRecord is the durable record of a callback context, keyed by context id.
// Version is bumped on every write and guards concurrent updates.
type ContextRecord struct {
	ID          string     `gorm:"primaryKey;size:64"`
	Snapshot    Snapshot   `gorm:"serializer:json;type:text"`
	Version     int64      `gorm:"not null;default:1"`
	Completed   bool       `gorm:"index;default:false"`
	CompletedAt *time.Time
	CreatedAt   time.Time `gorm:"index;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}
