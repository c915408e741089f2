package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jdziat/fanin/pkg/core"
	"github.com/jdziat/fanin/pkg/security"
)

// GormStorage implements core.TaskStorage and core.ContextStore using GORM.
type GormStorage struct {
	db              *gorm.DB
	conflictBackoff func() backoff.BackOff
	lockDuration    time.Duration
}

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB, opts ...StoreOption) *GormStorage {
	s := &GormStorage{
		db:              db,
		conflictBackoff: DefaultConflictBackoff,
		lockDuration:    5 * time.Minute,
	}
	for _, opt := range opts {
		opt.applyStore(s)
	}
	return s
}

// DB returns the underlying database handle.
func (s *GormStorage) DB() *gorm.DB {
	return s.db
}

// IsSQLite reports whether the storage runs on SQLite.
func (s *GormStorage) IsSQLite() bool {
	return s.db != nil && s.db.Dialector != nil && s.db.Dialector.Name() == "sqlite"
}

// Migrate creates the necessary tables.
func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.Task{}, &core.Tombstone{}, &core.ContextRecord{})
}

// Insert adds a batch of tasks to queue. The batch is rejected as a whole
// when any id is tombstoned or already queued. With transactional set the
// insert runs in one transaction; otherwise rows accepted before a failure
// stay inserted.
func (s *GormStorage) Insert(ctx context.Context, queue string, tasks []*core.Task, transactional bool) error {
	if len(tasks) == 0 {
		return nil
	}

	insert := func(tx *gorm.DB) error {
		ids := make([]string, len(tasks))
		seen := make(map[string]struct{}, len(tasks))
		for i, t := range tasks {
			t.Queue = queue
			if t.Status == "" {
				t.Status = core.StatusPending
			}
			if _, dup := seen[t.ID]; dup {
				return fmt.Errorf("%w: %s appears twice in batch", core.ErrTaskExists, t.ID)
			}
			seen[t.ID] = struct{}{}
			ids[i] = t.ID
		}

		var count int64
		if err := tx.Model(&core.Tombstone{}).Where("task_id IN ?", ids).Count(&count).Error; err != nil {
			return classify(err)
		}
		if count > 0 {
			return core.ErrTaskTombstoned
		}
		if err := tx.Model(&core.Task{}).Where("id IN ?", ids).Count(&count).Error; err != nil {
			return classify(err)
		}
		if count > 0 {
			return core.ErrTaskExists
		}

		return classify(tx.CreateInBatches(tasks, security.MaxBatchSize).Error)
	}

	db := s.db.WithContext(ctx)
	if transactional {
		return db.Transaction(insert)
	}
	return insert(db)
}

// Dequeue fetches and locks the next available task.
func (s *GormStorage) Dequeue(ctx context.Context, queues []string, workerID string) (*core.Task, error) {
	var task core.Task
	now := time.Now()
	lockUntil := now.Add(s.lockDuration)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.
			Where("queue IN ?", queues).
			Where("status = ?", core.StatusPending).
			Where("(run_at IS NULL OR run_at <= ?)", now).
			Where("(locked_until IS NULL OR locked_until < ?)", now).
			Order("priority DESC, created_at ASC")
		if !s.IsSQLite() {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		result := q.First(&task)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return nil
			}
			return result.Error
		}

		task.Status = core.StatusRunning
		task.LockedBy = workerID
		task.LockedUntil = &lockUntil
		task.StartedAt = &now
		task.Attempt++

		return tx.Save(&task).Error
	})

	if err != nil {
		return nil, err
	}
	if task.ID == "" {
		return nil, nil
	}
	return &task, nil
}

// Complete marks a task as completed and tombstones its id.
// Validates that the worker owns the task before completing.
func (s *GormStorage) Complete(ctx context.Context, taskID string, workerID string) error {
	now := time.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.
			Model(&core.Task{}).
			Where("id = ? AND locked_by = ?", taskID, workerID).
			Updates(map[string]any{
				"status":       core.StatusCompleted,
				"completed_at": now,
				"locked_by":    "",
				"locked_until": nil,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return core.ErrTaskNotOwned
		}

		var task core.Task
		if err := tx.Select("id", "queue").First(&task, "id = ?", taskID).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&core.Tombstone{TaskID: task.ID, Queue: task.Queue}).Error
	})
}

// Fail marks a task as failed, optionally scheduling a retry.
// Validates that the worker owns the task. Error messages are sanitized
// before storage.
func (s *GormStorage) Fail(ctx context.Context, taskID string, workerID string, errMsg string, retryAt *time.Time) error {
	updates := map[string]any{
		"last_error":   security.SanitizeErrorMessage(errMsg),
		"locked_by":    "",
		"locked_until": nil,
	}

	if retryAt != nil {
		updates["status"] = core.StatusPending
		updates["run_at"] = retryAt
	} else {
		updates["status"] = core.StatusFailed
		updates["completed_at"] = time.Now()
	}

	result := s.db.WithContext(ctx).
		Model(&core.Task{}).
		Where("id = ? AND locked_by = ?", taskID, workerID).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrTaskNotOwned
	}
	return nil
}

// ReleaseStaleLocks returns running tasks whose lock expired more than
// staleDuration ago to the pending state.
func (s *GormStorage) ReleaseStaleLocks(ctx context.Context, staleDuration time.Duration) (int64, error) {
	cutoff := time.Now().Add(-staleDuration)
	result := s.db.WithContext(ctx).
		Model(&core.Task{}).
		Where("status = ?", core.StatusRunning).
		Where("locked_until < ?", cutoff).
		Updates(map[string]any{
			"status":       core.StatusPending,
			"locked_by":    "",
			"locked_until": nil,
		})
	return result.RowsAffected, result.Error
}

// GetTask retrieves a task by ID.
func (s *GormStorage) GetTask(ctx context.Context, taskID string) (*core.Task, error) {
	var task core.Task
	err := s.db.WithContext(ctx).First(&task, "id = ?", taskID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// GetTasksByStatus retrieves tasks by status.
func (s *GormStorage) GetTasksByStatus(ctx context.Context, status core.TaskStatus, limit int) ([]*core.Task, error) {
	var tasks []*core.Task
	err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

// classify maps driver errors onto queue insertion faults.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", core.ErrTaskExists, err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unique constraint"), strings.Contains(msg, "duplicate key"):
		return fmt.Errorf("%w: %v", core.ErrTaskExists, err)
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "busy"),
		strings.Contains(msg, "deadlock"), strings.Contains(msg, "could not serialize"),
		strings.Contains(msg, "connection reset"), strings.Contains(msg, "bad connection"):
		return fmt.Errorf("%w: %v", core.ErrTransient, err)
	}
	return err
}
