package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jdziat/fanin/pkg/core"
)

// GetOrInsert stores snapshot under contextID unless a record already
// exists, then returns the stored record.
func (s *GormStorage) GetOrInsert(ctx context.Context, contextID string, snapshot core.Snapshot) (*core.ContextRecord, error) {
	rec := &core.ContextRecord{
		ID:       contextID,
		Snapshot: snapshot.Clone(),
		Version:  1,
	}
	if rec.Snapshot.IsComplete() {
		now := time.Now()
		rec.Completed = true
		rec.CompletedAt = &now
	}

	db := s.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("fanin: persist context %s: %w", contextID, err)
	}

	var stored core.ContextRecord
	if err := db.First(&stored, "id = ?", contextID).Error; err != nil {
		return nil, fmt.Errorf("fanin: load context %s: %w", contextID, err)
	}
	return &stored, nil
}

// Update runs fn against the current snapshot and writes the result only if
// no other writer bumped the version in between. Lost races are retried
// with the conflict backoff policy.
func (s *GormStorage) Update(ctx context.Context, contextID string, fn core.UpdateFunc) (*core.ContextRecord, bool, error) {
	var (
		out          *core.ContextRecord
		completedNow bool
	)

	op := func() error {
		rec, flipped, err := s.tryUpdate(ctx, contextID, fn)
		if err != nil {
			if errors.Is(err, core.ErrConflict) {
				return err
			}
			return backoff.Permanent(err)
		}
		out, completedNow = rec, flipped
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(s.conflictBackoff(), ctx)); err != nil {
		return nil, false, err
	}
	return out, completedNow, nil
}

func (s *GormStorage) tryUpdate(ctx context.Context, contextID string, fn core.UpdateFunc) (*core.ContextRecord, bool, error) {
	db := s.db.WithContext(ctx)

	var cur core.ContextRecord
	if err := db.First(&cur, "id = ?", contextID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, fmt.Errorf("%w: %s", core.ErrContextNotFound, contextID)
		}
		return nil, false, classify(err)
	}

	next := cur
	next.Snapshot = cur.Snapshot.Clone()
	if err := fn(&next.Snapshot); err != nil {
		return nil, false, err
	}
	next.Version = cur.Version + 1

	completedNow := false
	if !cur.Completed && next.Snapshot.IsComplete() {
		now := time.Now()
		next.Completed = true
		next.CompletedAt = &now
		completedNow = true
	}

	result := db.Model(&core.ContextRecord{}).
		Where("id = ? AND version = ?", contextID, cur.Version).
		Select("Snapshot", "Version", "Completed", "CompletedAt", "UpdatedAt").
		Updates(&next)
	if result.Error != nil {
		if errors.Is(classify(result.Error), core.ErrTransient) {
			return nil, false, core.ErrConflict
		}
		return nil, false, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, false, core.ErrConflict
	}
	return &next, completedNow, nil
}

// Get returns the context record, or nil if it does not exist.
func (s *GormStorage) Get(ctx context.Context, contextID string) (*core.ContextRecord, error) {
	var rec core.ContextRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", contextID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListIncomplete returns incomplete contexts created before olderThan,
// oldest first.
func (s *GormStorage) ListIncomplete(ctx context.Context, olderThan time.Time, limit int) ([]*core.ContextRecord, error) {
	var recs []*core.ContextRecord
	q := s.db.WithContext(ctx).
		Where("completed = ?", false).
		Where("created_at < ?", olderThan).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&recs).Error
	return recs, err
}

var (
	_ core.TaskStorage  = (*GormStorage)(nil)
	_ core.ContextStore = (*GormStorage)(nil)
)
