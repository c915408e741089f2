package storage

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// StoreOption configures a GormStorage.
type StoreOption interface {
	applyStore(*GormStorage)
}

type storeOptionFunc func(*GormStorage)

func (f storeOptionFunc) applyStore(s *GormStorage) { f(s) }

// ConflictBackoff sets the backoff policy used to retry context updates
// that lost a race with a concurrent writer.
func ConflictBackoff(fn func() backoff.BackOff) StoreOption {
	return storeOptionFunc(func(s *GormStorage) {
		if fn != nil {
			s.conflictBackoff = fn
		}
	})
}

// LockDuration sets how long a dequeued task stays locked to its worker.
func LockDuration(d time.Duration) StoreOption {
	return storeOptionFunc(func(s *GormStorage) {
		if d > 0 {
			s.lockDuration = d
		}
	})
}

// DefaultConflictBackoff retries quickly with jitter for up to 30 seconds.
func DefaultConflictBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.RandomizationFactor = 0.5
	b.Multiplier = 2
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second
	b.Reset()
	return b
}
