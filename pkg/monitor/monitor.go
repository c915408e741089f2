// Package monitor watches callback contexts that never finish.
//
// A context whose jobs were dropped, or failed permanently, never reaches
// completion and its on_complete callback never runs. StallMonitor sweeps
// the context store on a cron schedule and reports such contexts.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/jdziat/fanin/pkg/core"
)

// DefaultSchedule runs a sweep every minute.
const DefaultSchedule = "@every 1m"

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// Option configures a StallMonitor.
type Option func(*StallMonitor)

// Schedule sets the cron expression for sweeps.
func Schedule(expr string) Option {
	return func(m *StallMonitor) { m.schedule = expr }
}

// Threshold sets how old an incomplete context must be to count as stalled.
func Threshold(d time.Duration) Option {
	return func(m *StallMonitor) {
		if d > 0 {
			m.threshold = d
		}
	}
}

// Limit caps the number of contexts reported per sweep.
func Limit(n int) Option {
	return func(m *StallMonitor) {
		if n > 0 {
			m.limit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *StallMonitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithEmitter sets where ContextStalled events go.
func WithEmitter(e core.Emitter) Option {
	return func(m *StallMonitor) {
		if e != nil {
			m.emitter = e
		}
	}
}

// StallMonitor reports callback contexts left incomplete past a threshold.
type StallMonitor struct {
	store     core.ContextStore
	schedule  string
	threshold time.Duration
	limit     int
	logger    *slog.Logger
	emitter   core.Emitter
	now       func() time.Time
}

// New creates a monitor over store.
func New(store core.ContextStore, opts ...Option) *StallMonitor {
	m := &StallMonitor{
		store:     store,
		schedule:  DefaultSchedule,
		threshold: time.Hour,
		limit:     100,
		logger:    slog.Default(),
		emitter:   core.NopEmitter,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Check runs one sweep and returns the stalled contexts it reported.
func (m *StallMonitor) Check(ctx context.Context) ([]*core.ContextRecord, error) {
	now := m.now()
	recs, err := m.store.ListIncomplete(ctx, now.Add(-m.threshold), m.limit)
	if err != nil {
		return nil, fmt.Errorf("fanin: list incomplete contexts: %w", err)
	}

	for _, rec := range recs {
		age := now.Sub(rec.CreatedAt)
		m.logger.Warn("callback context stalled",
			slog.String("context_id", rec.ID),
			slog.Int("total", len(rec.Snapshot.TaskIDs)),
			slog.Int("completed", len(rec.Snapshot.CompletedTaskIDs)),
			slog.Duration("age", age),
		)
		m.emitter.Emit(&core.ContextStalled{
			ContextID: rec.ID,
			Total:     len(rec.Snapshot.TaskIDs),
			Completed: len(rec.Snapshot.CompletedTaskIDs),
			Age:       age,
			Timestamp: now,
		})
	}
	return recs, nil
}

// Start runs sweeps on the schedule until ctx is cancelled.
func (m *StallMonitor) Start(ctx context.Context) error {
	sched, err := cronParser.Parse(m.schedule)
	if err != nil {
		return fmt.Errorf("fanin: invalid stall monitor schedule %q: %w", m.schedule, err)
	}

	c := cronlib.New()
	c.Schedule(sched, cronlib.FuncJob(func() {
		if _, err := m.Check(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error("stall sweep failed", slog.String("error", err.Error()))
		}
	}))
	c.Start()
	m.logger.Info("stall monitor started",
		slog.String("schedule", m.schedule),
		slog.Duration("threshold", m.threshold),
	)

	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

var _ core.Starter = (*StallMonitor)(nil)
