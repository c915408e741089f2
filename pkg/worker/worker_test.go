package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/fanin/pkg/core"
	"github.com/jdziat/fanin/pkg/job"
	"github.com/jdziat/fanin/pkg/registry"
)

// memStorage is an in-memory TaskStorage recording worker calls.
type memStorage struct {
	mu        sync.Mutex
	pending   []*core.Task
	completed []string
	failed    map[string]*time.Time
	failMsg   map[string]string
}

func newMemStorage() *memStorage {
	return &memStorage{failed: map[string]*time.Time{}, failMsg: map[string]string{}}
}

func (m *memStorage) Insert(_ context.Context, queue string, tasks []*core.Task, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tasks {
		t.Queue = queue
		m.pending = append(m.pending, t)
	}
	return nil
}

func (m *memStorage) Dequeue(_ context.Context, _ []string, workerID string) (*core.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return nil, nil
	}
	t := m.pending[0]
	m.pending = m.pending[1:]
	t.Attempt++
	t.LockedBy = workerID
	return t, nil
}

func (m *memStorage) Complete(_ context.Context, taskID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, taskID)
	return nil
}

func (m *memStorage) Fail(_ context.Context, taskID, _ string, errMsg string, retryAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[taskID] = retryAt
	m.failMsg[taskID] = errMsg
	return nil
}

func (m *memStorage) GetTask(context.Context, string) (*core.Task, error) { return nil, nil }

func (m *memStorage) ReleaseStaleLocks(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

func (m *memStorage) completedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.completed...)
}

type recorder struct {
	mu     sync.Mutex
	events []core.Event
}

func (r *recorder) Emit(e core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func toTask(t *testing.T, j *job.Job) *core.Task {
	t.Helper()
	task, err := j.ToTask()
	require.NoError(t, err)
	task.Attempt = 1
	return task
}

func TestNewWorker_Defaults(t *testing.T) {
	w := NewWorker(newMemStorage(), registry.New())
	cfg := w.Config()

	assert.Equal(t, map[string]int{core.DefaultQueue: DefaultConcurrency}, cfg.Queues)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)
	assert.NotEmpty(t, cfg.WorkerID)
	require.NotNil(t, cfg.StorageRetry)
	require.NotNil(t, cfg.DequeueRetry)
	assert.Equal(t, 3, cfg.DequeueRetry.MaxAttempts)
}

func TestConcurrency_ClampedToRange(t *testing.T) {
	config := WorkerConfig{Queues: map[string]int{"default": 1, "high": 1}}

	Concurrency(5).ApplyWorker(&config)
	assert.Equal(t, 5, config.Queues["default"])
	assert.Equal(t, 5, config.Queues["high"])

	Concurrency(5000).ApplyWorker(&config)
	assert.Equal(t, 1000, config.Queues["default"])

	Concurrency(0).ApplyWorker(&config)
	assert.Equal(t, 1, config.Queues["default"])
}

func TestConcurrency_AppliesToDefaultQueueWhenNoneConfigured(t *testing.T) {
	w := NewWorker(newMemStorage(), registry.New(), Concurrency(4))
	assert.Equal(t, map[string]int{core.DefaultQueue: 4}, w.Config().Queues)

	// an explicit queue list wins over the default queue
	w = NewWorker(newMemStorage(), registry.New(), Concurrency(4), WorkerQueue("urgent", Concurrency(2)))
	assert.Equal(t, map[string]int{"urgent": 2}, w.Config().Queues)
}

func TestWorkerQueue_ScopedConcurrency(t *testing.T) {
	config := WorkerConfig{}

	WorkerQueue("default").ApplyWorker(&config)
	WorkerQueue("critical", Concurrency(20)).ApplyWorker(&config)

	assert.Equal(t, DefaultConcurrency, config.Queues["default"])
	assert.Equal(t, 20, config.Queues["critical"])
}

func TestOptions(t *testing.T) {
	config := WorkerConfig{}
	PollInterval(time.Second).ApplyWorker(&config)
	PollInterval(0).ApplyWorker(&config)
	WorkerID("w-1").ApplyWorker(&config)
	StaleLockInterval(0).ApplyWorker(&config)

	assert.Equal(t, time.Second, config.PollInterval)
	assert.Equal(t, "w-1", config.WorkerID)
	assert.Zero(t, config.StaleLockInterval)
}

func TestProcess_SuccessFiresHookWithCurrentJob(t *testing.T) {
	store := newMemStorage()
	reg := registry.New()
	rec := &recorder{}

	var ran []any
	reg.Register("work", func(_ context.Context, args []any, _ map[string]any) error {
		ran = args
		return nil
	})
	var hooked *job.Job
	reg.RegisterHook("done", func(_ context.Context, current *job.Job) error {
		hooked = current
		return nil
	})

	j, err := job.NewCallback("work", "ctx-1", []any{"x"}, nil)
	require.NoError(t, err)
	j.AddCallback(job.EventSuccess, "done")

	w := NewWorker(store, reg, WithEmitter(rec), WorkerID("w1"))
	w.Process(context.Background(), toTask(t, j))

	assert.Equal(t, []any{"x"}, ran)
	require.NotNil(t, hooked)
	assert.Equal(t, j.ID, hooked.ID)
	assert.Equal(t, "ctx-1", hooked.ContextID)
	assert.True(t, hooked.IsCallback())
	assert.Equal(t, []string{j.ID}, store.completedIDs())

	require.Len(t, rec.events, 2)
	assert.IsType(t, &core.JobStarted{}, rec.events[0])
	assert.IsType(t, &core.JobCompleted{}, rec.events[1])
}

func TestProcess_FailureSchedulesRetry(t *testing.T) {
	store := newMemStorage()
	reg := registry.New()
	reg.Register("work", func(context.Context, []any, map[string]any) error {
		return errors.New("boom")
	})

	j := job.New("work", nil, nil)
	w := NewWorker(store, reg)
	w.Process(context.Background(), toTask(t, j))

	retryAt, ok := store.failed[j.ID]
	require.True(t, ok)
	require.NotNil(t, retryAt)
	assert.Contains(t, store.failMsg[j.ID], "boom")
	assert.Empty(t, store.completedIDs())
}

func TestProcess_HookFailureRetriesJob(t *testing.T) {
	store := newMemStorage()
	reg := registry.New()
	reg.Register("work", func(context.Context, []any, map[string]any) error { return nil })
	reg.RegisterHook("done", func(context.Context, *job.Job) error { return errors.New("store down") })

	j := job.New("work", nil, nil)
	j.AddCallback(job.EventSuccess, "done")

	w := NewWorker(store, reg)
	w.Process(context.Background(), toTask(t, j))

	assert.NotNil(t, store.failed[j.ID])
	assert.Contains(t, store.failMsg[j.ID], "store down")
	assert.Empty(t, store.completedIDs())
}

func TestProcess_NoRetryAndExhausted(t *testing.T) {
	store := newMemStorage()
	reg := registry.New()
	reg.Register("fatal", func(context.Context, []any, map[string]any) error {
		return core.NoRetry(errors.New("bad input"))
	})
	reg.Register("flaky", func(context.Context, []any, map[string]any) error {
		return errors.New("again")
	})

	w := NewWorker(store, reg)

	fatal := job.New("fatal", nil, nil)
	w.Process(context.Background(), toTask(t, fatal))
	assert.Contains(t, store.failed, fatal.ID)
	assert.Nil(t, store.failed[fatal.ID])

	flaky := job.New("flaky", nil, nil, job.Retries(1))
	task := toTask(t, flaky)
	task.Attempt = 2
	w.Process(context.Background(), task)
	assert.Contains(t, store.failed, flaky.ID)
	assert.Nil(t, store.failed[flaky.ID])
}

func TestProcess_UnknownTargetDoesNotRetry(t *testing.T) {
	store := newMemStorage()
	w := NewWorker(store, registry.New())

	j := job.New("missing", nil, nil)
	w.Process(context.Background(), toTask(t, j))

	assert.Contains(t, store.failed, j.ID)
	assert.Nil(t, store.failed[j.ID])
}

func TestProcess_RetryAfter(t *testing.T) {
	store := newMemStorage()
	reg := registry.New()
	reg.Register("limited", func(context.Context, []any, map[string]any) error {
		return core.RetryAfter(time.Hour, errors.New("rate limited"))
	})

	j := job.New("limited", nil, nil)
	w := NewWorker(store, reg)
	before := time.Now()
	w.Process(context.Background(), toTask(t, j))

	retryAt := store.failed[j.ID]
	require.NotNil(t, retryAt)
	assert.WithinDuration(t, before.Add(time.Hour), *retryAt, time.Minute)
}

func TestStart_ProcessesQueuedTasks(t *testing.T) {
	store := newMemStorage()
	reg := registry.New()

	done := make(chan struct{}, 3)
	reg.Register("work", func(context.Context, []any, map[string]any) error {
		done <- struct{}{}
		return nil
	})

	var tasks []*core.Task
	for i := 0; i < 3; i++ {
		task, err := job.New("work", nil, nil).ToTask()
		require.NoError(t, err)
		tasks = append(tasks, task)
	}
	require.NoError(t, store.Insert(context.Background(), core.DefaultQueue, tasks, true))

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(store, reg, PollInterval(5*time.Millisecond), WorkerQueue(core.DefaultQueue, Concurrency(2)))

	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(ctx) }()

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for tasks")
		}
	}
	require.Eventually(t, func() bool { return len(store.completedIDs()) == 3 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestCalculateBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, calculateBackoff(1))
	assert.Equal(t, 4*time.Second, calculateBackoff(2))
	assert.Equal(t, time.Minute, calculateBackoff(10))
	assert.Equal(t, time.Second, calculateBackoff(-1))
}
