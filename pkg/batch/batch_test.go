package batch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/fanin/pkg/core"
)

// fakeBackend records every Insert call and fails the ones matched by fail.
type fakeBackend struct {
	mu    sync.Mutex
	calls [][]string
	fail  func(ids []string) error
}

func (b *fakeBackend) Insert(ctx context.Context, queue string, tasks []*core.Task, transactional bool) error {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	b.mu.Lock()
	b.calls = append(b.calls, ids)
	b.mu.Unlock()
	if b.fail != nil {
		return b.fail(ids)
	}
	return nil
}

func makeTasks(n int) []*core.Task {
	tasks := make([]*core.Task, n)
	for i := range tasks {
		tasks[i] = &core.Task{ID: fmt.Sprintf("t%03d", i), Target: "work"}
	}
	return tasks
}

// failing returns a fail func that faults any batch containing one of ids.
func failing(fault error, ids ...string) func([]string) error {
	return func(batch []string) error {
		for _, id := range ids {
			if slices.Contains(batch, id) {
				return fault
			}
		}
		return nil
	}
}

func TestInsert_EmptyIsNoop(t *testing.T) {
	b := &fakeBackend{}
	res, err := New(b).Insert(context.Background(), nil, "default", false)

	require.NoError(t, err)
	assert.Equal(t, 0, res.Attempts)
	assert.Empty(t, b.calls)
}

func TestInsert_SingleCallOnSuccess(t *testing.T) {
	b := &fakeBackend{}
	res, err := New(b).Insert(context.Background(), makeTasks(10), "default", false)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 10, res.Inserted)
	assert.Len(t, b.calls, 1)
}

func TestInsert_AlwaysTransient_Attempts2kMinus1(t *testing.T) {
	for _, k := range []int{1, 2, 3, 7, 16, 100, 101, 1000} {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			b := &fakeBackend{fail: func([]string) error { return core.ErrTransient }}
			res, err := New(b).Insert(context.Background(), makeTasks(k), "default", false)

			require.NoError(t, err)
			assert.Equal(t, 2*k-1, res.Attempts)
			require.Len(t, b.calls, 2*k-1)
			assert.Len(t, b.calls[0], k, "first call carries the whole batch")
			assert.Len(t, res.Dropped, k)
			assert.Equal(t, 0, res.Inserted)

			// Every task ends up alone in exactly one leaf call.
			leaves := map[string]int{}
			for _, call := range b.calls {
				if len(call) == 1 {
					leaves[call[0]]++
				}
			}
			assert.Len(t, leaves, k)
			for id, n := range leaves {
				assert.Equal(t, 1, n, "leaf count for %s", id)
			}
		})
	}
}

func TestInsert_SplitsFloorHalfFirst(t *testing.T) {
	b := &fakeBackend{fail: failing(core.ErrTransient, "t000", "t001", "t002", "t003", "t004")}
	_, err := New(b).Insert(context.Background(), makeTasks(5), "default", false)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(b.calls), 3)
	assert.Len(t, b.calls[0], 5)
	assert.Equal(t, []string{"t000", "t001"}, b.calls[1])
}

func TestInsert_IsolatesPoisonTask(t *testing.T) {
	for _, fault := range []error{core.ErrTransient, core.ErrTaskExists, core.ErrTaskTombstoned} {
		t.Run(fault.Error(), func(t *testing.T) {
			var events []core.Event
			b := &fakeBackend{fail: failing(fmt.Errorf("backend: %w", fault), "t005")}
			in := New(b, WithEmitter(core.EmitterFunc(func(e core.Event) { events = append(events, e) })))

			res, err := in.Insert(context.Background(), makeTasks(8), "default", false)
			require.NoError(t, err)

			assert.Equal(t, 7, res.Inserted)
			require.Len(t, res.Dropped, 1)
			assert.Equal(t, "t005", res.Dropped[0].Task.ID)
			assert.ErrorIs(t, res.Dropped[0].Err, fault)

			var dropped, splits int
			for _, e := range events {
				switch e.(type) {
				case *core.TaskDropped:
					dropped++
				case *core.BatchSplit:
					splits++
				}
			}
			assert.Equal(t, 1, dropped)
			assert.Equal(t, 3, splits) // 8 -> 4 -> 2 -> 1
		})
	}
}

func TestInsert_OtherErrorPropagates(t *testing.T) {
	boom := errors.New("permission denied")
	b := &fakeBackend{fail: failing(boom, "t000")}

	res, err := New(b).Insert(context.Background(), makeTasks(4), "default", false)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, res.Attempts)
}

func TestInsert_OtherErrorAfterSplitKeepsEarlierBatches(t *testing.T) {
	boom := errors.New("permission denied")
	b := &fakeBackend{fail: func(ids []string) error {
		if len(ids) == 4 {
			return core.ErrTransient
		}
		if slices.Contains(ids, "t002") {
			return boom
		}
		return nil
	}}

	res, err := New(b).Insert(context.Background(), makeTasks(4), "default", false)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 3, res.Attempts)
}

func TestInsert_FailOnDrop(t *testing.T) {
	b := &fakeBackend{fail: failing(core.ErrTaskTombstoned, "t001")}

	res, err := New(b, FailOnDrop()).Insert(context.Background(), makeTasks(2), "emails", false)

	var dropErr *DropError
	require.ErrorAs(t, err, &dropErr)
	assert.Equal(t, "emails", dropErr.Queue)
	assert.Len(t, dropErr.Dropped, 1)
	assert.ErrorIs(t, err, core.ErrTaskTombstoned)
	assert.Equal(t, 1, res.Inserted)
}

func TestInsert_ChunksLargeInput(t *testing.T) {
	b := &fakeBackend{}
	res, err := New(b, MaxBatchSize(10)).Insert(context.Background(), makeTasks(25), "default", false)

	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 25, res.Inserted)
	assert.Len(t, b.calls[0], 10)
	assert.Len(t, b.calls[2], 5)
	assert.Equal(t, "t000", b.calls[0][0])
}

func TestInsert_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := &fakeBackend{}
	_, err := New(b).Insert(ctx, makeTasks(3), "default", false)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, b.calls)
}

func TestInsert_PassesTransactionalFlag(t *testing.T) {
	var got bool
	b := backendFunc(func(ctx context.Context, queue string, tasks []*core.Task, transactional bool) error {
		got = transactional
		return nil
	})
	_, err := New(b).Insert(context.Background(), makeTasks(1), "default", true)
	require.NoError(t, err)
	assert.True(t, got)
}

type backendFunc func(ctx context.Context, queue string, tasks []*core.Task, transactional bool) error

func (f backendFunc) Insert(ctx context.Context, queue string, tasks []*core.Task, transactional bool) error {
	return f(ctx, queue, tasks, transactional)
}
