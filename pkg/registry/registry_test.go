package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/fanin/pkg/core"
	"github.com/jdziat/fanin/pkg/job"
)

func TestRegister_And_Call(t *testing.T) {
	r := New()

	var gotArgs []any
	var gotKwargs map[string]any
	r.Register("reports.build", func(ctx context.Context, args []any, kwargs map[string]any) error {
		gotArgs = args
		gotKwargs = kwargs
		return nil
	})

	err := r.Call(context.Background(), "reports.build", []any{"x"}, map[string]any{"y": 1})
	require.NoError(t, err)
	assert.Equal(t, []any{"x"}, gotArgs)
	assert.Equal(t, map[string]any{"y": 1}, gotKwargs)
}

func TestCall_NilKwargsBecomesEmptyMap(t *testing.T) {
	r := New()
	r.Register("f", func(ctx context.Context, args []any, kwargs map[string]any) error {
		assert.NotNil(t, kwargs)
		return nil
	})
	require.NoError(t, r.Call(context.Background(), "f", nil, nil))
}

func TestCall_UnknownTarget(t *testing.T) {
	r := New()
	err := r.Call(context.Background(), "missing", nil, nil)
	assert.ErrorIs(t, err, core.ErrUnknownTarget)
}

func TestCall_PropagatesError(t *testing.T) {
	r := New()
	boom := errors.New("boom")
	r.Register("f", func(ctx context.Context, args []any, kwargs map[string]any) error {
		return boom
	})
	assert.ErrorIs(t, r.Call(context.Background(), "f", nil, nil), boom)
}

func TestCall_RecoversPanic(t *testing.T) {
	r := New()
	r.Register("f", func(ctx context.Context, args []any, kwargs map[string]any) error {
		panic("kaboom")
	})
	err := r.Call(context.Background(), "f", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestRegister_PanicsOnInvalidName(t *testing.T) {
	r := New()
	assert.Panics(t, func() {
		r.Register("has space", func(ctx context.Context, args []any, kwargs map[string]any) error { return nil })
	})
	assert.Panics(t, func() { r.Register("ok", nil) })
	assert.Panics(t, func() { r.RegisterHook("", func(ctx context.Context, current *job.Job) error { return nil }) })
}

func TestFire(t *testing.T) {
	r := New()
	var got *job.Job
	r.RegisterHook("on.success", func(ctx context.Context, current *job.Job) error {
		got = current
		return nil
	})

	j := job.New("reports.build", nil, nil)
	require.NoError(t, r.Fire(context.Background(), "on.success", j))
	assert.Same(t, j, got)

	assert.ErrorIs(t, r.Fire(context.Background(), "missing", j), core.ErrUnknownTarget)
}

func TestNames(t *testing.T) {
	r := New()
	r.Register("b", func(ctx context.Context, args []any, kwargs map[string]any) error { return nil })
	r.RegisterHook("a", func(ctx context.Context, current *job.Job) error { return nil })

	assert.Equal(t, []string{"a", "b"}, r.Names())
}
