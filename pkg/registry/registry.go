package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jdziat/fanin/pkg/core"
	"github.com/jdziat/fanin/pkg/job"
	"github.com/jdziat/fanin/pkg/security"
)

// Func is a registered unit of work. Arguments arrive after a JSON round
// trip: integral numbers are int, other numbers float64, and structs are
// map[string]any.
type Func func(ctx context.Context, args []any, kwargs map[string]any) error

// Hook is a registered job event callback. current is the job whose event fired.
type Hook func(ctx context.Context, current *job.Job) error

// Registry resolves target names to functions. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
	hooks map[string]Hook
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		funcs: make(map[string]Func),
		hooks: make(map[string]Hook),
	}
}

// Register registers a work function under name.
// Names must be alphanumeric (starting with a letter), max 255 chars.
func (r *Registry) Register(name string, fn Func) {
	if err := security.ValidateTargetName(name); err != nil {
		panic(fmt.Sprintf("fanin: invalid target name %q: %v", name, err))
	}
	if fn == nil {
		panic(fmt.Sprintf("fanin: function for %q cannot be nil", name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// RegisterHook registers an event callback under name.
func (r *Registry) RegisterHook(name string, hook Hook) {
	if err := security.ValidateTargetName(name); err != nil {
		panic(fmt.Sprintf("fanin: invalid hook name %q: %v", name, err))
	}
	if hook == nil {
		panic(fmt.Sprintf("fanin: hook for %q cannot be nil", name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[name] = hook
}

// Func returns the work function registered under name.
func (r *Registry) Func(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Hook returns the event callback registered under name.
func (r *Registry) Hook(name string) (Hook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hooks[name]
	return h, ok
}

// Call resolves name and invokes it. Panics in fn are returned as errors.
func (r *Registry) Call(ctx context.Context, name string, args []any, kwargs map[string]any) (err error) {
	fn, ok := r.Func(name)
	if !ok {
		return fmt.Errorf("%w: %q", core.ErrUnknownTarget, name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in %s: %v", name, rec)
		}
	}()

	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return fn(ctx, args, kwargs)
}

// Fire invokes the hook registered under name with the current job.
func (r *Registry) Fire(ctx context.Context, name string, current *job.Job) error {
	h, ok := r.Hook(name)
	if !ok {
		return fmt.Errorf("%w: hook %q", core.ErrUnknownTarget, name)
	}
	return h(ctx, current)
}

// Names returns all registered function and hook names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs)+len(r.hooks))
	for name := range r.funcs {
		names = append(names, name)
	}
	for name := range r.hooks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
