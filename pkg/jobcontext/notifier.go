package jobcontext

import (
	"context"
	"fmt"
	"time"

	"github.com/jdziat/fanin/pkg/core"
	"github.com/jdziat/fanin/pkg/job"
	"github.com/jdziat/fanin/pkg/registry"
)

// NotifyCompletedName is the hook name callback jobs fire on success.
const NotifyCompletedName = "fanin.notify_completed"

// Notifier records job completions against their callback context and runs
// the context's completion target.
type Notifier struct {
	store    core.ContextStore
	registry *registry.Registry
	cfg      *config
}

// NewNotifier creates a notifier. Completion targets are resolved in reg.
func NewNotifier(store core.ContextStore, reg *registry.Registry, opts ...Option) *Notifier {
	return &Notifier{
		store:    store,
		registry: reg,
		cfg:      newConfig(opts),
	}
}

// Register installs the notifier in reg under NotifyCompletedName.
func (n *Notifier) Register(reg *registry.Registry) {
	reg.RegisterHook(NotifyCompletedName, n.Hook())
}

// Hook adapts NotifyCompleted to a registry hook.
func (n *Notifier) Hook() registry.Hook {
	return n.NotifyCompleted
}

// NotifyCompleted records that current finished. current is the job being
// executed; nil means no job is executing. Plain jobs are ignored.
//
// The completion target runs only if this call's transaction is the one
// that completed the context. Errors from the target are returned.
func (n *Notifier) NotifyCompleted(ctx context.Context, current *job.Job) error {
	if current == nil {
		return core.ErrNoCurrentJob
	}
	if !current.IsCallback() {
		return nil
	}

	rec, completedNow, err := n.store.Update(ctx, current.ContextID, func(s *core.Snapshot) error {
		s.MarkCompleted(current.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("fanin: record completion of %s in context %s: %w", current.ID, current.ContextID, err)
	}
	if !completedNow {
		return nil
	}

	n.cfg.logger.Info("context completed",
		"context_id", current.ContextID, "task_id", current.ID, "tasks", len(rec.Snapshot.TaskIDs))
	n.cfg.emitter.Emit(&core.ContextCompleted{
		ContextID: current.ContextID,
		TaskID:    current.ID,
		Timestamp: time.Now(),
	})

	target := rec.Snapshot.OnComplete
	if target == "" {
		return nil
	}
	args, kwargs := core.NormalizeArgs(rec.Snapshot.OnCompleteArgs, rec.Snapshot.OnCompleteKwargs)
	return n.registry.Call(ctx, target, args, kwargs)
}
