// Package jobcontext groups jobs for batched submission and tracks when a
// group has finished.
//
// A Context collects jobs and, when started, submits them grouped by queue,
// one batch insert per queue:
//
//	err := jobcontext.Run(ctx, inserter, func(c *jobcontext.Context) error {
//	    _, err := c.Add("reports.build", []any{"2024-01"}, nil)
//	    return err
//	})
//
// A CallbackContext additionally persists the set of job ids before
// submitting and binds every job to the context. Each job reports success
// through the Notifier, which records the completion in a single store
// transaction. The transaction that completes the set is the only one that
// runs the OnComplete target, so the callback fires once even when jobs
// finish concurrently or are delivered twice.
//
// Context values are used by the submitting goroutine only and are not safe
// for concurrent use.
package jobcontext
