// Package worker runs queued tasks.
//
// A Worker polls its queues, decodes each task back into a job, resolves the
// target through a registry and runs it. When the target succeeds the job's
// success hooks fire with the job passed explicitly, which is how callback
// context jobs report completion. Failures are retried with exponential
// backoff unless wrapped with core.NoRetry.
package worker
