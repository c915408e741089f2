// Package registry maps stable target names to functions.
//
// Jobs and completion callbacks are stored by name. At execution time the
// worker and the completion notifier resolve the name through a Registry,
// so every process that runs jobs must register the same names.
//
// Two kinds of entries exist:
//   - Func: the work a job performs, called with the job's args and kwargs
//   - Hook: an event callback (for example "success"), called with the job
//     that triggered it
package registry
