// Package batch submits task descriptors to a queue backend.
//
// Insert hands a whole batch to the backend in one call. When the backend
// answers with a transient, duplicate-id or tombstoned-id fault, the batch
// is split in half and each half is resubmitted, until the faulting tasks
// are isolated in batches of one. A single task that still faults is
// dropped: the drop is logged, emitted as a core.TaskDropped event and
// reported in Result.Dropped. With FailOnDrop the drops are also returned
// as a *DropError.
//
// Any other backend error stops the insert and is returned. Batches that
// were accepted before the error stay in the queue.
package batch
