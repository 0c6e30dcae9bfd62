// Package collection implements a locally materialized, keyed collection
// that mirrors an authoritative remote data set and reconciles optimistic
// mutations against it through a transactional write sink.
//
// ARCHITECTURE:
//
// Three protocols share one in-memory view:
//
// Initial Sync:
// Full-replace resynchronization. Query the remote source, then inside a
// single sink transaction delete every previously materialized item and
// insert the fresh set. The in-memory view is replaced only after a
// successful commit. Failures abort, are logged, and are never retried.
//
// Mutation Settlement:
// One invocation per submitted transaction. The type-specific handler runs
// first; its outcome (empty, canonical replacement list, or a refetch
// directive) decides how the sink and the in-memory view are reconciled.
// Batch deletes are always written before any canonical insert, so the sink
// never observes an insert followed by a delete of the same optimistic row.
//
// Rollback:
// Best-effort undo of a failed settlement. Deletes the batch's optimistic
// rows from the sink and restores the pre-mutation snapshot, re-inserting
// only the affected keys. Rollback never re-raises - failures are logged
// and swallowed.
//
// CONCURRENCY:
//
// Submit calls are serialized end-to-end (settlement plus any rollback) by
// a per-collection mutex, so the single-slot snapshot is never overwritten
// by a concurrent settlement. The item list is guarded separately so
// external readers can snapshot-read at any time. The background initial
// sync task is cancellable at every suspension point; a sink transaction
// left open at cancellation is abandoned, and sinks must treat uncommitted
// transactions as never having happened.
package collection
