package collection

import "context"

// rollback undoes a failed settlement: delete the batch's optimistic rows
// from the sink, restore the in-memory view from the snapshot, and
// re-insert into the sink exactly the snapshot items whose key is among
// the batch's keys. Unrelated rows are untouched.
//
// Rollback is strictly best-effort. The returned error is for the
// caller's log only - it is never re-raised to Submit's caller. A failed
// rollback leaves the collection in a documented, acceptable-risk
// inconsistent state rather than crashing the host.
func (c *Collection[T]) rollback(ctx context.Context, sess *session[T], txn Transaction[T]) error {
	if sess == nil {
		// Unreachable under correct ordering; a defect, not retryable.
		return &RollbackError{Reason: "no live sync session"}
	}

	if err := sess.begin(ctx); err != nil {
		return &RollbackError{Reason: "begin recovery transaction", Cause: err}
	}

	for _, m := range txn.Mutations {
		if err := sess.write(ctx, Change[T]{Type: ChangeDelete, Value: m.Modified}); err != nil {
			return &RollbackError{Reason: "delete optimistic row", Cause: err}
		}
	}

	snap, ok := c.snapshot.take()
	if !ok {
		// Settlement never captured a snapshot: the handler failed before
		// any optimistic replacement occurred. Commit the deletes done so
		// far; the missing snapshot is a protocol violation to report,
		// and no restoration is attempted.
		if err := sess.commit(ctx); err != nil {
			return &RollbackError{Reason: "commit without snapshot", Cause: err}
		}
		return &RollbackError{Reason: "no snapshot captured before rollback"}
	}

	c.replaceItems(snap)

	keys := txn.keys()
	restored := 0
	for _, it := range snap {
		if _, hit := keys[c.key(it)]; !hit {
			continue
		}
		if err := sess.write(ctx, Change[T]{Type: ChangeInsert, Value: it}); err != nil {
			return &RollbackError{Reason: "restore snapshot row", Cause: err}
		}
		restored++
	}

	if err := sess.commit(ctx); err != nil {
		return &RollbackError{Reason: "commit recovery transaction", Cause: err}
	}

	c.logger.Info("rollback complete",
		"type", txn.Type.String(),
		"deleted", len(txn.Mutations),
		"restored", restored,
	)
	return nil
}
