package collection

import (
	"context"
	"fmt"
	"log/slog"
)

// Submit settles one mutation transaction. It resolves only after
// settlement - and rollback, if settlement failed - has finished. Sink
// and handler errors never escape raw: they come back as this package's
// typed errors, already logged with the transaction's correlation id.
//
// Submitting with no live session is a usage defect and returns
// NotInitializedError without touching the sink.
func (c *Collection[T]) Submit(ctx context.Context, txn Transaction[T]) error {
	c.settleMu.Lock()
	defer c.settleMu.Unlock()

	sess := c.currentSession()
	if sess == nil {
		return &NotInitializedError{Op: "submit"}
	}

	logger := c.logger.With(
		"txn", c.ids.Generate(),
		"type", txn.Type.String(),
		"mutations", len(txn.Mutations),
	)

	if err := c.settle(ctx, sess, txn, logger); err != nil {
		logger.Error("settlement failed", "error", err)
		if rbErr := c.rollback(ctx, sess, txn); rbErr != nil {
			// Best-effort recovery failed; logged, never re-raised.
			logger.Error("rollback failed", "error", rbErr)
		}
		// The attempt has resolved. A snapshot the rollback did not get
		// to consume belongs to this transaction only and must not feed
		// a later settlement's recovery.
		c.snapshot.clear()
		return fmt.Errorf("submit %s transaction: %w", txn.Type, err)
	}

	logger.Debug("settlement complete")
	return nil
}

// settle runs the mutation settlement protocol: invoke the type-specific
// handler, then reconcile the sink and the authoritative in-memory copy
// according to its outcome. The caller has already applied the optimistic
// change to the visible collection.
//
// Deletes from the batch are always written before any insert of
// canonical data, so the sink never observes an insert followed by a
// delete of the same optimistic row.
func (c *Collection[T]) settle(ctx context.Context, sess *session[T], txn Transaction[T], logger *slog.Logger) error {
	out := None[T]()
	if handler := c.handlers.forType(txn.Type); handler != nil {
		var err error
		out, err = handler(ctx, txn)
		if err != nil {
			return &HandlerError{Type: txn.Type, Cause: err}
		}
	}

	if err := sess.begin(ctx); err != nil {
		return err
	}

	// Remove the batch's optimistic rows from the sink unconditionally,
	// before any branch-specific reconciliation.
	for _, m := range txn.Mutations {
		if err := sess.write(ctx, Change[T]{Type: ChangeDelete, Value: m.Modified}); err != nil {
			return err
		}
	}

	switch out.kind {
	case outcomeEmpty:
		// No reconciliation needed; the view keeps its pre-call value.
		return sess.commit(ctx)

	case outcomeRefetch:
		if err := sess.commit(ctx); err != nil {
			return err
		}
		if !out.refetch {
			// Optimistic keys are final.
			return nil
		}
		logger.Info("handler requested refetch, re-running initial sync")
		if err := c.initialSync(ctx); err != nil {
			// Initial sync failures abort and log, no retry. The
			// mutation's own commit already landed, so this is not a
			// settlement failure and must not trigger rollback.
			c.logger.Error("refetch sync failed", "error", err)
		}
		return nil

	case outcomeCanonical:
		// Pre-mutation backup so rollback can restore the affected rows.
		c.snapshot.capture(c.Items())

		// The optimistic rows were already deleted above, before any
		// canonical insert - the sink must never observe an insert
		// followed by a delete of the same optimistic row.
		for _, it := range out.canonical {
			if err := sess.write(ctx, Change[T]{Type: ChangeInsert, Value: it}); err != nil {
				return err
			}
		}
		if err := sess.commit(ctx); err != nil {
			return err
		}

		c.mergeCanonical(txn, out.canonical)
		c.snapshot.clear()
		logger.Debug("canonical merge applied", "canonical", len(out.canonical))
		return nil

	default:
		// Only reachable through an Outcome not built by the exported
		// constructors; classified as a handler defect.
		return &HandlerError{Type: txn.Type, Cause: fmt.Errorf("invalid outcome kind %d", out.kind)}
	}
}
