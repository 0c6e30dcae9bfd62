package collection

import (
	"context"
	"fmt"
)

// initialSync performs the full-replace resynchronization: query the
// remote source, then inside one sink transaction delete every previously
// materialized item and insert the fresh set. The in-memory view is
// replaced only after a successful commit.
//
// Any failure aborts the whole sequence and leaves the view at its prior
// value. There is no retry. Cancellation is checked between every
// suspension point; a sink transaction left open at cancellation is
// abandoned for the sink to discard.
func (c *Collection[T]) initialSync(ctx context.Context) error {
	sess := c.currentSession()
	if sess == nil {
		return &NotInitializedError{Op: "initial sync"}
	}

	fresh, err := c.source(ctx)
	if err != nil {
		return &QueryError{Cause: err}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("initial sync cancelled after query: %w", err)
	}

	if err := sess.begin(ctx); err != nil {
		return err
	}

	// Clear phase: remove the previous in-memory view from the sink,
	// fail-fast. A half-cleared sink inside an open transaction is not a
	// meaningful intermediate state to continue from.
	prev := c.Items()
	for _, it := range prev {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("initial sync cancelled during clear: %w", err)
		}
		if err := sess.write(ctx, Change[T]{Type: ChangeDelete, Value: it}); err != nil {
			return err
		}
	}

	// Insert phase: materialize the freshly queried set.
	for _, it := range fresh {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("initial sync cancelled during insert: %w", err)
		}
		if err := sess.write(ctx, Change[T]{Type: ChangeInsert, Value: it}); err != nil {
			return err
		}
	}

	if err := sess.commit(ctx); err != nil {
		return err
	}

	c.replaceItems(fresh)
	c.logger.Info("initial sync complete",
		"cleared", len(prev),
		"items", len(fresh),
	)

	return nil
}
