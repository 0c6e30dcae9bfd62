package sink

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/mirror/internal/collection"
)

// Session is one subscription's write handle over a Store. It implements
// collection.SyncSink: changes written between Begin and Commit are staged
// in a single database transaction.
//
// Thread-safety: all methods may be called from any goroutine, but the
// engine serializes protocol invocations, so in practice the mutex only
// defends teardown.
type Session[T any] struct {
	store *Store
	key   func(T) string

	mu sync.Mutex
	tx *sql.Tx
}

// NewSession binds a key function to the store. Items are encoded as JSON
// documents; keys are normalized to NFC.
func NewSession[T any](s *Store, key func(T) string) *Session[T] {
	return &Session[T]{store: s, key: key}
}

// Begin opens a new database transaction. A transaction left open by an
// interrupted protocol run is rolled back first - it is treated as never
// having happened.
func (s *Session[T]) Begin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx != nil {
		_ = s.tx.Rollback()
		s.tx = nil
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	s.tx = tx
	return nil
}

// Write stages one change in the open transaction. Inserts and updates
// upsert the row; deletes remove it (deleting an absent key is a no-op,
// which keeps clear-phase deletes idempotent).
func (s *Session[T]) Write(ctx context.Context, ch collection.Change[T]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		return fmt.Errorf("write %s: no open transaction", ch.Type)
	}

	key := norm.NFC.String(s.key(ch.Value))

	switch ch.Type {
	case collection.ChangeInsert, collection.ChangeUpdate:
		doc, err := json.Marshal(ch.Value)
		if err != nil {
			return fmt.Errorf("encode %s doc for key %q: %w", ch.Type, key, err)
		}
		_, err = s.tx.ExecContext(ctx, `
			INSERT INTO items (key, doc) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET doc = excluded.doc, written_at = unixepoch()
		`, key, string(doc))
		if err != nil {
			return fmt.Errorf("upsert key %q: %w", key, err)
		}

	case collection.ChangeDelete:
		if _, err := s.tx.ExecContext(ctx, `DELETE FROM items WHERE key = ?`, key); err != nil {
			return fmt.Errorf("delete key %q: %w", key, err)
		}

	default:
		return fmt.Errorf("unknown change type: %d", ch.Type)
	}

	return nil
}

// Commit makes the staged changes durable and closes the transaction.
func (s *Session[T]) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		return fmt.Errorf("commit: no open transaction")
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Discard rolls back any open transaction. Called by the engine on
// teardown; safe when no transaction is open.
func (s *Session[T]) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("discard: %w", err)
	}
	return nil
}
