package sink

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mirror/internal/collection"
)

type doc struct {
	ID string `json:"id"`
	V  string `json:"v"`
}

func docKey(d doc) string { return d.ID }

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir() + "/sink.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSession_CommitMakesWritesVisible(t *testing.T) {
	s := setupTestStore(t)
	sess := NewSession(s, docKey)
	ctx := context.Background()

	require.NoError(t, sess.Begin(ctx))
	require.NoError(t, sess.Write(ctx, collection.Change[doc]{
		Type: collection.ChangeInsert, Value: doc{ID: "a", V: "1"},
	}))
	require.NoError(t, sess.Write(ctx, collection.Change[doc]{
		Type: collection.ChangeInsert, Value: doc{ID: "b", V: "2"},
	}))
	require.NoError(t, sess.Commit(ctx))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var got doc
	require.NoError(t, s.Get(ctx, "a", &got))
	assert.Equal(t, doc{ID: "a", V: "1"}, got)
}

func TestSession_UpdateUpserts(t *testing.T) {
	s := setupTestStore(t)
	sess := NewSession(s, docKey)
	ctx := context.Background()

	require.NoError(t, sess.Begin(ctx))
	require.NoError(t, sess.Write(ctx, collection.Change[doc]{
		Type: collection.ChangeInsert, Value: doc{ID: "a", V: "1"},
	}))
	require.NoError(t, sess.Write(ctx, collection.Change[doc]{
		Type: collection.ChangeUpdate, Value: doc{ID: "a", V: "2"},
	}))
	require.NoError(t, sess.Commit(ctx))

	var got doc
	require.NoError(t, s.Get(ctx, "a", &got))
	assert.Equal(t, "2", got.V)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSession_DeleteAbsentKeyIsNoOp(t *testing.T) {
	s := setupTestStore(t)
	sess := NewSession(s, docKey)
	ctx := context.Background()

	require.NoError(t, sess.Begin(ctx))
	require.NoError(t, sess.Write(ctx, collection.Change[doc]{
		Type: collection.ChangeDelete, Value: doc{ID: "ghost"},
	}))
	require.NoError(t, sess.Commit(ctx))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSession_DiscardRollsBack(t *testing.T) {
	s := setupTestStore(t)
	sess := NewSession(s, docKey)
	ctx := context.Background()

	require.NoError(t, sess.Begin(ctx))
	require.NoError(t, sess.Write(ctx, collection.Change[doc]{
		Type: collection.ChangeInsert, Value: doc{ID: "a", V: "1"},
	}))
	require.NoError(t, sess.Discard())

	// Uncommitted work is treated as never having happened.
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	var got doc
	assert.ErrorIs(t, s.Get(ctx, "a", &got), sql.ErrNoRows)
}

func TestSession_BeginRollsBackStaleTransaction(t *testing.T) {
	s := setupTestStore(t)
	sess := NewSession(s, docKey)
	ctx := context.Background()

	require.NoError(t, sess.Begin(ctx))
	require.NoError(t, sess.Write(ctx, collection.Change[doc]{
		Type: collection.ChangeInsert, Value: doc{ID: "stale", V: "x"},
	}))

	// An interrupted protocol run never committed; the next Begin starts
	// clean and the stale write must not survive.
	require.NoError(t, sess.Begin(ctx))
	require.NoError(t, sess.Commit(ctx))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSession_WriteOutsideTransaction(t *testing.T) {
	s := setupTestStore(t)
	sess := NewSession(s, docKey)

	err := sess.Write(context.Background(), collection.Change[doc]{
		Type: collection.ChangeInsert, Value: doc{ID: "a"},
	})
	assert.ErrorContains(t, err, "no open transaction")

	assert.ErrorContains(t, sess.Commit(context.Background()), "no open transaction")
	assert.NoError(t, sess.Discard())
}

func TestSession_NormalizesKeys(t *testing.T) {
	s := setupTestStore(t)
	sess := NewSession(s, docKey)
	ctx := context.Background()

	// "é" written as e + combining acute must address the same row as
	// the precomposed form.
	decomposed := "é"
	precomposed := "é"

	require.NoError(t, sess.Begin(ctx))
	require.NoError(t, sess.Write(ctx, collection.Change[doc]{
		Type: collection.ChangeInsert, Value: doc{ID: decomposed, V: "1"},
	}))
	require.NoError(t, sess.Write(ctx, collection.Change[doc]{
		Type: collection.ChangeUpdate, Value: doc{ID: precomposed, V: "2"},
	}))
	require.NoError(t, sess.Commit(ctx))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var got doc
	require.NoError(t, s.Get(ctx, decomposed, &got))
	assert.Equal(t, "2", got.V)
}

func TestStore_RowsOrderedByKey(t *testing.T) {
	s := setupTestStore(t)
	sess := NewSession(s, docKey)
	ctx := context.Background()

	require.NoError(t, sess.Begin(ctx))
	for _, d := range []doc{{ID: "b", V: "2"}, {ID: "a", V: "1"}, {ID: "c", V: "3"}} {
		require.NoError(t, sess.Write(ctx, collection.Change[doc]{
			Type: collection.ChangeInsert, Value: d,
		}))
	}
	require.NoError(t, sess.Commit(ctx))

	rows, err := s.Rows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "a", rows[0].Key)
	assert.Equal(t, "b", rows[1].Key)
	assert.Equal(t, "c", rows[2].Key)
}
