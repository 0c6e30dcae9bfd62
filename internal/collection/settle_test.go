package collection_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mirror/internal/collection"
	"github.com/roach88/mirror/internal/testutil"
)

func updateTxn(key string, modified entry) collection.Transaction[entry] {
	return collection.Transaction[entry]{
		Type:      collection.ChangeUpdate,
		Mutations: []collection.Mutation[entry]{{Key: key, Modified: modified}},
	}
}

func TestSubmit_NotInitialized(t *testing.T) {
	f := newFixture(t, nil, collection.Handlers[entry]{})

	err := f.c.Submit(context.Background(), updateTxn("1", entry{ID: "1", V: "x"}))

	assert.True(t, collection.IsNotInitialized(err))
	assert.Empty(t, f.sink.Ops()) // zero sink operations
}

func TestSubmit_CanonicalReplace(t *testing.T) {
	handlers := collection.Handlers[entry]{
		Update: func(ctx context.Context, txn collection.Transaction[entry]) (collection.Outcome[entry], error) {
			return collection.Canonical([]entry{{ID: "1", V: "A"}}), nil
		},
	}
	f := newFixture(t, []entry{{ID: "1", V: "a"}, {ID: "2", V: "b"}}, handlers)
	f.subscribe(t)
	f.sink.Reset()

	err := f.c.Submit(context.Background(), updateTxn("1", entry{ID: "1", V: "a*"}))
	require.NoError(t, err)

	assert.ElementsMatch(t, []entry{{ID: "1", V: "A"}, {ID: "2", V: "b"}}, f.c.Items())

	// Exactly one delete of the optimistic row, then one canonical
	// insert, inside one transaction.
	ops := f.sink.Ops()
	require.Len(t, ops, 4)
	assert.Equal(t, testutil.PhaseBegin, ops[0].Phase)
	assert.Equal(t, testutil.Op{Phase: testutil.PhaseWrite, Type: "delete", Key: "1"}, ops[1])
	assert.Equal(t, testutil.Op{Phase: testutil.PhaseWrite, Type: "insert", Key: "1"}, ops[2])
	assert.Equal(t, testutil.PhaseCommit, ops[3].Phase)
}

func TestSubmit_CanonicalBatch(t *testing.T) {
	handlers := collection.Handlers[entry]{
		Insert: func(ctx context.Context, txn collection.Transaction[entry]) (collection.Outcome[entry], error) {
			return collection.Canonical([]entry{{ID: "3", V: "C"}, {ID: "4", V: "D"}}), nil
		},
	}
	f := newFixture(t, []entry{{ID: "1", V: "a"}}, handlers)
	f.subscribe(t)
	f.sink.Reset()

	err := f.c.Submit(context.Background(), collection.Transaction[entry]{
		Type: collection.ChangeInsert,
		Mutations: []collection.Mutation[entry]{
			{Key: "3", Modified: entry{ID: "3", V: "c"}},
			{Key: "4", Modified: entry{ID: "4", V: "d"}},
		},
	})
	require.NoError(t, err)

	assert.ElementsMatch(t,
		[]entry{{ID: "1", V: "a"}, {ID: "3", V: "C"}, {ID: "4", V: "D"}},
		f.c.Items(),
	)

	// All batch deletes precede any canonical insert.
	writes := f.sink.Writes()
	require.Len(t, writes, 4)
	assert.Equal(t, "delete", writes[0].Type)
	assert.Equal(t, "delete", writes[1].Type)
	assert.Equal(t, "insert", writes[2].Type)
	assert.Equal(t, "insert", writes[3].Type)
}

func TestSubmit_EmptyOutcome(t *testing.T) {
	handlers := collection.Handlers[entry]{
		Insert: func(ctx context.Context, txn collection.Transaction[entry]) (collection.Outcome[entry], error) {
			return collection.None[entry](), nil
		},
	}
	f := newFixture(t, []entry{{ID: "1", V: "a"}}, handlers)
	f.subscribe(t)
	before := f.c.Items()
	f.sink.Reset()

	err := f.c.Submit(context.Background(), collection.Transaction[entry]{
		Type:      collection.ChangeInsert,
		Mutations: []collection.Mutation[entry]{{Key: "9", Modified: entry{ID: "9", V: "z"}}},
	})
	require.NoError(t, err)

	// No replacement: the view keeps its pre-call value.
	assert.Equal(t, before, f.c.Items())

	ops := f.sink.Ops()
	require.Len(t, ops, 3) // begin, delete optimistic row, commit
	assert.Equal(t, "delete", ops[1].Type)
	assert.Equal(t, "9", ops[1].Key)
}

func TestSubmit_NilHandlerSettlesEmpty(t *testing.T) {
	f := newFixture(t, []entry{{ID: "1", V: "a"}}, collection.Handlers[entry]{})
	f.subscribe(t)
	f.sink.Reset()

	err := f.c.Submit(context.Background(), updateTxn("1", entry{ID: "1", V: "x"}))
	require.NoError(t, err)

	assert.ElementsMatch(t, []entry{{ID: "1", V: "a"}}, f.c.Items())
	require.Len(t, f.sink.Ops(), 3)
}

func TestSubmit_RefetchFalse(t *testing.T) {
	handlers := collection.Handlers[entry]{
		Update: func(ctx context.Context, txn collection.Transaction[entry]) (collection.Outcome[entry], error) {
			return collection.Refetch[entry](false), nil
		},
	}
	f := newFixture(t, []entry{{ID: "1", V: "a"}}, handlers)
	f.subscribe(t)
	sourceCalls := f.calls
	f.sink.Reset()

	err := f.c.Submit(context.Background(), updateTxn("1", entry{ID: "1", V: "x"}))
	require.NoError(t, err)

	// Optimistic keys are final; no resync happened.
	assert.Equal(t, sourceCalls, f.calls)
	ops := f.sink.Ops()
	require.Len(t, ops, 3)
	assert.Equal(t, testutil.PhaseCommit, ops[2].Phase)
}

func TestSubmit_RefetchTrueChainsOneResync(t *testing.T) {
	handlers := collection.Handlers[entry]{
		Update: func(ctx context.Context, txn collection.Transaction[entry]) (collection.Outcome[entry], error) {
			return collection.Refetch[entry](true), nil
		},
	}
	f := newFixture(t, []entry{{ID: "1", V: "a"}}, handlers)
	f.subscribe(t)
	sourceCalls := f.calls
	f.items = []entry{{ID: "1", V: "server"}}
	f.sink.Reset()

	err := f.c.Submit(context.Background(), updateTxn("1", entry{ID: "1", V: "x"}))
	require.NoError(t, err)

	// Exactly one additional initial sync, after the mutation's commit.
	assert.Equal(t, sourceCalls+1, f.calls)
	assert.ElementsMatch(t, []entry{{ID: "1", V: "server"}}, f.c.Items())

	ops := f.sink.Ops()
	// Settlement: begin, delete, commit. Resync: begin, delete previous
	// view, insert fresh set, commit. No settlement-level writes beyond
	// the commit already issued for the mutation itself.
	require.Len(t, ops, 7)
	assert.Equal(t, testutil.PhaseCommit, ops[2].Phase)
	assert.Equal(t, testutil.PhaseBegin, ops[3].Phase)
	assert.Equal(t, "delete", ops[4].Type)
	assert.Equal(t, "insert", ops[5].Type)
	assert.Equal(t, testutil.PhaseCommit, ops[6].Phase)
}

func TestSubmit_WrapsTypedErrors(t *testing.T) {
	handlers := collection.Handlers[entry]{
		Delete: func(ctx context.Context, txn collection.Transaction[entry]) (collection.Outcome[entry], error) {
			return collection.Outcome[entry]{}, assert.AnError
		},
	}
	f := newFixture(t, []entry{{ID: "1", V: "a"}}, handlers)
	f.subscribe(t)

	err := f.c.Submit(context.Background(), collection.Transaction[entry]{
		Type:      collection.ChangeDelete,
		Mutations: []collection.Mutation[entry]{{Key: "1", Modified: entry{ID: "1", V: "a"}}},
	})

	require.Error(t, err)
	assert.True(t, collection.IsHandlerError(err))
	assert.ErrorIs(t, err, assert.AnError)

	var he *collection.HandlerError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, collection.ChangeDelete, he.Type)
}
