package collection

import "context"

// ChangeType distinguishes the three mutation kinds.
type ChangeType int

const (
	// ChangeInsert adds a new item to the collection.
	ChangeInsert ChangeType = iota + 1
	// ChangeUpdate replaces an existing item.
	ChangeUpdate
	// ChangeDelete removes an item.
	ChangeDelete
)

// String returns the lowercase name used in logs and error messages.
func (t ChangeType) String() string {
	switch t {
	case ChangeInsert:
		return "insert"
	case ChangeUpdate:
		return "update"
	case ChangeDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Change is the unit of work sent to the sync sink.
type Change[T any] struct {
	Type  ChangeType
	Value T
}

// Mutation pairs a key with the optimistic (locally modified) item.
type Mutation[T any] struct {
	Key      string
	Modified T
}

// Transaction is a batch of same-type mutations submitted together.
// The engine treats the batch atomically for snapshot and rollback:
// recovery is all-or-nothing across the batch.
type Transaction[T any] struct {
	Type      ChangeType
	Mutations []Mutation[T]
}

// keys returns the set of optimistic keys in the batch.
func (t Transaction[T]) keys() map[string]struct{} {
	ks := make(map[string]struct{}, len(t.Mutations))
	for _, m := range t.Mutations {
		ks[m.Key] = struct{}{}
	}
	return ks
}

// DataSource supplies the full authoritative item set for initial sync.
type DataSource[T any] func(ctx context.Context) ([]T, error)

// SyncSink is the external transactional write target. All three
// operations may fail independently; failures are translated into the
// typed errors in this package before they propagate.
//
// A sink value is bound to one subscription session. Subscribing again
// captures a fresh sink and discards the previous one.
type SyncSink[T any] interface {
	Begin(ctx context.Context) error
	Write(ctx context.Context, ch Change[T]) error
	Commit(ctx context.Context) error
}

// SessionFunc opens a sink session for a new subscription.
type SessionFunc[T any] func(ctx context.Context) (SyncSink[T], error)

// Handler settles one mutation transaction against the remote authority.
// It may batch or parallelize internally. The returned Outcome selects the
// reconciliation branch; an error triggers rollback.
type Handler[T any] func(ctx context.Context, txn Transaction[T]) (Outcome[T], error)

// Handlers holds one handler per mutation type. A nil handler settles as
// an empty outcome: the optimistic rows are simply removed from the sink
// and the in-memory view is left alone.
type Handlers[T any] struct {
	Insert Handler[T]
	Update Handler[T]
	Delete Handler[T]
}

func (h Handlers[T]) forType(t ChangeType) Handler[T] {
	switch t {
	case ChangeInsert:
		return h.Insert
	case ChangeUpdate:
		return h.Update
	case ChangeDelete:
		return h.Delete
	default:
		return nil
	}
}

type outcomeKind int

const (
	outcomeEmpty outcomeKind = iota
	outcomeCanonical
	outcomeRefetch
)

// Outcome is the closed set of handler results. Refetch and the empty
// outcome are expected results, not errors - they must never travel as
// error values.
type Outcome[T any] struct {
	kind      outcomeKind
	canonical []T
	refetch   bool
}

// None reports that no reconciliation is needed. The optimistic rows are
// removed from the sink and the in-memory view keeps its pre-call value.
func None[T any]() Outcome[T] {
	return Outcome[T]{kind: outcomeEmpty}
}

// Canonical reports the server's authoritative replacement for the
// affected rows. The engine removes entries matching the batch keys and
// appends these items.
func Canonical[T any](items []T) Outcome[T] {
	return Outcome[T]{kind: outcomeCanonical, canonical: items}
}

// Refetch directs the engine to either treat the optimistic keys as final
// (again=false) or re-run a full initial sync after commit (again=true).
func Refetch[T any](again bool) Outcome[T] {
	return Outcome[T]{kind: outcomeRefetch, refetch: again}
}
