package collection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Collection is a locally materialized, keyed view of a remote data set.
//
// The zero value is not usable; construct with New. One Collection owns
// one item list, one sink session and one snapshot slot - their lifetimes
// are bound to Subscribe/Unsubscribe, never process-wide.
//
// Thread-safety model:
//   - Items(): safe from any goroutine (copy-on-read)
//   - Submit(): safe from any goroutine; calls are serialized end-to-end
//   - Subscribe()/Unsubscribe(): safe from any goroutine
type Collection[T any] struct {
	key      func(T) string
	source   DataSource[T]
	open     SessionFunc[T]
	handlers Handlers[T]
	logger   *slog.Logger
	ids      TxnIDGenerator

	// mu guards the materialized item list only.
	mu    sync.RWMutex
	items []T

	// settleMu serializes Submit (settlement plus any rollback) so a
	// second mutation can never overwrite the single-slot snapshot
	// before the first mutation's rollback consumes it.
	settleMu sync.Mutex

	// lifeMu guards subscription state: session, task, ready signal.
	lifeMu    sync.Mutex
	session   *session[T]
	task      *syncTask
	ready     chan struct{}
	readyOnce *sync.Once

	snapshot snapshotSlot[T]
}

// Option configures a Collection.
type Option[T any] func(*Collection[T])

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(c *Collection[T]) {
		c.logger = logger
	}
}

// WithIDGenerator overrides the transaction id generator (for tests).
func WithIDGenerator[T any](ids TxnIDGenerator) Option[T] {
	return func(c *Collection[T]) {
		c.ids = ids
	}
}

// New creates a Collection over the given key function, data source and
// session factory. Handlers may be the zero value, in which case every
// mutation settles as an empty outcome.
func New[T any](
	key func(T) string,
	source DataSource[T],
	open SessionFunc[T],
	handlers Handlers[T],
	opts ...Option[T],
) (*Collection[T], error) {
	if key == nil {
		return nil, fmt.Errorf("new collection: key function is required")
	}
	if source == nil {
		return nil, fmt.Errorf("new collection: data source is required")
	}
	if open == nil {
		return nil, fmt.Errorf("new collection: session factory is required")
	}

	c := &Collection[T]{
		key:       key,
		source:    source,
		open:      open,
		handlers:  handlers,
		logger:    slog.Default(),
		ids:       UUIDv7Generator{},
		ready:     make(chan struct{}),
		readyOnce: new(sync.Once),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Subscribe captures a fresh sink session and launches initial sync as a
// cancellable background task. Subscribing while already subscribed
// replaces the previous session and cancels its in-flight sync.
//
// The ready signal fires exactly once per subscription, whether or not
// the sync succeeded; observers are never left waiting indefinitely.
func (c *Collection[T]) Subscribe(ctx context.Context) error {
	sink, err := c.open(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: open sink session: %w", err)
	}

	c.lifeMu.Lock()
	// stop() waits for the sync goroutine, which takes lifeMu to signal
	// readiness, so the lock is dropped around it. A concurrent Subscribe
	// may install a new task in that window; re-check until none is left.
	for c.task != nil {
		prev := c.task
		c.task = nil
		c.lifeMu.Unlock()
		prev.stop()
		c.lifeMu.Lock()
	}
	if prev := c.session; prev != nil {
		prev.discard()
	}

	c.session = newSession(sink)
	c.ready = make(chan struct{})
	c.readyOnce = new(sync.Once)

	task, taskCtx := newSyncTask(ctx)
	c.task = task
	c.lifeMu.Unlock()

	go func() {
		defer task.finish()
		defer c.signalReady()

		if err := c.initialSync(taskCtx); err != nil {
			// Abandoned, not retried. The view keeps its prior value.
			c.logger.Error("initial sync failed", "error", err)
		}
	}()

	return nil
}

// Unsubscribe tears the subscription down: cancels the in-flight sync
// task, waits for it, then resets the item list and discards the snapshot
// and session. Safe to call at any point in the sync sequence, and when
// not subscribed.
func (c *Collection[T]) Unsubscribe() {
	c.lifeMu.Lock()
	task := c.task
	sess := c.session
	c.task = nil
	c.session = nil
	c.lifeMu.Unlock()

	if task != nil {
		task.stop()
	}
	if sess != nil {
		sess.discard()
	}

	c.snapshot.clear()
	c.replaceItems(nil)
	c.signalReady()
}

// Ready returns a channel closed once the current subscription's first
// sync attempt has resolved, successfully or not.
func (c *Collection[T]) Ready() <-chan struct{} {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	return c.ready
}

// Items returns a copy of the materialized view. Non-blocking for the
// protocols; eventually consistent with the last committed transaction.
func (c *Collection[T]) Items() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cp := make([]T, len(c.items))
	copy(cp, c.items)
	return cp
}

// Len returns the number of materialized items.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Resync re-runs the full initial sync synchronously. Used by the CLI and
// available to hosts that received an out-of-band invalidation.
func (c *Collection[T]) Resync(ctx context.Context) error {
	c.settleMu.Lock()
	defer c.settleMu.Unlock()
	return c.initialSync(ctx)
}

func (c *Collection[T]) signalReady() {
	c.lifeMu.Lock()
	once := c.readyOnce
	ready := c.ready
	c.lifeMu.Unlock()

	once.Do(func() { close(ready) })
}

func (c *Collection[T]) currentSession() *session[T] {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	return c.session
}

func (c *Collection[T]) replaceItems(items []T) {
	cp := make([]T, len(items))
	copy(cp, items)

	c.mu.Lock()
	c.items = cp
	c.mu.Unlock()
}

// mergeCanonical removes entries whose key matches any mutation key and
// appends the canonical items. Caller has already captured the snapshot.
func (c *Collection[T]) mergeCanonical(txn Transaction[T], canonical []T) {
	keys := txn.keys()

	c.mu.Lock()
	defer c.mu.Unlock()

	next := make([]T, 0, len(c.items)+len(canonical))
	for _, it := range c.items {
		if _, hit := keys[c.key(it)]; !hit {
			next = append(next, it)
		}
	}
	next = append(next, canonical...)
	c.items = next
}
