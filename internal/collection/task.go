package collection

import "context"

// syncTask is the handle for the background initial-sync goroutine: a
// cancellation token plus a join channel. Teardown cancels the context
// and waits for the goroutine to drain before resources are discarded.
type syncTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// newSyncTask derives a cancellable context for the task goroutine.
func newSyncTask(parent context.Context) (*syncTask, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &syncTask{cancel: cancel, done: make(chan struct{})}, ctx
}

// finish marks the task complete. Must be deferred by the task goroutine.
func (t *syncTask) finish() {
	close(t.done)
}

// stop cancels the task and blocks until the goroutine has exited.
// Safe to call after the task already finished.
func (t *syncTask) stop() {
	t.cancel()
	<-t.done
}
