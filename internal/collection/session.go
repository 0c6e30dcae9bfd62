package collection

import "context"

// session is the typed adapter over the external SyncSink. Every sink
// failure is translated here, so the protocols above only ever see the
// typed taxonomy (BeginError, WriteError, CommitError) and can branch on
// the failing phase.
type session[T any] struct {
	sink SyncSink[T]
}

func newSession[T any](sink SyncSink[T]) *session[T] {
	return &session[T]{sink: sink}
}

func (s *session[T]) begin(ctx context.Context) error {
	if err := s.sink.Begin(ctx); err != nil {
		return &BeginError{Cause: err}
	}
	return nil
}

func (s *session[T]) write(ctx context.Context, ch Change[T]) error {
	if err := s.sink.Write(ctx, ch); err != nil {
		return &WriteError{Type: ch.Type, Item: ch.Value, Cause: err}
	}
	return nil
}

func (s *session[T]) commit(ctx context.Context) error {
	if err := s.sink.Commit(ctx); err != nil {
		return &CommitError{Cause: err}
	}
	return nil
}

// discard releases the session on teardown. Sinks that hold resources
// (an open database transaction, a connection) expose Discard; uncommitted
// work is treated as never having happened.
func (s *session[T]) discard() {
	if d, ok := s.sink.(interface{ Discard() error }); ok {
		_ = d.Discard()
	}
}
