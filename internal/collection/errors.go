package collection

import (
	"errors"
	"fmt"
)

// QueryError wraps a failure of the remote data source during initial sync.
type QueryError struct {
	Cause error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query remote source: %v", e.Cause)
}

func (e *QueryError) Unwrap() error { return e.Cause }

// BeginError wraps a failure to open a sink transaction.
type BeginError struct {
	Cause error
}

func (e *BeginError) Error() string {
	return fmt.Sprintf("begin sink transaction: %v", e.Cause)
}

func (e *BeginError) Unwrap() error { return e.Cause }

// CommitError wraps a failure to commit a sink transaction.
type CommitError struct {
	Cause error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit sink transaction: %v", e.Cause)
}

func (e *CommitError) Unwrap() error { return e.Cause }

// WriteError wraps a single-item sink write failure. It carries the change
// type and the offending item so failures are distinguishable per phase.
type WriteError struct {
	Type  ChangeType
	Item  any
	Cause error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s change to sink: %v", e.Type, e.Cause)
}

func (e *WriteError) Unwrap() error { return e.Cause }

// HandlerError wraps a mutation handler failure. Settlement transitions
// straight to rollback when it sees one.
type HandlerError struct {
	Type  ChangeType
	Cause error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s mutation handler: %v", e.Type, e.Cause)
}

func (e *HandlerError) Unwrap() error { return e.Cause }

// NotInitializedError reports an operation attempted with no live session.
// This is a defect class: it indicates a protocol-ordering bug in the
// caller (submit before subscribe, or after unsubscribe), not a transient
// condition. Do not catch-and-continue it in production paths.
type NotInitializedError struct {
	Op string
}

func (e *NotInitializedError) Error() string {
	return fmt.Sprintf("%s: collection has no live sync session (subscribe first)", e.Op)
}

// RollbackError reports that best-effort recovery itself failed or was
// invoked without a snapshot. It is logged, never re-raised to callers.
type RollbackError struct {
	Reason string
	Cause  error
}

func (e *RollbackError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("rollback: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("rollback: %s", e.Reason)
}

func (e *RollbackError) Unwrap() error { return e.Cause }

// IsNotInitialized returns true if the error is a usage defect from a
// missing session. Uses errors.As to handle wrapped errors.
func IsNotInitialized(err error) bool {
	var ne *NotInitializedError
	return errors.As(err, &ne)
}

// IsHandlerError returns true if the error originated in a mutation
// handler rather than the sink.
func IsHandlerError(err error) bool {
	var he *HandlerError
	return errors.As(err, &he)
}

// IsSinkError returns true if the error came from a sink begin, write or
// commit operation.
func IsSinkError(err error) bool {
	var be *BeginError
	var we *WriteError
	var ce *CommitError
	return errors.As(err, &be) || errors.As(err, &we) || errors.As(err, &ce)
}
