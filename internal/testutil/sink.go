// Package testutil provides deterministic helpers for exercising the sync
// protocols: a recording sink with scripted fault injection, shared by the
// collection tests and the conformance harness.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/mirror/internal/collection"
)

// Sink operation phases, as recorded in the op trace and addressed by
// fault injection. Write faults may target a specific change type with
// "write.insert", "write.update" or "write.delete".
const (
	PhaseBegin  = "begin"
	PhaseWrite  = "write"
	PhaseCommit = "commit"
)

// Op is one recorded sink operation.
type Op struct {
	Phase string `json:"phase"`
	// Type and Key are set for write ops only.
	Type string `json:"type,omitempty"`
	Key  string `json:"key,omitempty"`
}

// RecordingSink implements collection.SyncSink by recording every
// operation. Faults are scripted per phase and fire on the nth call.
//
// Thread-safe: all methods may be called from any goroutine.
type RecordingSink[T any] struct {
	mu     sync.Mutex
	key    func(T) string
	ops    []Op
	calls  map[string]int
	faults map[string]fault
	open   bool
}

type fault struct {
	nth int
	err error
}

// NewRecordingSink creates a sink that records operations, using key to
// label written items in the trace.
func NewRecordingSink[T any](key func(T) string) *RecordingSink[T] {
	return &RecordingSink[T]{
		key:    key,
		calls:  make(map[string]int),
		faults: make(map[string]fault),
	}
}

// FailOn arranges for the nth call (1-based) of the given phase to fail
// with err. Phases without a scripted fault always succeed.
func (s *RecordingSink[T]) FailOn(phase string, nth int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[phase] = fault{nth: nth, err: err}
}

// Begin implements collection.SyncSink.
func (s *RecordingSink[T]) Begin(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkFault(PhaseBegin); err != nil {
		return err
	}
	s.open = true
	s.ops = append(s.ops, Op{Phase: PhaseBegin})
	return nil
}

// Write implements collection.SyncSink.
func (s *RecordingSink[T]) Write(ctx context.Context, ch collection.Change[T]) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return fmt.Errorf("write outside transaction")
	}
	// Type-specific faults take precedence over the generic write fault.
	if err := s.checkFault(PhaseWrite + "." + ch.Type.String()); err != nil {
		return err
	}
	if err := s.checkFault(PhaseWrite); err != nil {
		return err
	}
	s.ops = append(s.ops, Op{
		Phase: PhaseWrite,
		Type:  ch.Type.String(),
		Key:   s.key(ch.Value),
	})
	return nil
}

// Commit implements collection.SyncSink.
func (s *RecordingSink[T]) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return fmt.Errorf("commit outside transaction")
	}
	if err := s.checkFault(PhaseCommit); err != nil {
		return err
	}
	s.open = false
	s.ops = append(s.ops, Op{Phase: PhaseCommit})
	return nil
}

// checkFault counts a call against the phase and returns the scripted
// error when the nth call is reached. Caller holds s.mu.
func (s *RecordingSink[T]) checkFault(phase string) error {
	f, scripted := s.faults[phase]
	if !scripted {
		return nil
	}
	s.calls[phase]++
	if s.calls[phase] == f.nth {
		return f.err
	}
	return nil
}

// Ops returns a copy of the recorded operation trace.
func (s *RecordingSink[T]) Ops() []Op {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]Op, len(s.ops))
	copy(cp, s.ops)
	return cp
}

// Writes returns only the write ops, in order.
func (s *RecordingSink[T]) Writes() []Op {
	var ws []Op
	for _, op := range s.Ops() {
		if op.Phase == PhaseWrite {
			ws = append(ws, op)
		}
	}
	return ws
}

// Reset clears the trace and call counters but keeps scripted faults.
func (s *RecordingSink[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = nil
	s.calls = make(map[string]int)
	s.open = false
}
