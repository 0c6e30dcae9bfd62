// Package harness provides a conformance harness for the sync engine.
//
// A scenario runs a real Collection against a recording sink with
// scripted handler outcomes and sink faults, then exposes the final view,
// the complete sink operation trace, and per-step errors. The trace is
// deterministic: the engine serializes submissions and the static source
// preserves order, so golden-file comparison is stable across runs.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"

	"github.com/roach88/mirror/internal/collection"
	"github.com/roach88/mirror/internal/record"
	"github.com/roach88/mirror/internal/source"
	"github.com/roach88/mirror/internal/testutil"
)

// Result is the observable outcome of one scenario run.
type Result struct {
	Scenario string          `json:"scenario"`
	Trace    []testutil.Op   `json:"trace"`
	Items    []record.Record `json:"items"`
	Errors   []string        `json:"errors"`
}

// outcomeHolder hands the current step's scripted outcome to the shared
// mutation handler. Steps run strictly one at a time.
type outcomeHolder struct {
	mu   sync.Mutex
	spec *OutcomeSpec
}

func (h *outcomeHolder) set(spec *OutcomeSpec) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.spec = spec
}

func (h *outcomeHolder) next() (collection.Outcome[record.Record], error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	spec := h.spec
	switch {
	case spec == nil:
		return collection.None[record.Record](), nil
	case spec.Fail:
		return collection.Outcome[record.Record]{}, errors.New("scripted handler failure")
	case len(spec.Canonical) > 0:
		return collection.Canonical(spec.Canonical), nil
	case spec.Refetch != nil:
		return collection.Refetch[record.Record](*spec.Refetch), nil
	default:
		return collection.None[record.Record](), nil
	}
}

// Run executes a scenario and returns its result. Each scenario gets a
// fresh recording sink and a quiet logger for deterministic output.
func Run(scn *Scenario) (*Result, error) {
	sink := testutil.NewRecordingSink(record.Key)
	for _, f := range scn.Faults {
		sink.FailOn(f.Phase, f.Nth, fmt.Errorf("scripted %s fault", f.Phase))
	}

	holder := &outcomeHolder{}
	handler := func(ctx context.Context, txn collection.Transaction[record.Record]) (collection.Outcome[record.Record], error) {
		return holder.next()
	}

	c, err := collection.New(
		record.Key,
		source.Static(scn.Initial),
		func(ctx context.Context) (collection.SyncSink[record.Record], error) { return sink, nil },
		collection.Handlers[record.Record]{Insert: handler, Update: handler, Delete: handler},
		collection.WithLogger[record.Record](slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		return nil, fmt.Errorf("build collection: %w", err)
	}
	defer c.Unsubscribe()

	ctx := context.Background()
	if err := c.Subscribe(ctx); err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	<-c.Ready()

	result := &Result{
		Scenario: scn.Name,
		Errors:   make([]string, 0, len(scn.Steps)),
	}

	for i, step := range scn.Steps {
		var stepErr error
		switch {
		case step.Resync:
			stepErr = c.Resync(ctx)
		case step.Submit != nil:
			holder.set(step.Submit.Outcome)
			stepErr = c.Submit(ctx, submitTxn(step.Submit))
		default:
			return nil, fmt.Errorf("step %d: empty step", i)
		}

		if stepErr != nil {
			result.Errors = append(result.Errors, stepErr.Error())
		} else {
			result.Errors = append(result.Errors, "")
		}
	}

	result.Items = c.Items()
	result.Trace = sink.Ops()
	return result, nil
}

func submitTxn(sub *SubmitStep) collection.Transaction[record.Record] {
	txn := collection.Transaction[record.Record]{}
	switch sub.Type {
	case "insert":
		txn.Type = collection.ChangeInsert
	case "update":
		txn.Type = collection.ChangeUpdate
	case "delete":
		txn.Type = collection.ChangeDelete
	}
	for _, m := range sub.Mutations {
		txn.Mutations = append(txn.Mutations, collection.Mutation[record.Record]{
			Key:      m.Key,
			Modified: m,
		})
	}
	return txn
}

// Check evaluates a scenario's expectations against a result. The items
// expectation is order-insensitive; error expectations match by
// substring, with the empty string demanding success.
func Check(scn *Scenario, res *Result) []error {
	if scn.Expect == nil {
		return nil
	}

	var errs []error

	if scn.Expect.Items != nil {
		if err := matchItems(scn.Expect.Items, res.Items); err != nil {
			errs = append(errs, err)
		}
	}

	for i, want := range scn.Expect.Errors {
		got := ""
		if i < len(res.Errors) {
			got = res.Errors[i]
		}
		switch {
		case want == "" && got != "":
			errs = append(errs, fmt.Errorf("step %d: expected success, got %q", i, got))
		case want != "" && !strings.Contains(got, want):
			errs = append(errs, fmt.Errorf("step %d: error %q does not contain %q", i, got, want))
		}
	}

	return errs
}

func matchItems(want, got []record.Record) error {
	if len(want) != len(got) {
		return fmt.Errorf("expected %d items, got %d", len(want), len(got))
	}
	byKey := make(map[string]record.Record, len(got))
	for _, r := range got {
		byKey[r.Key] = r
	}
	for _, w := range want {
		g, ok := byKey[w.Key]
		if !ok {
			return fmt.Errorf("missing item with key %q", w.Key)
		}
		if !reflect.DeepEqual(w.Fields, g.Fields) {
			return fmt.Errorf("item %q: expected fields %v, got %v", w.Key, w.Fields, g.Fields)
		}
	}
	return nil
}
