package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/roach88/mirror/internal/collection"
	"github.com/roach88/mirror/internal/record"
	"github.com/roach88/mirror/internal/sink"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Database string
}

// ApplyResult is the success payload of the apply command.
type ApplyResult struct {
	Type      string `json:"type"`
	Mutations int    `json:"mutations"`
	Items     int    `json:"items"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <mutations-file>",
		Short: "Settle a mutation batch against the sink",
		Long: `Settle one batch of same-type mutations against the materialized view.

The batch settles transactionally: the affected keys are cleared and the
mutated records written back inside one sink transaction. A failed
settlement rolls the affected keys back to their previous state.

Example:
  mirror apply --db ./mirror.db ./mutations.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runApply(opts *ApplyOptions, mutationsPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd)

	data, err := os.ReadFile(mutationsPath)
	if err != nil {
		_ = formatter.Error(ErrCodeIO, "failed to read mutations file", err.Error())
		return WrapExitError(ExitCommandError, "failed to read mutations file", err)
	}
	txn, err := record.ParseMutations(data)
	if err != nil {
		_ = formatter.Error(ErrCodeDocument, "invalid mutations file", err.Error())
		return WrapExitError(ExitCommandError, "invalid mutations file", err)
	}

	st, err := sink.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeIO, "failed to open database", err.Error())
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	c, err := collection.New(
		record.Key,
		storedRecords(st),
		func(ctx context.Context) (collection.SyncSink[record.Record], error) {
			return sink.NewSession(st, record.Key), nil
		},
		acceptMutations(),
		collection.WithLogger[record.Record](logger),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build collection", err)
	}
	defer c.Unsubscribe()

	ctx := commandContext(cmd)
	if err := c.Subscribe(ctx); err != nil {
		_ = formatter.Error(ErrCodeSync, "failed to subscribe", err.Error())
		return WrapExitError(ExitFailure, "failed to subscribe", err)
	}
	<-c.Ready()

	if err := c.Submit(ctx, txn); err != nil {
		_ = formatter.Error(ErrCodeSync, "settlement failed", err.Error())
		return WrapExitError(ExitFailure, "settlement failed", err)
	}

	res := ApplyResult{Type: txn.Type.String(), Mutations: len(txn.Mutations), Items: c.Len()}
	if opts.Format == "json" {
		return formatter.Success(res)
	}
	return formatter.Success(fmt.Sprintf("settled %d %s mutation(s), %d item(s) materialized",
		res.Mutations, res.Type, res.Items))
}

// storedRecords serves the sink's own committed rows as the data source,
// so apply settles against whatever a previous sync materialized.
func storedRecords(st *sink.Store) collection.DataSource[record.Record] {
	return func(ctx context.Context) ([]record.Record, error) {
		rows, err := st.Rows(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]record.Record, 0, len(rows))
		for _, row := range rows {
			var r record.Record
			if err := json.Unmarshal(row.Doc, &r); err != nil {
				return nil, fmt.Errorf("decode stored doc for key %q: %w", row.Key, err)
			}
			out = append(out, r)
		}
		return out, nil
	}
}

// acceptMutations builds handlers that take every optimistic mutation as
// authoritative: inserts and updates settle to the mutated records,
// deletes settle to the removal of their keys.
func acceptMutations() collection.Handlers[record.Record] {
	accept := func(ctx context.Context, txn collection.Transaction[record.Record]) (collection.Outcome[record.Record], error) {
		items := make([]record.Record, 0, len(txn.Mutations))
		for _, m := range txn.Mutations {
			items = append(items, m.Modified)
		}
		return collection.Canonical(items), nil
	}
	remove := func(ctx context.Context, txn collection.Transaction[record.Record]) (collection.Outcome[record.Record], error) {
		return collection.Canonical[record.Record](nil), nil
	}
	return collection.Handlers[record.Record]{Insert: accept, Update: accept, Delete: remove}
}
