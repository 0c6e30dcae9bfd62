package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/mirror/internal/collection"
	"github.com/roach88/mirror/internal/record"
	"github.com/roach88/mirror/internal/sink"
	"github.com/roach88/mirror/internal/source"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Database string
}

// SyncResult is the success payload of the sync command.
type SyncResult struct {
	Items    int    `json:"items"`
	Database string `json:"database"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync <items-file>",
		Short: "Materialize an items file into the sink",
		Long: `Materialize the authoritative items file into the SQLite sink.

The sink is cleared and rebuilt inside one transaction, so readers only
ever observe the previous or the new state.

Example:
  mirror sync --db ./mirror.db ./items.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runSync(opts *SyncOptions, itemsPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd)

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
		source.File(itemsPath),
		func(ctx context.Context) (collection.SyncSink[record.Record], error) {
			return sink.NewSession(st, record.Key), nil
		},
		collection.Handlers[record.Record]{},
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

	// The subscription sync runs in the background and only logs its
	// failure. Rerun it synchronously so the command can report it.
	if err := c.Resync(ctx); err != nil {
		_ = formatter.Error(ErrCodeSync, "sync failed", err.Error())
		return WrapExitError(ExitFailure, "sync failed", err)
	}

	res := SyncResult{Items: c.Len(), Database: opts.Database}
	if opts.Format == "json" {
		return formatter.Success(res)
	}
	formatter.VerboseLog("materialized %s into %s", itemsPath, opts.Database)
	return formatter.Success(formatSyncText(res))
}

func formatSyncText(res SyncResult) string {
	return fmt.Sprintf("materialized %d item(s) into %s", res.Items, res.Database)
}

// newLogger builds the command logger. Diagnostics go to stderr so JSON
// output on stdout stays parseable.
func newLogger(opts *RootOptions, cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
