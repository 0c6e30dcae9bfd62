package cli

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/roach88/mirror/internal/record"
	"github.com/roach88/mirror/internal/sink"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Database string
}

// StatusResult is the success payload of the status command.
type StatusResult struct {
	Database string          `json:"database"`
	Count    int             `json:"count"`
	Items    []record.Record `json:"items"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the materialized view",
		Long: `List every materialized row in the sink, ordered by key.

Example:
  mirror status --db ./mirror.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
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

	ctx := commandContext(cmd)
	rows, err := st.Rows(ctx)
	if err != nil {
		_ = formatter.Error(ErrCodeIO, "failed to read materialized rows", err.Error())
		return WrapExitError(ExitFailure, "failed to read materialized rows", err)
	}

	res := StatusResult{Database: opts.Database, Count: len(rows), Items: make([]record.Record, 0, len(rows))}
	for _, row := range rows {
		var r record.Record
		if err := json.Unmarshal(row.Doc, &r); err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("corrupt doc for key %q", row.Key), err)
		}
		res.Items = append(res.Items, r)
	}

	if opts.Format == "json" {
		return formatter.Success(res)
	}
	return formatter.Success(formatStatusText(res))
}

func formatStatusText(res StatusResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d item(s) in %s", res.Count, res.Database)
	for _, r := range res.Items {
		fmt.Fprintf(&b, "\n  %s: %v", r.Key, r.Fields)
	}
	return b.String()
}
