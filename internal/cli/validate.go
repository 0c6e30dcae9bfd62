package cli

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
	"github.com/spf13/cobra"

	"github.com/roach88/mirror/internal/record"
)

//go:embed schema.cue
var documentSchema string

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Kind string // "items" | "mutations"
}

// ValidationIssue is one schema or consistency violation.
type ValidationIssue struct {
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <document-file>",
		Short: "Validate a document without touching the sink",
		Long: `Validate an items or mutations document against its schema.

Checks YAML syntax, the document shape, and key uniqueness without
opening a database. Faster than a dry sync for editing feedback.

Example:
  mirror validate ./items.yaml
  mirror validate --kind mutations ./mutations.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "items", "document kind (items|mutations)")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	var schemaPath string
	switch opts.Kind {
	case "items":
		schemaPath = "#Items"
	case "mutations":
		schemaPath = "#Mutations"
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown document kind %q (want items or mutations)", opts.Kind))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		_ = formatter.Error(ErrCodeIO, "failed to read document", err.Error())
		return WrapExitError(ExitCommandError, "failed to read document", err)
	}

	issues := validateDocument(schemaPath, path, data)

	// Schema-clean documents still get the decoder's consistency checks,
	// which the schema cannot express (key uniqueness across items).
	if len(issues) == 0 {
		if err := decodeDocument(opts.Kind, data); err != nil {
			issues = append(issues, ValidationIssue{Message: err.Error()})
		}
	}

	if len(issues) > 0 {
		_ = formatter.Error(ErrCodeSchema, fmt.Sprintf("%s document is invalid", opts.Kind), issues)
		if opts.Format == "json" {
			// The envelope already carries the issues.
			return NewExitError(ExitFailure, "validation failed")
		}
		for _, issue := range issues {
			if issue.Line > 0 {
				fmt.Fprintf(formatter.Writer, "  %s:%d: %s\n", path, issue.Line, issue.Message)
			} else {
				fmt.Fprintf(formatter.Writer, "  %s: %s\n", path, issue.Message)
			}
		}
		return NewExitError(ExitFailure, "validation failed")
	}

	if opts.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true})
	}
	return formatter.Success(fmt.Sprintf("%s: valid %s document", path, opts.Kind))
}

// validateDocument unifies the YAML document with the schema definition
// named by schemaPath and collects every violation.
func validateDocument(schemaPath, path string, data []byte) []ValidationIssue {
	ctx := cuecontext.New()

	schema := ctx.CompileString(documentSchema, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return []ValidationIssue{{Message: fmt.Sprintf("internal schema error: %v", err)}}
	}

	file, err := cueyaml.Extract(path, data)
	if err != nil {
		return cueIssues(err)
	}

	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return cueIssues(err)
	}

	unified := schema.LookupPath(cue.ParsePath(schemaPath)).Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return cueIssues(err)
	}
	return nil
}

// decodeDocument runs the engine's own decoder, which enforces the
// checks listed in its documentation.
func decodeDocument(kind string, data []byte) error {
	switch kind {
	case "mutations":
		_, err := record.ParseMutations(data)
		return err
	default:
		_, err := record.ParseDocument(data)
		return err
	}
}

// cueIssues flattens a CUE error into per-position issues.
func cueIssues(err error) []ValidationIssue {
	var issues []ValidationIssue
	for _, e := range cueerrors.Errors(err) {
		issue := ValidationIssue{Message: e.Error()}
		if pos := e.Position(); pos.IsValid() {
			issue.Line = pos.Line()
		}
		issues = append(issues, issue)
	}
	if len(issues) == 0 {
		issues = append(issues, ValidationIssue{Message: err.Error()})
	}
	return issues
}
