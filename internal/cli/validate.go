package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/chash/internal/command"
	"github.com/roach88/chash/internal/config"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	ConfigPath     string
	NormalizeNames bool
}

// ValidationError is one problem found by validate.
type ValidationError struct {
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Text    string `json:"text,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid         bool              `json:"valid"`
	Commands      int               `json:"commands"`
	HeaderThreads int               `json:"header_threads,omitempty"`
	Errors        []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <commands-file>",
		Short: "Check a command file without running it",
		Long: `Parse a command file and report every line that run would skip.

With --config, the config file is also checked against the schema.

Exit codes:
  0 - Every line is well formed
  1 - Malformed lines or config violations found
  2 - Command error (file not readable, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "also validate this YAML config file")
	cmd.Flags().BoolVar(&opts.NormalizeNames, "nfc", false, "normalize names to Unicode NFC before checking")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	var errs []ValidationError

	if opts.ConfigPath != "" {
		cfg, err := config.Load(opts.ConfigPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			return outputValidateError(formatter, ErrCodeNotFound, err.Error(), nil)
		case err != nil:
			errs = append(errs, ValidationError{Code: ErrCodeConfigInvalid, Message: err.Error()})
		default:
			errs = append(errs, configViolations(cfg.Validate())...)
			if cfg.NormalizeNames {
				opts.NormalizeNames = true
			}
		}
	}

	batch, err := command.ParseFile(path, command.Options{NormalizeNames: opts.NormalizeNames})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return outputValidateError(formatter, ErrCodeNotFound, err.Error(), nil)
		}
		return outputValidateError(formatter, ErrCodeGeneric, err.Error(), nil)
	}
	formatter.VerboseLog("Parsed %d command(s) from %s", len(batch.Commands), path)

	for _, s := range batch.Skipped {
		errs = append(errs, ValidationError{
			Code:    ErrCodeMalformed,
			Line:    s.Line,
			Message: s.Reason,
			Text:    s.Text,
		})
	}

	result := ValidationResult{
		Valid:    len(errs) == 0,
		Commands: len(batch.Commands),
		Errors:   errs,
	}
	if batch.Header.Present {
		result.HeaderThreads = batch.Header.Threads
		if batch.Header.Threads != len(batch.Commands) {
			formatter.VerboseLog("threads header says %d, file has %d command(s)", batch.Header.Threads, len(batch.Commands))
		}
	}

	if len(errs) > 0 {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// configViolations converts config errors into validation errors, one per
// schema violation.
func configViolations(err error) []ValidationError {
	if err == nil {
		return nil
	}

	var out []ValidationError
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		for _, e := range joined.Unwrap() {
			var verr *config.ValidationError
			if errors.As(e, &verr) {
				out = append(out, ValidationError{Code: ErrCodeConfigInvalid, Field: verr.Field, Message: verr.Message})
			}
		}
	}
	if len(out) == 0 {
		out = append(out, ValidationError{Code: ErrCodeConfigInvalid, Message: err.Error()})
	}
	return out
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ %d command(s), no malformed lines\n", result.Commands)
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details interface{}) error {
	_ = formatter.Error(code, message, details)
	// Unreadable input is a command-level error (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		switch {
		case err.Line > 0:
			fmt.Fprintf(formatter.Writer, "line %d: %q\n", err.Line, err.Text)
		case err.Field != "":
			fmt.Fprintf(formatter.Writer, "config %s\n", err.Field)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
