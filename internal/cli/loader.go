package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/chash/internal/config"
)

// Error codes used in JSON error responses.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeConfigInvalid = "E002" // Config file unreadable or fails the schema
	ErrCodeMalformed     = "E003" // Command file has malformed lines
	ErrCodeArchive       = "E004" // SQLite archive error
	ErrCodeNotFound      = "E005" // Path or run not found
	ErrCodeReplay        = "E006" // Archived snapshot differs from replay
	ErrCodeWriteFailed   = "E007" // Audit log or metrics write error
	ErrCodeInterrupted   = "E008" // Run cancelled while a delete was waiting
)

// newLogger builds the diagnostic logger. Diagnostics go to w (stderr),
// never to the audit log.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadRunConfig layers flags over the config file over the defaults.
// Only flags the user actually set override the file.
func loadRunConfig(opts *RunOptions, cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Resolve(opts.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("out") {
		cfg.Output = opts.Output
	}
	if flags.Changed("db") {
		cfg.Database = opts.Database
	}
	if flags.Changed("workers") {
		cfg.Workers = opts.Workers
	}
	if flags.Changed("nfc") {
		cfg.NormalizeNames = opts.NormalizeNames
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = opts.MetricsFile
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
