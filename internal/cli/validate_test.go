package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runValidateCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestValidateCleanFile(t *testing.T) {
	input := writeFile(t, t.TempDir(), "commands.txt", concreteCommands)

	output, err := runValidateCommand(t, "text", input)
	require.NoError(t, err)
	assert.Contains(t, output, "✓ 5 command(s), no malformed lines")
}

func TestValidateCleanFileJSON(t *testing.T) {
	input := writeFile(t, t.TempDir(), "commands.txt", concreteCommands)

	output, err := runValidateCommand(t, "json", input)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 5, resp.Data.Commands)
	assert.Equal(t, 5, resp.Data.HeaderThreads)
}

func TestValidateMalformedLines(t *testing.T) {
	input := writeFile(t, t.TempDir(), "commands.txt", "insert,a,1\nupsert,b,2\ninsert,c,x\n")

	output, err := runValidateCommand(t, "text", input)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed with 2 error(s)")

	assert.Contains(t, output, "✗ Validation failed")
	assert.Contains(t, output, `line 2: "upsert,b,2"`)
	assert.Contains(t, output, `unknown operation "upsert"`)
	assert.Contains(t, output, `line 3: "insert,c,x"`)
	assert.Contains(t, output, "E003: value is not a 32-bit integer")
}

func TestValidateMalformedLinesJSON(t *testing.T) {
	input := writeFile(t, t.TempDir(), "commands.txt", "insert,a,1\ndelete,b\n")

	output, err := runValidateCommand(t, "json", input)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	assert.Equal(t, 1, resp.Data.Commands)
	require.Len(t, resp.Data.Errors, 1)
	assert.Equal(t, ValidationError{
		Code:    ErrCodeMalformed,
		Line:    2,
		Message: "expected 3 fields, got 2",
		Text:    "delete,b",
	}, resp.Data.Errors[0])
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMalformed, resp.Error.Code)
}

func TestValidateMissingFile(t *testing.T) {
	output, err := runValidateCommand(t, "text", filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, output, "Error [E005]")
}

func TestValidateWithConfig(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "commands.txt", concreteCommands)
	cfg := writeFile(t, dir, "chash.yaml", "workers: 4\nmetrics_file: chash.prom\n")

	output, err := runValidateCommand(t, "text", input, "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, output, "✓ 5 command(s)")
}

func TestValidateBadConfig(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "commands.txt", concreteCommands)
	cfg := writeFile(t, dir, "chash.yaml", "workers: -3\n")

	output, err := runValidateCommand(t, "text", input, "--config", cfg)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, output, "workers")
	assert.Contains(t, output, "E002:")
}

func TestValidateUnknownConfigKey(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "commands.txt", concreteCommands)
	cfg := writeFile(t, dir, "chash.yaml", "threads: 4\n")

	output, err := runValidateCommand(t, "text", input, "--config", cfg)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, output, "E002:")
}

func TestValidateMissingConfig(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "commands.txt", concreteCommands)

	_, err := runValidateCommand(t, "text", input, "--config", filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateVerboseReportsHeaderMismatch(t *testing.T) {
	input := writeFile(t, t.TempDir(), "commands.txt", "threads,3,0\ninsert,a,1\n")

	stderr := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text", Verbose: true})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(stderr)
	cmd.SetArgs([]string{input})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, stderr.String(), "Parsed 1 command(s)")
	assert.Contains(t, stderr.String(), "threads header says 3, file has 1 command(s)")
}

func TestConfigViolations(t *testing.T) {
	assert.Nil(t, configViolations(nil))

	got := configViolations(assert.AnError)
	require.Len(t, got, 1)
	assert.Equal(t, ErrCodeConfigInvalid, got[0].Code)
	assert.Empty(t, got[0].Field)
}
