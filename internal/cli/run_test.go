package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chash/internal/store"
	"github.com/roach88/chash/internal/testutil"
)

const concreteCommands = "threads,5,0\ninsert,a,1\ninsert,b,2\nsearch,a,0\ndelete,a,0\nsearch,a,0\n"

var concreteLog = []string{
	"1: WRITE LOCK ACQUIRED",
	"2: INSERT,3392050242,a,1",
	"3: WRITE LOCK RELEASED",
	"4: WRITE LOCK ACQUIRED",
	"5: INSERT,14385563,b,2",
	"6: WRITE LOCK RELEASED",
	"7: READ LOCK ACQUIRED",
	"8: SEARCH: 3392050242,a,1",
	"9: READ LOCK RELEASED",
	"10: WRITE LOCK ACQUIRED",
	"11: DELETE,a",
	"12: WRITE LOCK RELEASED",
	"13: READ LOCK ACQUIRED",
	"14: SEARCH: NOT FOUND",
	"15: READ LOCK RELEASED",
	"Finished all threads.",
	"Number of lock acquisitions: 5",
	"Number of lock releases: 5",
	"16: READ LOCK ACQUIRED",
	"14385563,b,2",
	"17: READ LOCK RELEASED",
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

// newTestRunCommand builds a run command with a deterministic clock and a
// fixed run ID.
func newTestRunCommand(format string) (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	cmd := newRunCommand(&RunOptions{
		RootOptions:    &RootOptions{Format: format},
		Clock:          testutil.NewDeterministicClock(0),
		RunIDGenerator: testutil.NewFixedRunIDGenerator("cli-run"),
	})
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd, stdout, stderr
}

// archiveConcreteRun runs the concrete command file sequentially into a
// fresh database and returns the database path.
func archiveConcreteRun(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	input := writeFile(t, dir, "commands.txt", concreteCommands)
	dbPath := filepath.Join(dir, "chash.db")

	cmd, _, _ := newTestRunCommand("text")
	cmd.SetArgs([]string{input, "--sequential", "--out", filepath.Join(dir, "output.txt"), "--db", dbPath})
	require.NoError(t, cmd.Execute())
	return dbPath
}

func TestRun_SequentialConcreteFile(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "commands.txt", concreteCommands)
	out := filepath.Join(dir, "output.txt")

	cmd, stdout, _ := newTestRunCommand("text")
	cmd.SetArgs([]string{input, "--sequential", "--out", out})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, concreteLog, readLines(t, out))

	assert.Contains(t, stdout.String(), "Ran 5 command(s)")
	assert.Contains(t, stdout.String(), "Locks: 5 acquired, 5 released")
	assert.Contains(t, stdout.String(), "Records: 1")
	assert.NotContains(t, stdout.String(), "Archived as run")
}

func TestRun_JSONSummaryWithArchive(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "commands.txt", concreteCommands)
	dbPath := filepath.Join(dir, "chash.db")

	cmd, stdout, _ := newTestRunCommand("json")
	cmd.SetArgs([]string{input, "--sequential", "--out", filepath.Join(dir, "output.txt"), "--db", dbPath})
	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string     `json:"status"`
		RunID  string     `json:"run_id"`
		Data   RunSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "cli-run", resp.RunID)
	assert.Equal(t, RunSummary{
		RunID:         "cli-run",
		Source:        input,
		Output:        filepath.Join(dir, "output.txt"),
		Database:      dbPath,
		Commands:      5,
		Records:       1,
		LocksAcquired: 5,
		LocksReleased: 5,
		LogLines:      21,
	}, resp.Data)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	run, err := st.GetRun(context.Background(), "cli-run")
	require.NoError(t, err)
	assert.True(t, run.Finished)
	assert.Equal(t, int64(5), run.LocksAcquired)
	assert.Equal(t, int64(5), run.LocksReleased)

	entries, err := st.ReadEntries(context.Background(), "cli-run", store.EntryFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 17, "one entry per timestamped line")

	snap, err := st.ReadSnapshot(context.Background(), "cli-run")
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, "b", snap[0].Name)
	assert.Equal(t, int32(2), snap[0].Salary)
}

func TestRun_AuditLogToStdout(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "commands.txt", concreteCommands)

	cmd, stdout, stderr := newTestRunCommand("text")
	cmd.SetArgs([]string{input, "--sequential", "--out", "-"})

	// The log writes to os.Stdout directly; only the summary placement is
	// checked here.
	require.NoError(t, cmd.Execute())
	assert.NotContains(t, stdout.String(), "Ran 5 command(s)")
	assert.Contains(t, stderr.String(), "Ran 5 command(s)")
}

func TestRun_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "commands.txt", "insert,a,1\nupsert,b,2\ninsert,c\nsearch,a,0\n")
	out := filepath.Join(dir, "output.txt")

	cmd, stdout, stderr := newTestRunCommand("text")
	cmd.SetArgs([]string{input, "--sequential", "--out", out})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, stdout.String(), "Ran 2 command(s)")
	assert.Contains(t, stdout.String(), "(2 malformed line(s) skipped)")
	assert.Contains(t, stderr.String(), "skipping malformed line")

	lines := readLines(t, out)
	assert.Contains(t, lines, "Number of lock acquisitions: 2")
}

func TestRun_HeaderMismatchWarns(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "commands.txt", "threads,9,0\ninsert,a,1\n")

	cmd, _, stderr := newTestRunCommand("text")
	cmd.SetArgs([]string{input, "--sequential", "--out", filepath.Join(dir, "output.txt")})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, stderr.String(), "threads header does not match command count")
}

func TestRun_MissingFile(t *testing.T) {
	dir := t.TempDir()

	cmd, _, _ := newTestRunCommand("text")
	cmd.SetArgs([]string{filepath.Join(dir, "nope.txt"), "--out", filepath.Join(dir, "output.txt")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to read command file")
}

func TestRun_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "commands.txt", concreteCommands)
	cfg := writeFile(t, dir, "chash.yaml", "workers: -1\nmetrics_file: metrics.txt\n")

	cmd, stdout, _ := newTestRunCommand("json")
	cmd.SetArgs([]string{input, "--config", cfg})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeConfigInvalid, resp.Error.Code)
}

func TestRun_FlagsOverrideConfig(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "commands.txt", concreteCommands)
	fromConfig := filepath.Join(dir, "from-config.txt")
	fromFlag := filepath.Join(dir, "from-flag.txt")
	cfg := writeFile(t, dir, "chash.yaml", "output: "+fromConfig+"\nworkers: 2\n")

	cmd, _, _ := newTestRunCommand("text")
	cmd.SetArgs([]string{input, "--sequential", "--config", cfg, "--out", fromFlag})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, concreteLog, readLines(t, fromFlag))
	assert.NoFileExists(t, fromConfig)
}

func TestRun_ConfigOutputUsedWithoutFlag(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "commands.txt", concreteCommands)
	fromConfig := filepath.Join(dir, "from-config.txt")
	cfg := writeFile(t, dir, "chash.yaml", "output: "+fromConfig+"\n")

	cmd, _, _ := newTestRunCommand("text")
	cmd.SetArgs([]string{input, "--sequential", "--config", cfg})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, concreteLog, readLines(t, fromConfig))
}

func TestRun_MetricsFile(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "commands.txt", concreteCommands)
	metricsPath := filepath.Join(dir, "chash.prom")

	cmd, _, _ := newTestRunCommand("text")
	cmd.SetArgs([]string{input, "--sequential", "--out", filepath.Join(dir, "output.txt"), "--metrics-file", metricsPath})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `chash_lock_acquisitions_total{mode="write"} 3`)
	assert.Contains(t, text, `chash_lock_acquisitions_total{mode="read"} 2`)
	assert.Contains(t, text, `chash_lock_releases_total{mode="write"} 3`)
	assert.Contains(t, text, "chash_delete_waits_total 0")
}

func TestRun_InterruptedWhileDeleteWaits(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "commands.txt", "insert,a,1\ndelete,ghost,0\n")
	out := filepath.Join(dir, "output.txt")
	dbPath := filepath.Join(dir, "chash.db")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	cmd, _, _ := newTestRunCommand("text")
	cmd.SetContext(ctx)
	cmd.SetArgs([]string{input, "--sequential", "--out", out, "--db", dbPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "run interrupted")

	lines := readLines(t, out)
	assert.Contains(t, lines, "5: WAITING ON INSERTS")
	assert.NotContains(t, lines, "Finished all threads.")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	run, err := st.GetRun(context.Background(), "cli-run")
	require.NoError(t, err)
	assert.False(t, run.Finished, "interrupted runs stay unfinished")

	entries, err := st.ReadEntries(context.Background(), "cli-run", store.EntryFilter{})
	require.NoError(t, err)
	assert.NotEmpty(t, entries, "entries written before the interrupt are archived")
}

func TestRun_JSONErrorCodes(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "commands.txt", concreteCommands)
	missingDir := filepath.Join(dir, "missing")

	tests := []struct {
		name     string
		args     []string
		wantCode string
		wantMsg  string
	}{
		{
			name:     "missing command file",
			args:     []string{filepath.Join(dir, "nope.txt"), "--out", filepath.Join(dir, "output.txt")},
			wantCode: ErrCodeNotFound,
			wantMsg:  "failed to read command file",
		},
		{
			name:     "unopenable database",
			args:     []string{input, "--out", filepath.Join(dir, "output.txt"), "--db", filepath.Join(missingDir, "chash.db")},
			wantCode: ErrCodeArchive,
			wantMsg:  "failed to open database",
		},
		{
			name:     "unwritable audit log",
			args:     []string{input, "--out", filepath.Join(missingDir, "output.txt")},
			wantCode: ErrCodeWriteFailed,
			wantMsg:  "failed to open audit log",
		},
		{
			name:     "unwritable metrics file",
			args:     []string{input, "--sequential", "--out", filepath.Join(dir, "output.txt"), "--metrics-file", filepath.Join(missingDir, "chash.prom")},
			wantCode: ErrCodeWriteFailed,
			wantMsg:  "failed to write metrics file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, stdout, _ := newTestRunCommand("json")
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))

			var resp CLIResponse
			require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Contains(t, resp.Error.Message, tt.wantMsg)
		})
	}
}
