package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chash/internal/store"
)

func runTraceCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTraceMissingDatabaseFlag(t *testing.T) {
	_, err := runTraceCommand(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestTraceEmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "chash.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	output, err := runTraceCommand(t, "text", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, output, "No runs found in database.")
}

func TestTraceListRuns(t *testing.T) {
	dbPath := archiveConcreteRun(t)

	output, err := runTraceCommand(t, "text", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, output, "1 run(s)")
	assert.Contains(t, output, "cli-run")
	assert.Contains(t, output, "Commands: 5 (0 skipped)")
	assert.Contains(t, output, "Finished (5 acquisitions, 5 releases)")
}

func TestTraceListRunsJSON(t *testing.T) {
	dbPath := archiveConcreteRun(t)

	output, err := runTraceCommand(t, "json", "--db", dbPath)
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   []RunInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "cli-run", resp.Data[0].ID)
	assert.True(t, resp.Data[0].Finished)
	assert.Equal(t, 5, resp.Data[0].Commands)
}

func TestTraceRunEntries(t *testing.T) {
	dbPath := archiveConcreteRun(t)

	output, err := runTraceCommand(t, "text", "--db", dbPath, "--run", "cli-run")
	require.NoError(t, err)
	assert.Contains(t, output, "Trace for Run: cli-run")
	assert.Contains(t, output, "=== Entries ===")
	assert.Contains(t, output, "  [2] task 2: INSERT,3392050242,a,1")
	assert.Contains(t, output, "  [14] task 6: SEARCH: NOT FOUND")
	assert.Contains(t, output, "  [16] task 0: READ LOCK ACQUIRED")
}

func TestTraceFilterByName(t *testing.T) {
	dbPath := archiveConcreteRun(t)

	output, err := runTraceCommand(t, "json", "--db", dbPath, "--run", "cli-run", "--name", "a")
	require.NoError(t, err)

	var resp struct {
		Data TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))

	texts := make([]string, len(resp.Data.Entries))
	for i, e := range resp.Data.Entries {
		texts[i] = e.Text
	}
	assert.Equal(t, []string{
		"INSERT,3392050242,a,1",
		"SEARCH: 3392050242,a,1",
		"DELETE,a",
		"SEARCH: NOT FOUND",
	}, texts)
}

func TestTraceFilterByTask(t *testing.T) {
	dbPath := archiveConcreteRun(t)

	output, err := runTraceCommand(t, "json", "--db", dbPath, "--run", "cli-run", "--task", "4")
	require.NoError(t, err)

	var resp struct {
		Data TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	require.Len(t, resp.Data.Entries, 3)
	assert.Equal(t, TraceEntry{Seq: 7, Micros: 7, Task: 4, Event: "read_acquired", Text: "READ LOCK ACQUIRED"}, resp.Data.Entries[0])
	assert.Equal(t, "SEARCH: 3392050242,a,1", resp.Data.Entries[1].Text)
	assert.Equal(t, "READ LOCK RELEASED", resp.Data.Entries[2].Text)
}

func TestTraceUnknownRun(t *testing.T) {
	dbPath := archiveConcreteRun(t)

	_, err := runTraceCommand(t, "text", "--db", dbPath, "--run", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, store.ErrRunNotFound)
}

func TestTraceFilterRequiresRun(t *testing.T) {
	dbPath := archiveConcreteRun(t)

	_, err := runTraceCommand(t, "text", "--db", dbPath, "--name", "a")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "require --run")
}
