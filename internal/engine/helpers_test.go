package engine

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/chash/internal/auditlog"
	"github.com/roach88/chash/internal/records"
	"github.com/roach88/chash/internal/testutil"
)

// testRig bundles a coordinator with an in-memory audit log.
type testRig struct {
	coord *Coordinator
	log   *auditlog.Log
	buf   *bytes.Buffer
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	buf := &bytes.Buffer{}
	log := auditlog.New(buf, testutil.NewDeterministicClock(0))
	t.Cleanup(func() { log.Close() })
	return &testRig{
		coord: NewCoordinator(records.New(), log),
		log:   log,
		buf:   buf,
	}
}

// lines closes the log and returns its text lines.
func (r *testRig) lines(t *testing.T) []string {
	t.Helper()
	require.NoError(t, r.log.Close())
	text := strings.TrimRight(r.buf.String(), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// stripTimestamps drops the "<micros>: " prefix where present.
func stripTimestamps(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		if idx := strings.Index(l, ": "); idx > 0 && isDigits(l[:idx]) {
			out[i] = l[idx+2:]
			continue
		}
		out[i] = l
	}
	return out
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func indexOf(lines []string, want string) int {
	for i, l := range lines {
		if l == want {
			return i
		}
	}
	return -1
}
