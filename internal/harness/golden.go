package harness

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden executes a sequential scenario and compares its audit log
// against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Concurrent scenarios interleave differently on every run and are rejected.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	if !scenario.Sequential {
		return nil, fmt.Errorf("scenario %q: golden comparison requires sequential: true", scenario.Name)
	}

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}

	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares the result's audit log against a golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(renderLog(result.Lines)))
}

func renderLog(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
