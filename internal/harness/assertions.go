package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/chash/internal/records"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Log      []string // Full audit log for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Log) > 0 {
		fmt.Fprintf(&buf, "\nFull log:\n")
		for _, line := range e.Log {
			fmt.Fprintf(&buf, "  %s\n", line)
		}
	}

	return buf.String()
}

// assertFinalState checks that the snapshot equals the expected records,
// including their order.
func assertFinalState(result *Result, assertion Assertion) error {
	if len(result.Snapshot) != len(assertion.Records) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%d records: %s", len(assertion.Records), formatExpected(assertion.Records)),
			Actual:   fmt.Sprintf("%d records: %s", len(result.Snapshot), formatRecords(result.Snapshot)),
		}
	}

	for i, want := range assertion.Records {
		got := result.Snapshot[i]
		if got.Name != want.Name || got.Salary != want.Salary || (want.Hash != nil && got.Hash != *want.Hash) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("record %d = %s", i, formatExpected(assertion.Records[i:i+1])),
				Actual:   fmt.Sprintf("record %d = %d,%s,%d", i, got.Hash, got.Name, got.Salary),
			}
		}
	}
	return nil
}

// assertAbsent checks that no record with the given name survived.
func assertAbsent(result *Result, assertion Assertion) error {
	for _, r := range result.Snapshot {
		if r.Name == assertion.Name {
			return &AssertionError{
				Type:     AssertAbsent,
				Expected: fmt.Sprintf("no record named %q", assertion.Name),
				Actual:   fmt.Sprintf("found %d,%s,%d", r.Hash, r.Name, r.Salary),
			}
		}
	}
	return nil
}

// assertLogContains checks that some audit line equals assertion.Line.
func assertLogContains(result *Result, assertion Assertion) error {
	for _, e := range result.Events {
		if e == assertion.Line {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertLogContains,
		Expected: fmt.Sprintf("line %q", assertion.Line),
		Actual:   "not found in log",
		Log:      result.Lines,
	}
}

// assertLogCount checks that assertion.Line appears exactly Count times.
func assertLogCount(result *Result, assertion Assertion) error {
	count := 0
	for _, e := range result.Events {
		if e == assertion.Line {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertLogCount,
			Expected: fmt.Sprintf("%d occurrences of %q", assertion.Count, assertion.Line),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Log:      result.Lines,
		}
	}
	return nil
}

// assertLogOrder checks that the lines appear in order. Intervening lines
// are allowed. Each line is matched after the previous match.
func assertLogOrder(result *Result, assertion Assertion) error {
	pos := 0
	for _, want := range assertion.Lines {
		found := false
		for pos < len(result.Events) {
			pos++
			if result.Events[pos-1] == want {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertLogOrder,
				Expected: fmt.Sprintf("lines in order: %q", assertion.Lines),
				Actual:   fmt.Sprintf("%q not found after position %d", want, pos),
				Log:      result.Lines,
			}
		}
	}
	return nil
}

// assertCountersBalanced checks the lock counters.
func assertCountersBalanced(result *Result, assertion Assertion) error {
	s := result.Stats
	if s.Acquired != s.Released {
		return &AssertionError{
			Type:     AssertCountersBalanced,
			Expected: "acquisitions equal releases",
			Actual:   fmt.Sprintf("%d acquisitions, %d releases", s.Acquired, s.Released),
		}
	}
	if assertion.Locks > 0 && s.Acquired != assertion.Locks {
		return &AssertionError{
			Type:     AssertCountersBalanced,
			Expected: fmt.Sprintf("%d acquisitions", assertion.Locks),
			Actual:   fmt.Sprintf("%d acquisitions", s.Acquired),
		}
	}
	return nil
}

// assertSkipped checks how many input lines the parser rejected.
func assertSkipped(result *Result, assertion Assertion) error {
	if len(result.Skipped) != assertion.Count {
		reasons := make([]string, len(result.Skipped))
		for i, s := range result.Skipped {
			reasons[i] = s.Error()
		}
		return &AssertionError{
			Type:     AssertSkipped,
			Expected: fmt.Sprintf("%d skipped lines", assertion.Count),
			Actual:   fmt.Sprintf("%d skipped lines %q", len(result.Skipped), reasons),
		}
	}
	return nil
}

func formatExpected(recs []ExpectedRecord) string {
	parts := make([]string, len(recs))
	for i, r := range recs {
		if r.Hash != nil {
			parts[i] = fmt.Sprintf("%d,%s,%d", *r.Hash, r.Name, r.Salary)
		} else {
			parts[i] = fmt.Sprintf("%s,%d", r.Name, r.Salary)
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func formatRecords(recs []records.Record) string {
	parts := make([]string, len(recs))
	for i, r := range recs {
		parts[i] = fmt.Sprintf("%d,%s,%d", r.Hash, r.Name, r.Salary)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertFinalState:
			err = assertFinalState(result, assertion)
		case AssertAbsent:
			err = assertAbsent(result, assertion)
		case AssertLogContains:
			err = assertLogContains(result, assertion)
		case AssertLogCount:
			err = assertLogCount(result, assertion)
		case AssertLogOrder:
			err = assertLogOrder(result, assertion)
		case AssertCountersBalanced:
			err = assertCountersBalanced(result, assertion)
		case AssertSkipped:
			err = assertSkipped(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
