package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Commands are command-file lines, without the optional threads header.
	// Malformed lines are allowed and show up in Result.Skipped.
	Commands []string `yaml:"commands"`

	// Sequential runs commands one at a time in order. Required for golden
	// comparison since concurrent runs interleave nondeterministically.
	Sequential bool `yaml:"sequential,omitempty"`

	// Workers bounds concurrent tasks when Sequential is false.
	Workers int `yaml:"workers,omitempty"`

	NormalizeNames bool `yaml:"normalize_names,omitempty"`

	// Timeout cancels the run after the given duration (e.g. "100ms").
	// Use with ExpectInterrupted for deletes that never see their insert.
	Timeout string `yaml:"timeout,omitempty"`

	// ExpectInterrupted states that the run must end in an interrupted delete.
	ExpectInterrupted bool `yaml:"expect_interrupted,omitempty"`

	// RunID fixes the archive run ID. Defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`

	// Assertions validate the final log and state.
	Assertions []Assertion `yaml:"assertions"`
}

// ExpectedRecord is one row of a final_state assertion.
type ExpectedRecord struct {
	Name   string `yaml:"name"`
	Salary int32  `yaml:"salary"`

	// Hash is checked only when set.
	Hash *uint32 `yaml:"hash,omitempty"`
}

// Assertion validates the audit log or the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Line is an audit line without its timestamp (log_contains, log_count).
	Line string `yaml:"line,omitempty"`

	// Lines is the expected order (log_order).
	Lines []string `yaml:"lines,omitempty"`

	// Count is the expected number of occurrences (log_count, skipped).
	Count int `yaml:"count,omitempty"`

	// Records is the exact expected snapshot (final_state).
	Records []ExpectedRecord `yaml:"records,omitempty"`

	// Name is the record name (absent).
	Name string `yaml:"name,omitempty"`

	// Locks is the expected acquisition count (counters_balanced). Zero
	// checks balance only.
	Locks int64 `yaml:"locks,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalState       = "final_state"
	AssertAbsent           = "absent"
	AssertLogContains      = "log_contains"
	AssertLogCount         = "log_count"
	AssertLogOrder         = "log_order"
	AssertCountersBalanced = "counters_balanced"
	AssertSkipped          = "skipped"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// timeout returns the parsed Timeout, or zero when unset.
func (s *Scenario) timeout() time.Duration {
	if s.Timeout == "" {
		return 0
	}
	d, _ := time.ParseDuration(s.Timeout) // checked by validateScenario
	return d
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Commands) == 0 {
		return fmt.Errorf("commands list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Workers < 0 {
		return fmt.Errorf("workers must be non-negative")
	}

	if s.Timeout != "" {
		d, err := time.ParseDuration(s.Timeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("timeout must be positive")
		}
	}

	if s.ExpectInterrupted && s.Timeout == "" {
		return fmt.Errorf("expect_interrupted requires a timeout")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFinalState:
		for j, r := range a.Records {
			if r.Name == "" {
				return fmt.Errorf("assertions[%d].records[%d]: name is required", index, j)
			}
		}
	case AssertAbsent:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for absent", index)
		}
	case AssertLogContains:
		if a.Line == "" {
			return fmt.Errorf("assertions[%d]: line is required for log_contains", index)
		}
	case AssertLogCount:
		if a.Line == "" {
			return fmt.Errorf("assertions[%d]: line is required for log_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for log_count", index)
		}
	case AssertLogOrder:
		if len(a.Lines) < 2 {
			return fmt.Errorf("assertions[%d]: at least two lines are required for log_order", index)
		}
	case AssertCountersBalanced:
		if a.Locks < 0 {
			return fmt.Errorf("assertions[%d]: locks must be non-negative", index)
		}
	case AssertSkipped:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for skipped", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
