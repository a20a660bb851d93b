// Package harness runs chash conformance scenarios.
//
// A scenario is a YAML file listing command lines, how to execute them and
// what the run must show afterwards:
//
//	name: concrete
//	description: "Five commands run one at a time"
//	sequential: true
//	commands:
//	  - insert,a,1
//	  - insert,b,2
//	  - search,a,0
//	  - delete,a,0
//	  - search,a,0
//	assertions:
//	  - type: final_state
//	    records:
//	      - { name: b, salary: 2 }
//	  - type: counters_balanced
//	    locks: 5
//
// # Assertion Types
//
//   - final_state: the final snapshot equals records, in snapshot order
//   - absent: no record named name survives the run
//   - log_contains: an audit line (timestamp stripped) equals line
//   - log_count: line appears exactly count times
//   - log_order: lines appear in this order, not necessarily adjacent
//   - counters_balanced: acquisitions equal releases, and equal locks if set
//   - skipped: exactly count input lines were rejected by the parser
//
// # Deterministic Runs
//
// Every run uses a fresh in-memory SQLite archive, a fixed run ID and a
// testutil.DeterministicClock starting at zero, so a sequential scenario
// produces a byte-identical audit log that can be compared against
// testdata/golden/<name>.golden with RunWithGolden.
//
// After each run the archived entries are replayed with engine.Replay and
// checked against the archived snapshot; a mismatch fails the scenario.
package harness
