// Package harness runs storefront scenarios described in YAML.
//
// A scenario seeds a catalog, then drives the cart and order ledgers
// through a flow of operations against a fresh in-memory store. Each step's
// outcome and every change event it publishes are appended to a trace.
// Steps may carry expectations (an error code or a subset of the result)
// and the scenario may end with assertions over the trace and final state.
//
// Time, session keys and order numbers are deterministic, so the trace of
// a scenario is byte-stable and can be compared against a golden file:
//
//	go test ./internal/harness -update
//
// regenerates testdata/golden/*.golden.
//
// Scenarios may inject write contention (contention: N) to exercise the
// retry path; a retried step must produce the same trace as an uncontended
// one.
package harness
