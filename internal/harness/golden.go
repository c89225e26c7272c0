package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/storefront/internal/notify"
)

// GoldenDir holds the recorded traces.
const GoldenDir = "testdata/golden"

// TraceSnapshot renders the trace of result as canonical JSON followed by a
// newline. Identical runs produce identical bytes.
func TraceSnapshot(name string, result *Result) ([]byte, error) {
	trace := make([]any, len(result.Trace))
	for i, e := range result.Trace {
		trace[i] = e.toCanonical()
	}
	data, err := notify.MarshalCanonical(map[string]any{
		"scenario": name,
		"trace":    trace,
	})
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden runs scenario, fails t on any expectation or assertion
// failure, and compares the trace with testdata/golden/<name>.golden.
// Run the test with -update to rewrite the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		t.Fatalf("scenario %s: %v", scenario.Name, err)
	}
	for _, msg := range result.Errors {
		t.Errorf("scenario %s: %s", scenario.Name, msg)
	}

	snapshot, err := TraceSnapshot(scenario.Name, result)
	if err != nil {
		t.Fatalf("scenario %s: snapshot: %v", scenario.Name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, snapshot)
	return result
}
