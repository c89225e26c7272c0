package harness

// Trace entry types.
const (
	TraceStep  = "step"
	TraceEvent = "event"
)

// Outcome of a step that returned no error.
const OutcomeOK = "ok"

// TraceEntry is one step outcome or one published change event.
type TraceEntry struct {
	Type string `json:"type"`
	Seq  int64  `json:"seq"`

	// Step fields.
	Op      string         `json:"op,omitempty"`
	Scope   string         `json:"scope,omitempty"`
	Args    map[string]any `json:"args,omitempty"`
	Outcome string         `json:"outcome,omitempty"`
	Result  map[string]any `json:"result,omitempty"`

	// Event fields.
	Action string         `json:"action,omitempty"`
	Model  string         `json:"model,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
}

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace lists steps and events in the order they happened.
	Trace []TraceEntry `json:"trace"`

	// Errors describes each failed expectation or assertion.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEntry{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Steps returns the step entries of the trace.
func (r *Result) Steps() []TraceEntry {
	return r.filter(TraceStep)
}

// Events returns the event entries of the trace.
func (r *Result) Events() []TraceEntry {
	return r.filter(TraceEvent)
}

func (r *Result) filter(typ string) []TraceEntry {
	var out []TraceEntry
	for _, e := range r.Trace {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// toCanonical converts an entry to the value shape canonical JSON accepts.
func (e TraceEntry) toCanonical() map[string]any {
	m := map[string]any{
		"type": e.Type,
		"seq":  e.Seq,
	}
	put := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	put("op", e.Op)
	put("scope", e.Scope)
	put("outcome", e.Outcome)
	put("action", e.Action)
	put("model", e.Model)
	if len(e.Args) > 0 {
		m["args"] = e.Args
	}
	if e.Result != nil {
		m["result"] = e.Result
	}
	if e.Data != nil {
		m["data"] = e.Data
	}
	return m
}
