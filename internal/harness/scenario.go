package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/storefront/internal/ledger"
)

// Scenario is a scripted run against the ledgers.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description"`

	// TaxRate overrides the default cart tax rate (decimal string).
	TaxRate string `yaml:"tax_rate,omitempty"`

	// Delivery overrides the built-in delivery tariff.
	Delivery map[string]string `yaml:"delivery,omitempty"`

	// Contention is the number of injected SQLITE_BUSY failures the
	// retry handler must absorb before commits succeed.
	Contention int `yaml:"contention,omitempty"`

	// Products seeds the catalog.
	Products []ProductSeed `yaml:"products"`

	// Flow is the sequence of ledger operations.
	Flow []Step `yaml:"flow"`

	// Assertions are checked after the flow.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ProductSeed is one catalog row.
type ProductSeed struct {
	ID        int64  `yaml:"id"`
	Name      string `yaml:"name"`
	Price     string `yaml:"price"`
	Available *bool  `yaml:"available,omitempty"`
}

// IsAvailable defaults to true.
func (p ProductSeed) IsAvailable() bool {
	return p.Available == nil || *p.Available
}

// Step invokes one ledger operation.
type Step struct {
	// Op names the operation, e.g. "cart.upsert". See Ops.
	Op string `yaml:"op"`

	// Scope is "session:<key>" or "user:<id>".
	Scope string `yaml:"scope"`

	// Args are the operation arguments.
	Args map[string]any `yaml:"args,omitempty"`

	// Expect, if set, is checked against the step outcome.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the expected step outcome.
type Expect struct {
	// Error is the expected error code; empty means success.
	Error string `yaml:"error,omitempty"`

	// Result is a subset match against the step result.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion checks the trace or final state after the flow.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Model and Action select events (event_count).
	Model  string `yaml:"model,omitempty"`
	Action string `yaml:"action,omitempty"`

	// Events is the expected event order as "model.action" (event_order).
	Events []string `yaml:"events,omitempty"`

	// Scope selects whose state to inspect (cart_lines, orders).
	Scope string `yaml:"scope,omitempty"`

	// Count is the expected number of matches.
	Count int `yaml:"count"`
}

// Assertion types.
const (
	AssertEventCount = "event_count"
	AssertEventOrder = "event_order"
	AssertCartLines  = "cart_lines"
	AssertOrders     = "orders"
)

// LoadScenario reads and validates a scenario file. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// FindScenarios returns the .yaml and .yml files directly under dir, sorted.
func FindScenarios(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if s.Contention < 0 {
		return fmt.Errorf("contention must be non-negative")
	}

	for i, p := range s.Products {
		if p.ID <= 0 {
			return fmt.Errorf("products[%d]: id must be positive", i)
		}
		if p.Name == "" || p.Price == "" {
			return fmt.Errorf("products[%d]: name and price are required", i)
		}
	}

	for i, step := range s.Flow {
		if _, ok := ops[step.Op]; !ok {
			return fmt.Errorf("flow[%d]: unknown op %q", i, step.Op)
		}
		if _, err := ledger.ParseScope(step.Scope); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case AssertEventCount:
		if a.Model == "" || a.Action == "" {
			return fmt.Errorf("assertions[%d]: model and action are required for event_count", index)
		}
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for event_order", index)
		}
	case AssertCartLines, AssertOrders:
		if _, err := ledger.ParseScope(a.Scope); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}
	return nil
}
