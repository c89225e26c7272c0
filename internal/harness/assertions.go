package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/storefront/internal/ledger"
)

// evaluate checks assertions against the trace and the final store state
// and returns one message per failure.
func (h *Harness) evaluate(ctx context.Context, result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if msg := h.check(ctx, result, a); msg != "" {
			failures = append(failures, fmt.Sprintf("assertions[%d] %s: %s", i, a.Type, msg))
		}
	}
	return failures
}

func (h *Harness) check(ctx context.Context, result *Result, a Assertion) string {
	switch a.Type {
	case AssertEventCount:
		n := 0
		for _, e := range result.Events() {
			if e.Model == a.Model && e.Action == a.Action {
				n++
			}
		}
		if n != a.Count {
			return fmt.Sprintf("got %d %s.%s events, want %d", n, a.Model, a.Action, a.Count)
		}

	case AssertEventOrder:
		names := eventNames(result.Events())
		if !isSubsequence(a.Events, names) {
			return fmt.Sprintf("events %v do not appear in order in %v", a.Events, names)
		}

	case AssertCartLines:
		scope, _ := ledger.ParseScope(a.Scope)
		lines, err := h.carts.Lines(ctx, scope)
		if err != nil {
			return err.Error()
		}
		if len(lines) != a.Count {
			return fmt.Sprintf("%s has %d cart lines, want %d", a.Scope, len(lines), a.Count)
		}

	case AssertOrders:
		scope, _ := ledger.ParseScope(a.Scope)
		orders, err := h.orders.List(ctx, scope)
		if err != nil {
			return err.Error()
		}
		if len(orders) != a.Count {
			return fmt.Sprintf("%s has %d orders, want %d", a.Scope, len(orders), a.Count)
		}
	}
	return ""
}

func eventNames(events []TraceEntry) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Model + "." + e.Action
	}
	return out
}

// isSubsequence reports whether want appears in got in order, not
// necessarily contiguously.
func isSubsequence(want, got []string) bool {
	j := 0
	for _, g := range got {
		if j < len(want) && strings.EqualFold(g, want[j]) {
			j++
		}
	}
	return j == len(want)
}
