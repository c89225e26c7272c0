package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/storefront/internal/cart"
	"github.com/roach88/storefront/internal/ledger"
	"github.com/roach88/storefront/internal/order"
	"github.com/roach88/storefront/internal/store"
	"github.com/roach88/storefront/internal/testutil"
	"github.com/roach88/storefront/internal/txretry"
)

// Harness holds the ledgers and deterministic helpers for one scenario run.
type Harness struct {
	store  *store.Store
	carts  *cart.Ledger
	orders *order.Ledger
	events *testutil.EventRecorder
	seq    int64
}

// Run executes scenario against a fresh in-memory store.
//
// The returned error reports a harness failure (bad seed data, storage that
// will not open). Failed expectations and assertions are recorded in the
// Result instead.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(st, scenario)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := h.seed(ctx, scenario.Products); err != nil {
		return nil, fmt.Errorf("failed to seed products: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Flow {
		h.execute(ctx, i, step, result)
	}

	for _, msg := range h.evaluate(ctx, result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(st *store.Store, s *Scenario) (*Harness, error) {
	clock := testutil.NewStepClock(testutil.DefaultStart, time.Second)
	events := &testutil.EventRecorder{}

	runner := testutil.NewContendedRunner(st, s.Contention)
	// Waits are recorded, not slept, so contended scenarios run instantly.
	handler := txretry.New(runner, txretry.WithSleep((&testutil.SleepRecorder{}).Sleep))

	cartOpts := []cart.Option{cart.WithClock(clock.Now)}
	if s.TaxRate != "" {
		rate, err := decimal.NewFromString(s.TaxRate)
		if err != nil {
			return nil, fmt.Errorf("tax_rate: %w", err)
		}
		cartOpts = append(cartOpts, cart.WithTaxRate(rate))
	}

	tariff, err := order.ParseTariff(s.Delivery)
	if err != nil {
		return nil, err
	}

	return &Harness{
		store:  st,
		carts:  cart.New(handler, st, events, cartOpts...),
		orders: order.New(handler, events, order.WithClock(clock.Now), order.WithTariff(tariff)),
		events: events,
	}, nil
}

func (h *Harness) seed(ctx context.Context, products []ProductSeed) error {
	for _, p := range products {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return fmt.Errorf("product %d price: %w", p.ID, err)
		}
		err = h.store.PutProduct(ctx, store.Product{
			ID:        p.ID,
			Name:      p.Name,
			Price:     price,
			Available: p.IsAvailable(),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// execute runs one step, traces it and its events, and checks its expectation.
func (h *Harness) execute(ctx context.Context, index int, step Step, result *Result) {
	scope, _ := ledger.ParseScope(step.Scope) // validated on load

	res, err := ops[step.Op](ctx, h, scope, stepArgs(step.Args))
	outcome := OutcomeOK
	if err != nil {
		outcome = outcomeOf(err)
		res = nil
	}

	result.Trace = append(result.Trace, TraceEntry{
		Type:    TraceStep,
		Seq:     h.next(),
		Op:      step.Op,
		Scope:   step.Scope,
		Args:    step.Args,
		Outcome: outcome,
		Result:  res,
	})
	for _, ev := range h.events.Events() {
		result.Trace = append(result.Trace, TraceEntry{
			Type:   TraceEvent,
			Seq:    h.next(),
			Action: string(ev.Action),
			Model:  string(ev.Kind),
			Data:   ev.Payload,
		})
	}
	h.events.Reset()

	slog.Debug("scenario step", "index", index, "op", step.Op, "outcome", outcome)

	if step.Expect == nil {
		if err != nil {
			result.AddError(fmt.Sprintf("flow[%d] %s: unexpected error: %v", index, step.Op, err))
		}
		return
	}
	want := step.Expect.Error
	if want == "" {
		want = OutcomeOK
	}
	if outcome != want {
		result.AddError(fmt.Sprintf("flow[%d] %s: outcome %s, want %s", index, step.Op, outcome, want))
		return
	}
	for k, v := range step.Expect.Result {
		got, ok := res[k]
		if !ok {
			result.AddError(fmt.Sprintf("flow[%d] %s: result has no field %q", index, step.Op, k))
			continue
		}
		if !sameValue(got, v) {
			result.AddError(fmt.Sprintf("flow[%d] %s: result.%s = %v, want %v", index, step.Op, k, got, v))
		}
	}
}

func (h *Harness) next() int64 {
	h.seq++
	return h.seq
}

// outcomeOf maps an error to its ledger code; anything else is a harness bug
// and is reported verbatim.
func outcomeOf(err error) string {
	if code := ledger.CodeOf(err); code != "" {
		return string(code)
	}
	if errors.Is(err, errBadArgs) {
		return "BAD_ARGS"
	}
	return "ERROR"
}

// sameValue compares a result value with a YAML-decoded expectation.
func sameValue(got, want any) bool {
	return fmt.Sprint(got) == fmt.Sprint(want)
}

func stepArgs(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
