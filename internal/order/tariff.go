package order

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// defaultCosts is the built-in delivery table, in whole currency units.
var defaultCosts = map[string]int64{
	"harare":           5,
	"harare suburbs":   7,
	"bulawayo":         6,
	"bulawayo suburbs": 8,
	"mutare":           7,
	"mutare suburbs":   9,
	"gweru":            6,
	"masvingo":         7,
	"masvingo town":    8,
	"kadoma":           6,
	"kwekwe":           6,
	"marondera":        5,
	"chegutu":          5,
	"bindura":          6,
	"chipinge":         7,
	"chinhoyi":         5,
	"mutoko":           6,
	"ruwa":             5,
	"checheche":        5,
	"shurugwi":         6,
	"redcliff":         5,
	"gokwe":            8,
	"beitbridge":       10,
	"chisumbanje":      9,
	"murewa":           6,
	"maramba":          7,
	"esigodini":        6,
	"zvishavane":       8,
}

// Tariff maps delivery locations to a flat delivery cost.
// Lookups ignore case and surrounding whitespace. Unknown locations cost zero.
type Tariff struct {
	costs map[string]decimal.Decimal
}

// NewTariff builds a tariff from location → cost.
func NewTariff(costs map[string]decimal.Decimal) *Tariff {
	t := &Tariff{costs: make(map[string]decimal.Decimal, len(costs))}
	for loc, cost := range costs {
		t.costs[locationKey(loc)] = cost
	}
	return t
}

// DefaultTariff returns the built-in delivery table.
func DefaultTariff() *Tariff {
	costs := make(map[string]decimal.Decimal, len(defaultCosts))
	for loc, c := range defaultCosts {
		costs[loc] = decimal.NewFromInt(c)
	}
	return NewTariff(costs)
}

// ParseTariff builds a tariff from decimal strings, as found in config files.
// An empty map yields the default table.
func ParseTariff(raw map[string]string) (*Tariff, error) {
	if len(raw) == 0 {
		return DefaultTariff(), nil
	}
	costs := make(map[string]decimal.Decimal, len(raw))
	for loc, v := range raw {
		if locationKey(loc) == "" {
			return nil, fmt.Errorf("delivery tariff: empty location name")
		}
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("delivery tariff: cost for %q: %w", loc, err)
		}
		if d.IsNegative() {
			return nil, fmt.Errorf("delivery tariff: negative cost for %q", loc)
		}
		costs[loc] = d
	}
	return NewTariff(costs), nil
}

// Cost returns the delivery cost for location, or zero if it is not listed.
func (t *Tariff) Cost(location string) decimal.Decimal {
	if c, ok := t.costs[locationKey(location)]; ok {
		return c
	}
	return decimal.Zero
}

// Known reports whether location is listed.
func (t *Tariff) Known(location string) bool {
	_, ok := t.costs[locationKey(location)]
	return ok
}

// Locations returns the listed locations in sorted order.
func (t *Tariff) Locations() []string {
	out := make([]string, 0, len(t.costs))
	for loc := range t.costs {
		out = append(out, loc)
	}
	sort.Strings(out)
	return out
}

func locationKey(loc string) string {
	return strings.ToLower(strings.TrimSpace(loc))
}
