package harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/roach88/storefront/internal/cart"
	"github.com/roach88/storefront/internal/ledger"
	"github.com/roach88/storefront/internal/order"
)

// errBadArgs marks a malformed step argument.
var errBadArgs = errors.New("bad step arguments")

type opFunc func(ctx context.Context, h *Harness, scope ledger.Scope, args map[string]any) (map[string]any, error)

// ops lists the operations a scenario step may invoke.
var ops = map[string]opFunc{
	"cart.upsert":         opCartUpsert,
	"cart.set_quantity":   opCartSetQuantity,
	"cart.remove":         opCartRemove,
	"cart.totals":         opCartTotals,
	"cart.lines":          opCartLines,
	"order.place_direct":  opOrderPlaceDirect,
	"order.checkout":      opOrderCheckout,
	"order.update_status": opOrderUpdateStatus,
	"order.remove":        opOrderRemove,
	"order.list":          opOrderList,
}

// Ops returns the supported operation names.
func Ops() []string {
	out := make([]string, 0, len(ops))
	for name := range ops {
		out = append(out, name)
	}
	return out
}

func opCartUpsert(ctx context.Context, h *Harness, scope ledger.Scope, args map[string]any) (map[string]any, error) {
	price, err := argDecimal(args, "price")
	if err != nil {
		return nil, err
	}
	res, err := h.carts.Upsert(ctx, scope, cart.Item{
		ProductID: argInt(args, "product_id"),
		Name:      argString(args, "name"),
		Price:     price,
		Category:  argString(args, "category"),
		Condition: argString(args, "condition"),
		ImageRef:  argString(args, "image"),
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"quantity":   res.Quantity,
		"item_count": res.ItemCount,
		"created":    res.Created,
	}, nil
}

func opCartSetQuantity(ctx context.Context, h *Harness, scope ledger.Scope, args map[string]any) (map[string]any, error) {
	line, err := h.carts.SetQuantity(ctx, scope, argInt(args, "product_id"), int(argInt(args, "quantity")))
	if err != nil {
		return nil, err
	}
	return map[string]any{"quantity": line.Quantity}, nil
}

func opCartRemove(ctx context.Context, h *Harness, scope ledger.Scope, args map[string]any) (map[string]any, error) {
	n, err := h.carts.Remove(ctx, scope, argInt(args, "product_id"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"deleted": n}, nil
}

func opCartTotals(ctx context.Context, h *Harness, scope ledger.Scope, _ map[string]any) (map[string]any, error) {
	t, err := h.carts.Totals(ctx, scope)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"subtotal":   t.Subtotal.StringFixed(2),
		"tax":        t.Tax.StringFixed(2),
		"total":      t.Total.StringFixed(2),
		"item_count": t.ItemCount,
	}, nil
}

func opCartLines(ctx context.Context, h *Harness, scope ledger.Scope, _ map[string]any) (map[string]any, error) {
	lines, err := h.carts.Lines(ctx, scope)
	if err != nil {
		return nil, err
	}
	items := make([]any, len(lines))
	for i, l := range lines {
		items[i] = map[string]any{
			"product_id": l.ProductID,
			"name":       l.Name,
			"quantity":   l.Quantity,
			"price":      l.UnitPrice.StringFixed(2),
		}
	}
	return map[string]any{"count": len(lines), "lines": items}, nil
}

func opOrderPlaceDirect(ctx context.Context, h *Harness, scope ledger.Scope, args map[string]any) (map[string]any, error) {
	raw, _ := args["lines"].([]any)
	lines := make([]order.DirectLine, 0, len(raw))
	for i, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("lines[%d]: %w", i, errBadArgs)
		}
		price, err := argDecimal(m, "price")
		if err != nil {
			return nil, err
		}
		lines = append(lines, order.DirectLine{
			Name:     argString(m, "name"),
			Quantity: int(argInt(m, "quantity")),
			Price:    price,
			ImageRef: argString(m, "image"),
		})
	}
	orders, err := h.orders.PlaceDirect(ctx, scope, argCustomer(args), lines)
	if err != nil {
		return nil, err
	}
	return ordersResult(orders), nil
}

func opOrderCheckout(ctx context.Context, h *Harness, scope ledger.Scope, args map[string]any) (map[string]any, error) {
	orders, err := h.orders.Checkout(ctx, scope, argCustomer(args), argString(args, "delivery_location"))
	if err != nil {
		return nil, err
	}
	return ordersResult(orders), nil
}

func opOrderUpdateStatus(ctx context.Context, h *Harness, scope ledger.Scope, args map[string]any) (map[string]any, error) {
	o, err := h.orders.UpdateStatus(ctx, scope, argInt(args, "order_id"), argString(args, "status"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"delivery_status": string(o.Status)}, nil
}

func opOrderRemove(ctx context.Context, h *Harness, scope ledger.Scope, args map[string]any) (map[string]any, error) {
	if err := h.orders.Remove(ctx, scope, argInt(args, "order_id")); err != nil {
		return nil, err
	}
	return map[string]any{}, nil
}

func opOrderList(ctx context.Context, h *Harness, scope ledger.Scope, _ map[string]any) (map[string]any, error) {
	orders, err := h.orders.List(ctx, scope)
	if err != nil {
		return nil, err
	}
	return ordersResult(orders), nil
}

func ordersResult(orders []ledger.Order) map[string]any {
	items := make([]any, len(orders))
	for i, o := range orders {
		items[i] = map[string]any{
			"id":              o.ID,
			"order_number":    o.OrderNumber,
			"product":         o.ProductName,
			"quantity":        o.Quantity,
			"line_total":      o.LineTotal.StringFixed(2),
			"delivery_cost":   o.DeliveryCost.StringFixed(2),
			"grand_total":     o.GrandTotal.StringFixed(2),
			"delivery_status": string(o.Status),
		}
	}
	return map[string]any{"count": len(orders), "orders": items}
}

func argCustomer(args map[string]any) ledger.Customer {
	c := ledger.Customer{
		FirstName: argString(args, "first_name"),
		LastName:  argString(args, "last_name"),
		Phone:     argString(args, "phone"),
		Location:  argString(args, "location"),
		Notes:     argString(args, "notes"),
	}
	if full := argString(args, "full_name"); full != "" && c.FirstName == "" {
		c.FirstName, c.LastName = ledger.SplitFullName(full)
	}
	return c
}

func argString(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// argInt returns 0 for a missing or non-integer value; the ledgers reject it.
func argInt(args map[string]any, key string) int64 {
	switch v := args[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	default:
		return 0
	}
}

func argDecimal(args map[string]any, key string) (decimal.Decimal, error) {
	switch v := args[key].(type) {
	case nil:
		return decimal.Zero, nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("%s %q: %w", key, v, errBadArgs)
		}
		return d, nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("%s must be a decimal string, got %T: %w", key, v, errBadArgs)
	}
}
