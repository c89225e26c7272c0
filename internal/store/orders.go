package store

import (
	"context"
	"fmt"

	"github.com/roach88/storefront/internal/ledger"
)

const orderColumns = `id, scope_kind, scope_key, first_name, last_name, phone, location, delivery_notes,
	product_name, quantity, unit_price, line_total, delivery_cost, grand_total,
	image_ref, order_number, created_at, delivery_status`

// InsertOrder writes an order snapshot and sets o.ID to the new row id.
func (t *Tx) InsertOrder(ctx context.Context, o *ledger.Order) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders
		(scope_kind, scope_key, first_name, last_name, phone, location, delivery_notes,
		 product_name, quantity, unit_price, line_total, delivery_cost, grand_total,
		 image_ref, order_number, created_at, delivery_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		o.Scope.Kind,
		o.Scope.Key,
		o.Customer.FirstName,
		o.Customer.LastName,
		o.Customer.Phone,
		o.Customer.Location,
		o.Customer.Notes,
		o.ProductName,
		o.Quantity,
		o.UnitPrice.String(),
		o.LineTotal.String(),
		o.DeliveryCost.String(),
		o.GrandTotal.String(),
		o.ImageRef,
		o.OrderNumber,
		formatTime(o.CreatedAt),
		string(o.Status),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert order: last insert id: %w", err)
	}
	o.ID = id
	return nil
}

// Order returns the order with id if scope owns it, or ErrNotFound.
func (t *Tx) Order(ctx context.Context, scope ledger.Scope, id int64) (ledger.Order, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = ? AND scope_kind = ? AND scope_key = ?
	`, id, scope.Kind, scope.Key)

	o, err := scanOrder(row)
	if err != nil {
		return ledger.Order{}, fmt.Errorf("read order %d: %w", id, notFound(err))
	}
	return o, nil
}

// SetOrderStatus overwrites delivery_status on an order owned by scope.
// Returns the number of rows changed.
func (t *Tx) SetOrderStatus(ctx context.Context, scope ledger.Scope, id int64, status ledger.DeliveryStatus) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE orders SET delivery_status = ?
		WHERE id = ? AND scope_kind = ? AND scope_key = ?
	`, string(status), id, scope.Kind, scope.Key)
	if err != nil {
		return 0, fmt.Errorf("set order status: %w", err)
	}
	return rowsAffected(res, "set order status")
}

// DeleteOrder removes an order owned by scope. Returns the number of rows removed.
func (t *Tx) DeleteOrder(ctx context.Context, scope ledger.Scope, id int64) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		DELETE FROM orders WHERE id = ? AND scope_kind = ? AND scope_key = ?
	`, id, scope.Kind, scope.Key)
	if err != nil {
		return 0, fmt.Errorf("delete order: %w", err)
	}
	return rowsAffected(res, "delete order")
}

// Orders returns every order owned by scope, newest first.
// Returns an empty slice (not nil) if there are none.
func (t *Tx) Orders(ctx context.Context, scope ledger.Scope) ([]ledger.Order, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE scope_kind = ? AND scope_key = ?
		ORDER BY created_at DESC, id DESC
	`, scope.Kind, scope.Key)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := []ledger.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

func scanOrder(row rowScanner) (ledger.Order, error) {
	var (
		o                                        ledger.Order
		kind, status, createdAt                  string
		unitPrice, lineTotal, delivery, grandTot string
	)
	err := row.Scan(
		&o.ID,
		&kind,
		&o.Scope.Key,
		&o.Customer.FirstName,
		&o.Customer.LastName,
		&o.Customer.Phone,
		&o.Customer.Location,
		&o.Customer.Notes,
		&o.ProductName,
		&o.Quantity,
		&unitPrice,
		&lineTotal,
		&delivery,
		&grandTot,
		&o.ImageRef,
		&o.OrderNumber,
		&createdAt,
		&status,
	)
	if err != nil {
		return ledger.Order{}, err
	}
	o.Scope.Kind = ledger.ScopeKind(kind)
	o.Status = ledger.DeliveryStatus(status)

	if o.UnitPrice, err = parseDecimal("unit_price", unitPrice); err != nil {
		return ledger.Order{}, err
	}
	if o.LineTotal, err = parseDecimal("line_total", lineTotal); err != nil {
		return ledger.Order{}, err
	}
	if o.DeliveryCost, err = parseDecimal("delivery_cost", delivery); err != nil {
		return ledger.Order{}, err
	}
	if o.GrandTotal, err = parseDecimal("grand_total", grandTot); err != nil {
		return ledger.Order{}, err
	}
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return ledger.Order{}, err
	}
	return o, nil
}

// LastOrderID returns the highest order id, or 0 if there are no orders.
// Used to continue order number suffixes across process restarts.
func (s *Store) LastOrderID(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM orders`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("last order id: %w", err)
	}
	return id, nil
}
