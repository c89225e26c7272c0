package store

import (
	"context"
	"fmt"

	"github.com/roach88/storefront/internal/ledger"
)

// Tables carrying an image_ref column.
const (
	TableCartLines = "cart_lines"
	TableOrders    = "orders"
)

// ImageRow is a stored image reference and the row that holds it.
type ImageRow struct {
	Table string
	ID    int64
	Ref   string
}

// ImageRefs returns every non-empty image reference in table, ordered by id.
func (t *Tx) ImageRefs(ctx context.Context, table string) ([]ImageRow, error) {
	if !isImageTable(table) {
		return nil, fmt.Errorf("query image refs: unknown table %q", table)
	}
	rows, err := t.tx.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, image_ref FROM %s WHERE image_ref != '' ORDER BY id ASC
	`, table))
	if err != nil {
		return nil, fmt.Errorf("query %s image refs: %w", table, err)
	}
	defer rows.Close()

	out := []ImageRow{}
	for rows.Next() {
		r := ImageRow{Table: table}
		if err := rows.Scan(&r.ID, &r.Ref); err != nil {
			return nil, fmt.Errorf("scan %s image ref: %w", table, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s image refs: %w", table, err)
	}
	return out, nil
}

// SetImageRef rewrites one row's image reference.
func (t *Tx) SetImageRef(ctx context.Context, table string, id int64, ref string) error {
	if !isImageTable(table) {
		return fmt.Errorf("set image ref: unknown table %q", table)
	}
	_, err := t.tx.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET image_ref = ? WHERE id = ?`, table), ref, id)
	if err != nil {
		return fmt.Errorf("set image ref: %w", err)
	}
	return nil
}

// CartLineByID returns the cart line stored under row id, whatever its
// scope, or ErrNotFound.
func (t *Tx) CartLineByID(ctx context.Context, id int64) (ledger.CartLine, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+cartLineColumns+`
		FROM cart_lines
		WHERE id = ?
	`, id)

	line, err := scanCartLine(row)
	if err != nil {
		return ledger.CartLine{}, fmt.Errorf("read cart line %d: %w", id, notFound(err))
	}
	return line, nil
}

// OrderByID returns the order with id, whatever its scope, or ErrNotFound.
func (t *Tx) OrderByID(ctx context.Context, id int64) (ledger.Order, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = ?
	`, id)

	o, err := scanOrder(row)
	if err != nil {
		return ledger.Order{}, fmt.Errorf("read order %d: %w", id, notFound(err))
	}
	return o, nil
}

func isImageTable(table string) bool {
	return table == TableCartLines || table == TableOrders
}
