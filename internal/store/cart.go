package store

import (
	"context"
	"fmt"

	"github.com/roach88/storefront/internal/ledger"
)

const cartLineColumns = `scope_kind, scope_key, product_id, name, unit_price, category, condition, image_ref, quantity, added_at`

// CartLine returns the line for (scope, productID), or ErrNotFound.
func (t *Tx) CartLine(ctx context.Context, scope ledger.Scope, productID int64) (ledger.CartLine, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+cartLineColumns+`
		FROM cart_lines
		WHERE scope_kind = ? AND scope_key = ? AND product_id = ?
	`, scope.Kind, scope.Key, productID)

	line, err := scanCartLine(row)
	if err != nil {
		return ledger.CartLine{}, fmt.Errorf("read cart line: %w", notFound(err))
	}
	return line, nil
}

// InsertCartLine inserts a new line. A second line for the same
// (scope, product) violates the unique constraint and fails.
func (t *Tx) InsertCartLine(ctx context.Context, l ledger.CartLine) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO cart_lines (`+cartLineColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		l.Scope.Kind,
		l.Scope.Key,
		l.ProductID,
		l.Name,
		l.UnitPrice.String(),
		l.Category,
		l.Condition,
		l.ImageRef,
		l.Quantity,
		formatTime(l.AddedAt),
	)
	if err != nil {
		return fmt.Errorf("insert cart line: %w", err)
	}
	return nil
}

// MergeCartLine adds one to the line's quantity and refreshes the
// denormalized name and price. Returns the number of rows changed.
func (t *Tx) MergeCartLine(ctx context.Context, l ledger.CartLine) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE cart_lines
		SET quantity = quantity + 1, name = ?, unit_price = ?
		WHERE scope_kind = ? AND scope_key = ? AND product_id = ?
	`, l.Name, l.UnitPrice.String(), l.Scope.Kind, l.Scope.Key, l.ProductID)
	if err != nil {
		return 0, fmt.Errorf("merge cart line: %w", err)
	}
	return rowsAffected(res, "merge cart line")
}

// SetCartQuantity overwrites a line's quantity. Returns the number of rows changed.
func (t *Tx) SetCartQuantity(ctx context.Context, scope ledger.Scope, productID int64, quantity int) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE cart_lines SET quantity = ?
		WHERE scope_kind = ? AND scope_key = ? AND product_id = ?
	`, quantity, scope.Kind, scope.Key, productID)
	if err != nil {
		return 0, fmt.Errorf("set cart quantity: %w", err)
	}
	return rowsAffected(res, "set cart quantity")
}

// DeleteCartLine removes the line for (scope, productID) if present.
func (t *Tx) DeleteCartLine(ctx context.Context, scope ledger.Scope, productID int64) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		DELETE FROM cart_lines
		WHERE scope_kind = ? AND scope_key = ? AND product_id = ?
	`, scope.Kind, scope.Key, productID)
	if err != nil {
		return 0, fmt.Errorf("delete cart line: %w", err)
	}
	return rowsAffected(res, "delete cart line")
}

// ClearCart removes every line owned by scope.
func (t *Tx) ClearCart(ctx context.Context, scope ledger.Scope) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		DELETE FROM cart_lines WHERE scope_kind = ? AND scope_key = ?
	`, scope.Kind, scope.Key)
	if err != nil {
		return 0, fmt.Errorf("clear cart: %w", err)
	}
	return rowsAffected(res, "clear cart")
}

// CartLines returns every line owned by scope, oldest first.
// Returns an empty slice (not nil) for an empty cart.
func (t *Tx) CartLines(ctx context.Context, scope ledger.Scope) ([]ledger.CartLine, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+cartLineColumns+`
		FROM cart_lines
		WHERE scope_kind = ? AND scope_key = ?
		ORDER BY added_at ASC, product_id ASC
	`, scope.Kind, scope.Key)
	if err != nil {
		return nil, fmt.Errorf("query cart lines: %w", err)
	}
	defer rows.Close()

	lines := []ledger.CartLine{}
	for rows.Next() {
		line, err := scanCartLine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart lines: %w", err)
	}
	return lines, nil
}

func scanCartLine(row rowScanner) (ledger.CartLine, error) {
	var (
		l       ledger.CartLine
		kind    string
		price   string
		addedAt string
	)
	err := row.Scan(
		&kind,
		&l.Scope.Key,
		&l.ProductID,
		&l.Name,
		&price,
		&l.Category,
		&l.Condition,
		&l.ImageRef,
		&l.Quantity,
		&addedAt,
	)
	if err != nil {
		return ledger.CartLine{}, err
	}
	l.Scope.Kind = ledger.ScopeKind(kind)
	if l.UnitPrice, err = parseDecimal("unit_price", price); err != nil {
		return ledger.CartLine{}, err
	}
	if l.AddedAt, err = parseTime(addedAt); err != nil {
		return ledger.CartLine{}, err
	}
	return l, nil
}
