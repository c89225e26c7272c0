package store

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Product is the slice of the catalog the ledgers depend on.
type Product struct {
	ID        int64
	Name      string
	Price     decimal.Decimal
	Available bool
}

// PutProduct inserts or replaces a catalog row outside any transaction.
// Used for seeding.
func (s *Store) PutProduct(ctx context.Context, p Product) error {
	return putProduct(ctx, s.db, p)
}

// PutProduct inserts or replaces a catalog row.
func (t *Tx) PutProduct(ctx context.Context, p Product) error {
	return putProduct(ctx, t.tx, p)
}

func putProduct(ctx context.Context, q queryer, p Product) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO products (id, name, price, available)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			price = excluded.price,
			available = excluded.available
	`, p.ID, p.Name, p.Price.String(), p.Available)
	if err != nil {
		return fmt.Errorf("put product: %w", err)
	}
	return nil
}

// Product returns the catalog row for id, or ErrNotFound.
func (t *Tx) Product(ctx context.Context, id int64) (Product, error) {
	return readProduct(ctx, t.tx, id)
}

// Product returns the catalog row for id outside any transaction.
func (s *Store) Product(ctx context.Context, id int64) (Product, error) {
	return readProduct(ctx, s.db, id)
}

func readProduct(ctx context.Context, q queryer, id int64) (Product, error) {
	var (
		p     Product
		price string
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, name, price, available FROM products WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &price, &p.Available)
	if err != nil {
		return Product{}, fmt.Errorf("read product %d: %w", id, notFound(err))
	}
	if p.Price, err = parseDecimal("price", price); err != nil {
		return Product{}, fmt.Errorf("read product %d: %w", id, err)
	}
	return p, nil
}
