// Package cart is the per-scope shopping cart ledger.
//
// Every mutation runs as one transaction through a Committer, which absorbs
// write contention. Change events are collected while the transaction runs
// and published only once it has committed; a retried attempt starts with
// an empty event list.
package cart

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/storefront/internal/ledger"
	"github.com/roach88/storefront/internal/media"
	"github.com/roach88/storefront/internal/store"
)

// DefaultTaxRate is applied to the subtotal when none is configured.
var DefaultTaxRate = decimal.RequireFromString("0.15")

// Defaults for descriptive fields the caller leaves blank.
const (
	DefaultCategory  = "Uncategorized"
	DefaultCondition = "N/A"
)

// Committer runs fn as one retried transaction. *txretry.Handler implements it.
type Committer interface {
	Commit(ctx context.Context, fn func(*store.Tx) error) error
}

// Catalog reports whether products exist and are purchasable. *store.Store implements it.
type Catalog interface {
	Product(ctx context.Context, id int64) (store.Product, error)
}

// Publisher receives committed change events. *notify.Notifier implements it.
type Publisher interface {
	Publish(ev ledger.ChangeEvent)
}

// Item is the product snapshot added to a cart.
type Item struct {
	ProductID int64
	Name      string
	Price     decimal.Decimal
	Category  string
	Condition string
	ImageRef  string
}

// UpsertResult reports the line's state after an upsert.
type UpsertResult struct {
	Line      ledger.CartLine
	Quantity  int
	ItemCount int
	// Created is true when the product was not in the cart before.
	Created bool
}

// Ledger implements the cart operations. Safe for concurrent use.
type Ledger struct {
	tx      Committer
	catalog Catalog
	events  Publisher
	images  *media.Normalizer
	taxRate decimal.Decimal
	now     func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithTaxRate sets the tax rate applied by Totals.
func WithTaxRate(rate decimal.Decimal) Option {
	return func(l *Ledger) {
		l.taxRate = rate
	}
}

// WithNormalizer sets the image reference normalizer.
func WithNormalizer(n *media.Normalizer) Option {
	return func(l *Ledger) {
		l.images = n
	}
}

// WithClock replaces time.Now for line timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// New creates a cart Ledger. events may be nil to disable notifications.
func New(tx Committer, catalog Catalog, events Publisher, opts ...Option) *Ledger {
	l := &Ledger{
		tx:      tx,
		catalog: catalog,
		events:  events,
		images:  media.New(media.DefaultMediaPrefix, nil),
		taxRate: DefaultTaxRate,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TaxRate returns the configured tax rate.
func (l *Ledger) TaxRate() decimal.Decimal {
	return l.taxRate
}

// Upsert adds one unit of item to scope's cart. An existing line is
// incremented and takes the supplied name and price; otherwise a new line
// with quantity 1 is inserted.
//
// The product must be purchasable; that is checked before any write.
func (l *Ledger) Upsert(ctx context.Context, scope ledger.Scope, item Item) (UpsertResult, error) {
	const op = "cart.upsert"

	if err := checkScope(op, scope); err != nil {
		return UpsertResult{}, err
	}
	if item.ProductID <= 0 {
		return UpsertResult{}, ledger.E(ledger.CodeInvalidInput, op, "invalid product id %d", item.ProductID)
	}
	if strings.TrimSpace(item.Name) == "" {
		return UpsertResult{}, ledger.E(ledger.CodeInvalidInput, op, "product name is required")
	}
	if item.Price.IsNegative() {
		return UpsertResult{}, ledger.E(ledger.CodeInvalidInput, op, "negative price %s", item.Price)
	}
	if err := l.checkAvailable(ctx, op, item.ProductID); err != nil {
		return UpsertResult{}, err
	}

	line := ledger.CartLine{
		Scope:     scope,
		ProductID: item.ProductID,
		Name:      strings.TrimSpace(item.Name),
		UnitPrice: item.Price,
		Category:  orDefault(item.Category, DefaultCategory),
		Condition: orDefault(item.Condition, DefaultCondition),
		ImageRef:  l.images.Normalize(item.ImageRef),
		Quantity:  1,
		AddedAt:   l.now().UTC(),
	}

	var (
		res    UpsertResult
		events []ledger.ChangeEvent
	)
	err := l.tx.Commit(ctx, func(tx *store.Tx) error {
		res = UpsertResult{}
		events = events[:0]

		n, err := tx.MergeCartLine(ctx, line)
		if err != nil {
			return err
		}
		if n == 0 {
			if err := tx.InsertCartLine(ctx, line); err != nil {
				return err
			}
			res.Created = true
		}

		lines, err := tx.CartLines(ctx, scope)
		if err != nil {
			return err
		}
		for _, cl := range lines {
			res.ItemCount += cl.Quantity
			if cl.ProductID == line.ProductID {
				res.Line = cl
				res.Quantity = cl.Quantity
			}
		}

		action := ledger.ActionUpdated
		if res.Created {
			action = ledger.ActionCreated
		}
		events = append(events, ledger.CartLineEvent(action, res.Line))
		return nil
	})
	if err != nil {
		return UpsertResult{}, err
	}

	l.publish(events)
	return res, nil
}

// SetQuantity overwrites the quantity of an existing line.
func (l *Ledger) SetQuantity(ctx context.Context, scope ledger.Scope, productID int64, quantity int) (ledger.CartLine, error) {
	const op = "cart.set_quantity"

	if err := checkScope(op, scope); err != nil {
		return ledger.CartLine{}, err
	}
	if quantity < 1 {
		return ledger.CartLine{}, ledger.E(ledger.CodeInvalidInput, op, "quantity must be positive, got %d", quantity)
	}

	var (
		line   ledger.CartLine
		events []ledger.ChangeEvent
	)
	err := l.tx.Commit(ctx, func(tx *store.Tx) error {
		events = events[:0]

		n, err := tx.SetCartQuantity(ctx, scope, productID, quantity)
		if err != nil {
			return err
		}
		if n == 0 {
			return ledger.E(ledger.CodeNotFound, op, "product %d is not in the cart", productID)
		}
		if line, err = tx.CartLine(ctx, scope, productID); err != nil {
			return err
		}
		events = append(events, ledger.CartLineEvent(ledger.ActionUpdated, line))
		return nil
	})
	if err != nil {
		return ledger.CartLine{}, err
	}

	l.publish(events)
	return line, nil
}

// Remove deletes the line for productID. Removing an absent line is not an
// error; the returned count is then zero.
func (l *Ledger) Remove(ctx context.Context, scope ledger.Scope, productID int64) (int64, error) {
	const op = "cart.remove"

	if err := checkScope(op, scope); err != nil {
		return 0, err
	}

	var (
		deleted int64
		events  []ledger.ChangeEvent
	)
	err := l.tx.Commit(ctx, func(tx *store.Tx) error {
		deleted = 0
		events = events[:0]

		line, err := tx.CartLine(ctx, scope, productID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if deleted, err = tx.DeleteCartLine(ctx, scope, productID); err != nil {
			return err
		}
		events = append(events, ledger.CartLineEvent(ledger.ActionDeleted, line))
		return nil
	})
	if err != nil {
		return 0, err
	}

	l.publish(events)
	return deleted, nil
}

// Totals computes the scope's cart totals from the current lines.
// Nothing is cached; every call reads the lines afresh.
func (l *Ledger) Totals(ctx context.Context, scope ledger.Scope) (ledger.Totals, error) {
	lines, err := l.read(ctx, "cart.totals", scope)
	if err != nil {
		return ledger.Totals{}, err
	}
	return ComputeTotals(lines, l.taxRate), nil
}

// Lines returns the scope's cart lines, oldest first.
func (l *Ledger) Lines(ctx context.Context, scope ledger.Scope) ([]ledger.CartLine, error) {
	return l.read(ctx, "cart.lines", scope)
}

// RenormalizeImages re-applies the normalizer to every stored cart line
// image reference, across all scopes, and reports the lines whose reference
// would change. With apply the references are rewritten in one transaction
// and an updated event is published per rewritten line.
func (l *Ledger) RenormalizeImages(ctx context.Context, apply bool) ([]ledger.ImageChange, error) {
	var (
		changes []ledger.ImageChange
		events  []ledger.ChangeEvent
	)
	err := l.tx.Commit(ctx, func(tx *store.Tx) error {
		changes = []ledger.ImageChange{}
		events = events[:0]

		rows, err := tx.ImageRefs(ctx, store.TableCartLines)
		if err != nil {
			return err
		}
		for _, r := range rows {
			ref := l.images.Normalize(r.Ref)
			if ref == r.Ref {
				continue
			}
			changes = append(changes, ledger.ImageChange{Kind: ledger.EntityCartLine, ID: r.ID, Old: r.Ref, New: ref})
			if !apply {
				continue
			}
			if err := tx.SetImageRef(ctx, r.Table, r.ID, ref); err != nil {
				return err
			}
			line, err := tx.CartLineByID(ctx, r.ID)
			if err != nil {
				return err
			}
			events = append(events, ledger.CartLineEvent(ledger.ActionUpdated, line))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.publish(events)
	return changes, nil
}

// ComputeTotals sums lines with fixed-point arithmetic. Tax is rounded
// half-to-even to cents; Total is exactly Subtotal + Tax.
func ComputeTotals(lines []ledger.CartLine, rate decimal.Decimal) ledger.Totals {
	subtotal := decimal.Zero
	count := 0
	for _, line := range lines {
		subtotal = subtotal.Add(line.LineTotal())
		count += line.Quantity
	}
	tax := subtotal.Mul(rate).RoundBank(2)
	return ledger.Totals{
		Subtotal:  subtotal,
		Tax:       tax,
		Total:     subtotal.Add(tax),
		ItemCount: count,
	}
}

func (l *Ledger) read(ctx context.Context, op string, scope ledger.Scope) ([]ledger.CartLine, error) {
	if err := checkScope(op, scope); err != nil {
		return nil, err
	}
	var lines []ledger.CartLine
	err := l.tx.Commit(ctx, func(tx *store.Tx) error {
		var err error
		lines, err = tx.CartLines(ctx, scope)
		return err
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (l *Ledger) checkAvailable(ctx context.Context, op string, productID int64) error {
	if l.catalog == nil {
		return nil
	}
	p, err := l.catalog.Product(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return ledger.E(ledger.CodeProductUnavailable, op, "product %d does not exist", productID)
	}
	if err != nil {
		return ledger.Wrap(ledger.CodeStorage, op, err)
	}
	if !p.Available {
		return ledger.E(ledger.CodeProductUnavailable, op, "product %d is not available", productID)
	}
	return nil
}

func (l *Ledger) publish(events []ledger.ChangeEvent) {
	if l.events == nil {
		return
	}
	for _, ev := range events {
		l.events.Publish(ev)
	}
}

func checkScope(op string, scope ledger.Scope) error {
	if !scope.Valid() {
		return ledger.E(ledger.CodeInvalidInput, op, "invalid scope %q", scope.String())
	}
	return nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
