// Package order is the order ledger: direct orders, cart checkout, delivery
// status and order history.
//
// Orders are immutable snapshots; only the delivery status changes after
// creation, apart from the image maintenance in RenormalizeImages. Checkout writes every snapshot and clears the cart in one
// transaction, so the cart is empty exactly when all snapshots exist.
package order

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

// Committer runs fn as one retried transaction. *txretry.Handler implements it.
type Committer interface {
	Commit(ctx context.Context, fn func(*store.Tx) error) error
}

// Publisher receives committed change events. *notify.Notifier implements it.
type Publisher interface {
	Publish(ev ledger.ChangeEvent)
}

// DirectLine is one explicitly priced line of a direct order.
type DirectLine struct {
	Name     string
	Quantity int
	Price    decimal.Decimal
	ImageRef string
}

// Ledger implements the order operations. Safe for concurrent use.
type Ledger struct {
	tx      Committer
	events  Publisher
	images  *media.Normalizer
	tariff  *Tariff
	numbers *Numberer
	now     func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithTariff sets the delivery cost table.
func WithTariff(t *Tariff) Option {
	return func(l *Ledger) {
		l.tariff = t
	}
}

// WithNormalizer sets the image reference normalizer.
func WithNormalizer(n *media.Normalizer) Option {
	return func(l *Ledger) {
		l.images = n
	}
}

// WithClock replaces time.Now for order timestamps and, unless
// WithNumberer is also given, for order numbers.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithNumberer sets the order number source.
func WithNumberer(n *Numberer) Option {
	return func(l *Ledger) {
		l.numbers = n
	}
}

// New creates an order Ledger. events may be nil to disable notifications.
func New(tx Committer, events Publisher, opts ...Option) *Ledger {
	l := &Ledger{
		tx:     tx,
		events: events,
		images: media.New(media.DefaultMediaPrefix, nil),
		tariff: DefaultTariff(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.numbers == nil {
		l.numbers = NewNumberer(l.now)
	}
	return l
}

// Tariff returns the delivery cost table in use.
func (l *Ledger) Tariff() *Tariff {
	return l.tariff
}

// PlaceDirect creates one order per line with no delivery cost.
// Every required customer field must be present and there must be at least
// one line, each with a name, a positive quantity and a non-negative price.
func (l *Ledger) PlaceDirect(ctx context.Context, scope ledger.Scope, c ledger.Customer, lines []DirectLine) ([]ledger.Order, error) {
	const op = "order.place_direct"

	if err := checkScope(op, scope); err != nil {
		return nil, err
	}
	if !c.Complete() {
		return nil, ledger.E(ledger.CodeInvalidInput, op, "missing customer details")
	}
	if len(lines) == 0 {
		return nil, ledger.E(ledger.CodeInvalidInput, op, "no order lines")
	}
	for i, dl := range lines {
		switch {
		case strings.TrimSpace(dl.Name) == "":
			return nil, ledger.E(ledger.CodeInvalidInput, op, "line %d: product name is required", i)
		case dl.Quantity < 1:
			return nil, ledger.E(ledger.CodeInvalidInput, op, "line %d: quantity must be positive, got %d", i, dl.Quantity)
		case dl.Price.IsNegative():
			return nil, ledger.E(ledger.CodeInvalidInput, op, "line %d: negative price %s", i, dl.Price)
		}
	}

	created := l.now().UTC()
	numbers := l.numberSource()
	drafts := make([]ledger.Order, len(lines))
	for i, dl := range lines {
		total := dl.Price.Mul(decimal.NewFromInt(int64(dl.Quantity)))
		drafts[i] = ledger.Order{
			Scope:        scope,
			Customer:     trimCustomer(c),
			ProductName:  strings.TrimSpace(dl.Name),
			Quantity:     dl.Quantity,
			UnitPrice:    dl.Price,
			LineTotal:    total,
			DeliveryCost: decimal.Zero,
			GrandTotal:   total,
			ImageRef:     l.images.Normalize(dl.ImageRef),
			OrderNumber:  numbers(i),
			CreatedAt:    created,
			Status:       ledger.StatusPending,
		}
	}

	var orders []ledger.Order
	err := l.tx.Commit(ctx, func(tx *store.Tx) error {
		orders = orders[:0]
		for _, d := range drafts {
			o := d
			if err := tx.InsertOrder(ctx, &o); err != nil {
				return err
			}
			orders = append(orders, o)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.publishOrders(ledger.ActionCreated, orders)
	return orders, nil
}

// Checkout converts every line of scope's cart into an order carrying the
// delivery cost for deliveryLocation, then empties the cart. Both happen in
// one transaction. An empty cart is rejected.
func (l *Ledger) Checkout(ctx context.Context, scope ledger.Scope, c ledger.Customer, deliveryLocation string) ([]ledger.Order, error) {
	const op = "order.checkout"

	if err := checkScope(op, scope); err != nil {
		return nil, err
	}

	cost := l.tariff.Cost(deliveryLocation)
	created := l.now().UTC()
	numbers := l.numberSource()
	customer := trimCustomer(c)

	var (
		orders  []ledger.Order
		cleared []ledger.CartLine
	)
	err := l.tx.Commit(ctx, func(tx *store.Tx) error {
		orders = orders[:0]

		lines, err := tx.CartLines(ctx, scope)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return ledger.E(ledger.CodeInvalidInput, op, "cart is empty")
		}

		for i, line := range lines {
			total := line.LineTotal()
			o := ledger.Order{
				Scope:        scope,
				Customer:     customer,
				ProductName:  line.Name,
				Quantity:     line.Quantity,
				UnitPrice:    line.UnitPrice,
				LineTotal:    total,
				DeliveryCost: cost,
				GrandTotal:   total.Add(cost),
				ImageRef:     l.images.Normalize(line.ImageRef),
				OrderNumber:  numbers(i),
				CreatedAt:    created,
				Status:       ledger.StatusPending,
			}
			if err := tx.InsertOrder(ctx, &o); err != nil {
				return err
			}
			orders = append(orders, o)
		}

		if _, err := tx.ClearCart(ctx, scope); err != nil {
			return err
		}
		cleared = lines
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.publishOrders(ledger.ActionCreated, orders)
	if l.events != nil {
		for _, line := range cleared {
			l.events.Publish(ledger.CartLineEvent(ledger.ActionDeleted, line))
		}
	}
	return orders, nil
}

// UpdateStatus sets the delivery status of an order scope owns.
// The status is validated before anything is read.
func (l *Ledger) UpdateStatus(ctx context.Context, scope ledger.Scope, orderID int64, status string) (ledger.Order, error) {
	const op = "order.update_status"

	st, ok := ledger.ParseDeliveryStatus(status)
	if !ok {
		return ledger.Order{}, ledger.E(ledger.CodeInvalidStatus, op, "unknown delivery status %q", status)
	}
	if err := checkScope(op, scope); err != nil {
		return ledger.Order{}, err
	}

	var o ledger.Order
	err := l.tx.Commit(ctx, func(tx *store.Tx) error {
		n, err := tx.SetOrderStatus(ctx, scope, orderID, st)
		if err != nil {
			return err
		}
		if n == 0 {
			return notFound(op, orderID)
		}
		o, err = tx.Order(ctx, scope, orderID)
		return err
	})
	if err != nil {
		return ledger.Order{}, err
	}

	l.publishOrders(ledger.ActionUpdated, []ledger.Order{o})
	return o, nil
}

// Remove deletes an order scope owns.
func (l *Ledger) Remove(ctx context.Context, scope ledger.Scope, orderID int64) error {
	const op = "order.remove"

	if err := checkScope(op, scope); err != nil {
		return err
	}

	var o ledger.Order
	err := l.tx.Commit(ctx, func(tx *store.Tx) error {
		var err error
		o, err = tx.Order(ctx, scope, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return notFound(op, orderID)
		}
		if err != nil {
			return err
		}
		_, err = tx.DeleteOrder(ctx, scope, orderID)
		return err
	})
	if err != nil {
		return err
	}

	l.publishOrders(ledger.ActionDeleted, []ledger.Order{o})
	return nil
}

// List returns scope's orders, newest first.
func (l *Ledger) List(ctx context.Context, scope ledger.Scope) ([]ledger.Order, error) {
	if err := checkScope("order.list", scope); err != nil {
		return nil, err
	}
	var orders []ledger.Order
	err := l.tx.Commit(ctx, func(tx *store.Tx) error {
		var err error
		orders, err = tx.Orders(ctx, scope)
		return err
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// RenormalizeImages re-applies the normalizer to every stored order image
// reference, across all scopes, and reports the orders whose reference would
// change. With apply the references are rewritten in one transaction and an
// updated event is published per rewritten order. This is the only write to
// an order besides its delivery status.
func (l *Ledger) RenormalizeImages(ctx context.Context, apply bool) ([]ledger.ImageChange, error) {
	var (
		changes   []ledger.ImageChange
		rewritten []ledger.Order
	)
	err := l.tx.Commit(ctx, func(tx *store.Tx) error {
		changes = []ledger.ImageChange{}
		rewritten = rewritten[:0]

		rows, err := tx.ImageRefs(ctx, store.TableOrders)
		if err != nil {
			return err
		}
		for _, r := range rows {
			ref := l.images.Normalize(r.Ref)
			if ref == r.Ref {
				continue
			}
			changes = append(changes, ledger.ImageChange{Kind: ledger.EntityOrder, ID: r.ID, Old: r.Ref, New: ref})
			if !apply {
				continue
			}
			if err := tx.SetImageRef(ctx, r.Table, r.ID, ref); err != nil {
				return err
			}
			o, err := tx.OrderByID(ctx, r.ID)
			if err != nil {
				return err
			}
			rewritten = append(rewritten, o)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.publishOrders(ledger.ActionUpdated, rewritten)
	return changes, nil
}

// numberSource hands out order numbers by line index, drawing each from the
// Numberer at most once so a retried transaction reuses the same numbers.
func (l *Ledger) numberSource() func(i int) string {
	var issued []string
	return func(i int) string {
		for len(issued) <= i {
			issued = append(issued, l.numbers.Next())
		}
		return issued[i]
	}
}

func (l *Ledger) publishOrders(action ledger.Action, orders []ledger.Order) {
	if l.events == nil {
		return
	}
	for _, o := range orders {
		l.events.Publish(ledger.OrderEvent(action, o))
	}
}

func checkScope(op string, scope ledger.Scope) error {
	if !scope.Valid() {
		return ledger.E(ledger.CodeInvalidInput, op, "invalid scope %q", scope.String())
	}
	return nil
}

func notFound(op string, id int64) error {
	return ledger.E(ledger.CodeNotFound, op, "order %d not found", id)
}

func trimCustomer(c ledger.Customer) ledger.Customer {
	return ledger.Customer{
		FirstName: strings.TrimSpace(c.FirstName),
		LastName:  strings.TrimSpace(c.LastName),
		Phone:     strings.TrimSpace(c.Phone),
		Location:  strings.TrimSpace(c.Location),
		Notes:     strings.TrimSpace(c.Notes),
	}
}
