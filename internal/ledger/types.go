package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CartLine is one product's pending quantity within a scope's cart.
// At most one line exists per (Scope, ProductID).
type CartLine struct {
	Scope     Scope           `json:"scope"`
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Category  string          `json:"category"`
	Condition string          `json:"condition"`
	ImageRef  string          `json:"image_ref"`
	Quantity  int             `json:"quantity"`
	AddedAt   time.Time       `json:"added_at"`
}

// LineTotal returns UnitPrice × Quantity.
func (l CartLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Totals summarises a scope's cart at the moment it was computed.
type Totals struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	Tax       decimal.Decimal `json:"tax"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
}

// DeliveryStatus is the only mutable field of an Order.
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusShipped   DeliveryStatus = "shipped"
	StatusDelivered DeliveryStatus = "delivered"
)

// DeliveryStatuses lists the legal statuses in their usual progression.
var DeliveryStatuses = []DeliveryStatus{StatusPending, StatusShipped, StatusDelivered}

// ParseDeliveryStatus returns the status named by v and whether it is legal.
// Matching is exact; "Shipped" is not a status.
func ParseDeliveryStatus(v string) (DeliveryStatus, bool) {
	for _, s := range DeliveryStatuses {
		if string(s) == v {
			return s, true
		}
	}
	return "", false
}

// Customer carries the contact fields copied onto every order.
type Customer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Location  string `json:"location"`
	Notes     string `json:"notes,omitempty"`
}

// Name returns the customer's display name.
func (c Customer) Name() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Complete reports whether every required contact field is non-blank.
// Notes are optional.
func (c Customer) Complete() bool {
	for _, f := range []string{c.FirstName, c.LastName, c.Phone, c.Location} {
		if strings.TrimSpace(f) == "" {
			return false
		}
	}
	return true
}

// SplitFullName splits "First Rest Of Name" the way checkout forms submit it.
func SplitFullName(full string) (first, last string) {
	first, last, _ = strings.Cut(strings.TrimSpace(full), " ")
	return first, strings.TrimSpace(last)
}

// Order is an immutable snapshot of a purchase intent.
// Only Status changes after creation.
type Order struct {
	ID           int64           `json:"id"`
	Scope        Scope           `json:"scope"`
	Customer     Customer        `json:"customer"`
	ProductName  string          `json:"product"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"price"`
	LineTotal    decimal.Decimal `json:"total"`
	DeliveryCost decimal.Decimal `json:"delivery_cost"`
	GrandTotal   decimal.Decimal `json:"grand_total"`
	ImageRef     string          `json:"image,omitempty"`
	OrderNumber  string          `json:"order_number"`
	CreatedAt    time.Time       `json:"created_at"`
	Status       DeliveryStatus  `json:"delivery_status"`
}

// ExpectedDeliveryDate estimates arrival from the order date and any hint in
// the delivery notes: "tomorrow" means one day, anything else a week.
func (o Order) ExpectedDeliveryDate() time.Time {
	days := 7
	if strings.Contains(strings.ToLower(o.Customer.Notes), "tomorrow") {
		days = 1
	}
	y, m, d := o.CreatedAt.AddDate(0, 0, days).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, o.CreatedAt.Location())
}

// ImageChange reports a stored image reference whose normalized form
// differs from what is stored.
type ImageChange struct {
	Kind EntityKind `json:"model"`
	ID   int64      `json:"id"`
	Old  string     `json:"old"`
	New  string     `json:"new"`
}
