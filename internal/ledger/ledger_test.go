package ledger

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope_Valid(t *testing.T) {
	tests := []struct {
		name  string
		scope Scope
		want  bool
	}{
		{"user", UserScope("42"), true},
		{"session", SessionScope("abc"), true},
		{"zero", Scope{}, false},
		{"blank key", SessionScope("  "), false},
		{"unknown kind", Scope{Kind: "guest", Key: "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.scope.Valid())
		})
	}
}

func TestParseScope_RoundTrip(t *testing.T) {
	s, err := ParseScope(SessionScope("k:with:colons").String())
	require.NoError(t, err)
	assert.Equal(t, SessionScope("k:with:colons"), s)

	_, err = ParseScope("nokind")
	assert.Error(t, err)
	_, err = ParseScope("admin:1")
	assert.Error(t, err)
}

func TestParseDeliveryStatus(t *testing.T) {
	for _, s := range DeliveryStatuses {
		got, ok := ParseDeliveryStatus(string(s))
		assert.True(t, ok)
		assert.Equal(t, s, got)
	}
	_, ok := ParseDeliveryStatus("Shipped")
	assert.False(t, ok)
	_, ok = ParseDeliveryStatus("")
	assert.False(t, ok)
}

func TestCustomer_Complete(t *testing.T) {
	c := Customer{FirstName: "Tariro", LastName: "Moyo", Phone: "0771", Location: "Avondale"}
	assert.True(t, c.Complete())
	assert.Equal(t, "Tariro Moyo", c.Name())

	c.Phone = " "
	assert.False(t, c.Complete())
}

func TestSplitFullName(t *testing.T) {
	first, last := SplitFullName("  Rudo Chipo Dube ")
	assert.Equal(t, "Rudo", first)
	assert.Equal(t, "Chipo Dube", last)

	first, last = SplitFullName("Rudo")
	assert.Equal(t, "Rudo", first)
	assert.Equal(t, "", last)
}

func TestCartLine_LineTotal(t *testing.T) {
	l := CartLine{UnitPrice: decimal.RequireFromString("10.10"), Quantity: 3}
	assert.Equal(t, "30.30", l.LineTotal().StringFixed(2))
}

func TestOrder_ExpectedDeliveryDate(t *testing.T) {
	created := time.Date(2025, 8, 11, 16, 38, 0, 0, time.UTC)

	o := Order{CreatedAt: created, Customer: Customer{Notes: "Please deliver TOMORROW morning"}}
	assert.Equal(t, time.Date(2025, 8, 12, 0, 0, 0, 0, time.UTC), o.ExpectedDeliveryDate())

	o.Customer.Notes = "next week is fine"
	assert.Equal(t, time.Date(2025, 8, 18, 0, 0, 0, 0, time.UTC), o.ExpectedDeliveryDate())

	o.Customer.Notes = ""
	assert.Equal(t, time.Date(2025, 8, 18, 0, 0, 0, 0, time.UTC), o.ExpectedDeliveryDate())
}

func TestError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("handler: %w", E(CodeNotFound, "order.update_status", "order %d", 7))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrInvalidStatus))
	assert.Equal(t, CodeNotFound, CodeOf(err))
	assert.Equal(t, "order.update_status: NOT_FOUND: order 7", errors.Unwrap(err).Error())
}

func TestError_WrapKeepsCause(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := Wrap(CodeStorage, "cart.totals", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrStorage)
	assert.Equal(t, "cart.totals: STORAGE: disk I/O error", err.Error())
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(Wrap(CodeResourceBusy, "cart.upsert", errors.New("locked"))))
	assert.False(t, Retryable(ErrNotFound))
	assert.False(t, Retryable(errors.New("plain")))
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
}

func TestOrderEvent_Payload(t *testing.T) {
	o := Order{
		ID:          3,
		OrderNumber: "202-081-1116-1638-0001",
		ProductName: "Phone",
		Quantity:    2,
		LineTotal:   decimal.RequireFromString("20"),
		Status:      StatusShipped,
	}
	ev := OrderEvent(ActionUpdated, o)

	assert.Equal(t, ActionUpdated, ev.Action)
	assert.Equal(t, EntityOrder, ev.Kind)
	assert.Equal(t, "20.00", ev.Payload["total"])
	assert.Equal(t, "shipped", ev.Payload["delivery_status"])
	assert.Equal(t, int64(3), ev.Payload["order_id"])
}

func TestProductEvent_Payload(t *testing.T) {
	ev := ProductEvent(ActionCreated, 12, "Pixel 8", decimal.RequireFromString("499.9"), false)

	assert.Equal(t, EntityProduct, ev.Kind)
	assert.Equal(t, int64(12), ev.Payload["product_id"])
	assert.Equal(t, "499.90", ev.Payload["price"])
	assert.Equal(t, false, ev.Payload["available"])
}
