package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/storefront/internal/ledger"
)

var (
	sessionA  = ledger.SessionScope("session-a")
	sessionB  = ledger.SessionScope("session-b")
	userA     = ledger.UserScope("42")
	fixedTime = time.Date(2025, 8, 11, 16, 38, 0, 0, time.UTC)
)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestCartLine creates a cart line with minimal required fields.
func createTestCartLine(scope ledger.Scope, productID int64, price string, qty int) ledger.CartLine {
	return ledger.CartLine{
		Scope:     scope,
		ProductID: productID,
		Name:      "Product",
		UnitPrice: decimal.RequireFromString(price),
		Category:  "Phones",
		Condition: "New",
		Quantity:  qty,
		AddedAt:   time.Date(2025, 8, 11, 16, 38, 0, int(productID), time.UTC),
	}
}

// createTestOrder creates an order snapshot with minimal required fields.
func createTestOrder(scope ledger.Scope, product string, created time.Time) ledger.Order {
	return ledger.Order{
		Scope:        scope,
		Customer:     ledger.Customer{FirstName: "Tariro", LastName: "Moyo", Phone: "0771", Location: "Avondale"},
		ProductName:  product,
		Quantity:     2,
		UnitPrice:    decimal.RequireFromString("10.00"),
		LineTotal:    decimal.RequireFromString("20.00"),
		DeliveryCost: decimal.NewFromInt(5),
		GrandTotal:   decimal.RequireFromString("25.00"),
		OrderNumber:  "202-081-1116-1638-0001",
		CreatedAt:    created,
		Status:       ledger.StatusPending,
	}
}

// inTx runs fn in a transaction and fails the test on error.
func inTx(t *testing.T, s *Store, fn func(*Tx) error) {
	t.Helper()
	if err := s.InTx(context.Background(), fn); err != nil {
		t.Fatalf("InTx() failed: %v", err)
	}
}
