// Package ledger holds the domain vocabulary shared by the cart and order
// ledgers: scopes, cart lines, orders, delivery statuses, change events and
// the error taxonomy every ledger operation reports through.
//
// # Scopes
//
// Every cart line and order is owned by exactly one Scope. A Scope is either
// an authenticated user or an anonymous session; the branching between the
// two lives here and in package identity, never in the ledgers.
//
// # Errors
//
// Ledger operations return either a result or a *Error carrying one Code:
//
//   - IDENTITY_UNAVAILABLE: the request could not be bound to a scope
//   - PRODUCT_UNAVAILABLE, INVALID_INPUT, INVALID_STATUS, NOT_FOUND: client errors
//   - RESOURCE_BUSY: write contention outlasted the retry budget; retryable
//   - STORAGE: any other storage failure
//
// Match with errors.Is against the sentinels (ErrNotFound, ...) or with
// CodeOf.
package ledger
