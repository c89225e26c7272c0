// Package store provides SQLite-backed durable storage for the storefront
// ledgers.
//
// Tables:
//   - sessions: anonymous visitor sessions
//   - products: the minimal catalog rows used for availability checks
//   - cart_lines: pending cart quantities, UNIQUE(scope_kind, scope_key, product_id)
//   - orders: immutable order snapshots; order_number is NOT unique
//
// # Transactions
//
// Every ledger mutation runs inside InTx, which hands the callback a *Tx and
// commits only if the callback returns nil. Tx methods never touch the
// database outside that transaction. Retrying on write-lock contention is
// the caller's job (see package txretry); IsContention tells the caller
// which failures are worth retrying.
//
// # Money and time
//
// Prices are stored as TEXT decimal strings so SQLite never coerces them to
// REAL. Timestamps are stored as fixed-width UTC TEXT so lexical order is
// chronological order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds before SQLITE_BUSY
//   - foreign_keys=ON: Enforce referential integrity
//   - BEGIN IMMEDIATE: writers take the write lock up front, so contention
//     surfaces at BEGIN instead of as a failed lock upgrade mid-transaction
package store
