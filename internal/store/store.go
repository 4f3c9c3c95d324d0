// Package store defines the persistence interface consumed by the
// aggregation engine. Implementations include PostgreSQL (source of truth),
// a Redis read-through wrapper for account lookups, and in-memory (for
// testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ledgerbench/ledger-bench/internal/model"
)

// ErrNotFound is returned by point lookups that match no record. Callers
// must not treat a missing account as a zero balance.
var ErrNotFound = errors.New("store: record not found")

// ErrNestedTx is returned when WithTx is called on a store that is already
// transaction-scoped.
var ErrNestedTx = errors.New("store: transaction already in progress")

// Store is the persistence interface. Every store-level failure propagates
// unchanged to the caller; the engine performs no retries.
type Store interface {
	// CreateAccount persists a new account with a zero running total.
	CreateAccount(ctx context.Context, account *model.Account) error

	// GetAccount retrieves an account by GUID, or ErrNotFound.
	GetAccount(ctx context.Context, guid string) (*model.Account, error)

	// AddAccountAmount adjusts the account's denormalized running total
	// by delta. Used only by the scalar strategy.
	AddAccountAmount(ctx context.Context, guid string, delta int64) error

	// InsertLedgerEntry appends an immutable entry. The store assigns
	// CreatedAt from its own clock and fills it in on the entry.
	InsertLedgerEntry(ctx context.Context, entry *model.LedgerEntry) error

	// SumLedgerAmounts sums entry amounts for an account. When after is
	// non-nil only entries with CreatedAt strictly greater than *after are
	// counted. No matching rows sums to zero.
	SumLedgerAmounts(ctx context.Context, accountGUID string, after *time.Time) (int64, error)

	// SumLedgerAmountsThrough sums entry amounts with CreatedAt <= asOf.
	SumLedgerAmountsThrough(ctx context.Context, accountGUID string, asOf time.Time) (int64, error)

	// GetAmountCache retrieves the cache record for an account, or
	// ErrNotFound when no refresh has happened yet.
	GetAmountCache(ctx context.Context, accountGUID string) (*model.AmountCache, error)

	// LockAmountCache takes an exclusive update-lock on the account's cache
	// row, held until the enclosing transaction ends. Locking an account
	// with no cache row yet is a no-op.
	LockAmountCache(ctx context.Context, accountGUID string) error

	// UpsertAmountCache creates or overwrites the cache record.
	UpsertAmountCache(ctx context.Context, cache *model.AmountCache) error

	// Now returns the store's current transaction timestamp.
	Now(ctx context.Context) (time.Time, error)

	// WithTx runs fn against a transaction-scoped store and commits iff fn
	// returns nil. All writes made through the scoped store are atomic.
	WithTx(ctx context.Context, fn func(Store) error) error
}
