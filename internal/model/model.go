// Package model defines the core domain types shared across the benchmark.
// All amounts are signed int64 — positive entries increase the balance,
// negative entries decrease it; the sign is decided by the caller.
package model

import (
	"time"
)

// Account is the aggregate root. Amount is the denormalized running total
// maintained only by the scalar strategy; the other strategies leave it at
// zero and derive the balance from the ledger.
type Account struct {
	GUID   string `json:"guid" db:"guid"`
	Amount int64  `json:"amount" db:"amount"`
}

// LedgerEntry is an immutable record of one signed movement against an
// account. Once created, entries are never modified or deleted. CreatedAt is
// assigned by the store's clock at insert time; it is not monotonic across
// processes.
type LedgerEntry struct {
	GUID        string    `json:"guid" db:"guid"`
	AccountGUID string    `json:"account_guid" db:"account_guid"`
	Amount      int64     `json:"amount" db:"amount"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// AmountCache is the persisted partial aggregate for one account. UpdatedAt
// is the exclusive upper bound (by CreatedAt) of entries already folded into
// Amount: the true balance is always Amount plus the sum of entries with
// CreatedAt > UpdatedAt.
type AmountCache struct {
	AccountGUID string    `json:"account_guid" db:"account_guid"`
	Amount      int64     `json:"amount" db:"amount"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
