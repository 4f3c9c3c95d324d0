// Package account implements the running-balance aggregation engine: three
// interchangeable strategies for answering "what is this account's balance"
// while ledger entries are concurrently appended.
//
// All three strategies share one contract. Debit and Credit append the
// literal signed amount they are given — the caller decides the sign and
// passes a negative amount to reduce the balance. The strategies differ only
// in how Amount is computed and what bookkeeping the writes do:
//
//   - original: Amount re-sums the whole ledger on every read.
//   - scalar: writes also maintain a denormalized running total on the
//     account row; Amount is a single point read.
//   - materialized: Amount combines a persisted partial aggregate with a
//     tail scan of entries newer than the cache's validity timestamp.
package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/ledgerbench/ledger-bench/internal/model"
	"github.com/ledgerbench/ledger-bench/internal/store"
)

// ErrUnknownStrategy is returned at configuration time for an unrecognized
// strategy name. It is never surfaced at request time.
var ErrUnknownStrategy = errors.New("account: unknown strategy")

// Strategy selects one of the three aggregation implementations. Chosen once
// at startup; there is no runtime switching.
type Strategy string

const (
	// StrategyOriginal recomputes the full ledger sum on every read.
	StrategyOriginal Strategy = "original"
	// StrategyScalar maintains a denormalized running total per account.
	StrategyScalar Strategy = "scalar"
	// StrategyMaterialized maintains a refreshable amount cache plus tail scan.
	StrategyMaterialized Strategy = "materialized"
)

// ParseStrategy validates a strategy name from configuration.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyOriginal, StrategyScalar, StrategyMaterialized:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Model is the aggregation contract shared by all strategies.
type Model interface {
	// Debit records amount against the account. Always succeeds; there is
	// no balance-sufficiency check anywhere in the engine.
	Debit(ctx context.Context, account *model.Account, amount int64) error

	// Credit records amount against the account. In the materialized
	// strategy this is additionally a serialization point against the
	// account's cache row.
	Credit(ctx context.Context, account *model.Account, amount int64) error

	// Amount returns the current balance, reflecting every entry committed
	// strictly before the read's query executes.
	Amount(ctx context.Context, account *model.Account) (int64, error)
}

// New returns the Model for the given strategy, bound to st.
func New(strategy Strategy, st store.Store) (Model, error) {
	switch strategy {
	case StrategyOriginal:
		return NewOriginal(st), nil
	case StrategyScalar:
		return NewScalar(st), nil
	case StrategyMaterialized:
		return NewMaterialized(st), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
}
