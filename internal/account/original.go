package account

import (
	"context"

	"github.com/google/uuid"

	"github.com/ledgerbench/ledger-bench/internal/model"
	"github.com/ledgerbench/ledger-bench/internal/store"
)

// Original is the recompute-every-time strategy: writes are bare appends and
// every read sums the full ledger history. Baseline for correctness and
// worst-case read latency.
type Original struct {
	st store.Store
}

// NewOriginal creates the recompute-every-time model.
func NewOriginal(st store.Store) *Original {
	return &Original{st: st}
}

func (m *Original) Debit(ctx context.Context, account *model.Account, amount int64) error {
	return m.st.InsertLedgerEntry(ctx, &model.LedgerEntry{
		GUID:        uuid.NewString(),
		AccountGUID: account.GUID,
		Amount:      amount,
	})
}

func (m *Original) Credit(ctx context.Context, account *model.Account, amount int64) error {
	return m.st.InsertLedgerEntry(ctx, &model.LedgerEntry{
		GUID:        uuid.NewString(),
		AccountGUID: account.GUID,
		Amount:      amount,
	})
}

func (m *Original) Amount(ctx context.Context, account *model.Account) (int64, error) {
	return m.st.SumLedgerAmounts(ctx, account.GUID, nil)
}
