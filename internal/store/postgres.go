package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerbench/ledger-bench/internal/model"
)

// querier is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx,
// so the same store methods run inside and outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using PostgreSQL as the source of truth.
// CreatedAt on ledger entries comes from clock_timestamp() so timestamps
// advance within a transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
	q    querier
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, q: pool}
}

func (s *PostgresStore) CreateAccount(ctx context.Context, a *model.Account) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO accounts (guid, amount) VALUES ($1, $2)`,
		a.GUID, a.Amount,
	)
	if err != nil {
		return fmt.Errorf("create account %s: %w", a.GUID, err)
	}
	return nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, guid string) (*model.Account, error) {
	var a model.Account
	err := s.q.QueryRow(ctx,
		`SELECT guid, amount FROM accounts WHERE guid = $1`, guid).
		Scan(&a.GUID, &a.Amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", guid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", guid, err)
	}
	return &a, nil
}

func (s *PostgresStore) AddAccountAmount(ctx context.Context, guid string, delta int64) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE accounts SET amount = amount + $2 WHERE guid = $1`,
		guid, delta,
	)
	if err != nil {
		return fmt.Errorf("add account amount %s: %w", guid, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s: %w", guid, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) InsertLedgerEntry(ctx context.Context, e *model.LedgerEntry) error {
	err := s.q.QueryRow(ctx,
		`INSERT INTO ledger_entries (guid, account_guid, amount)
		 VALUES ($1, $2, $3)
		 RETURNING created_at`,
		e.GUID, e.AccountGUID, e.Amount,
	).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert ledger entry %s: %w", e.GUID, err)
	}
	return nil
}

func (s *PostgresStore) SumLedgerAmounts(ctx context.Context, accountGUID string, after *time.Time) (int64, error) {
	var sum int64
	var err error
	if after != nil {
		err = s.q.QueryRow(ctx,
			`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
			  WHERE account_guid = $1 AND created_at > $2`,
			accountGUID, *after).Scan(&sum)
	} else {
		err = s.q.QueryRow(ctx,
			`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
			  WHERE account_guid = $1`,
			accountGUID).Scan(&sum)
	}
	if err != nil {
		return 0, fmt.Errorf("sum ledger %s: %w", accountGUID, err)
	}
	return sum, nil
}

func (s *PostgresStore) SumLedgerAmountsThrough(ctx context.Context, accountGUID string, asOf time.Time) (int64, error) {
	var sum int64
	err := s.q.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
		  WHERE account_guid = $1 AND created_at <= $2`,
		accountGUID, asOf).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum ledger %s through %s: %w", accountGUID, asOf, err)
	}
	return sum, nil
}

func (s *PostgresStore) GetAmountCache(ctx context.Context, accountGUID string) (*model.AmountCache, error) {
	var c model.AmountCache
	err := s.q.QueryRow(ctx,
		`SELECT account_guid, amount, updated_at
		   FROM account_amounts WHERE account_guid = $1`,
		accountGUID).Scan(&c.AccountGUID, &c.Amount, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("amount cache %s: %w", accountGUID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get amount cache %s: %w", accountGUID, err)
	}
	return &c, nil
}

func (s *PostgresStore) LockAmountCache(ctx context.Context, accountGUID string) error {
	// FOR UPDATE blocks until any concurrent holder commits. Matching zero
	// rows takes no lock, which is fine: with no cache record every reader
	// does a full scan and appends commute.
	var guid string
	err := s.q.QueryRow(ctx,
		`SELECT account_guid FROM account_amounts
		  WHERE account_guid = $1 FOR UPDATE`,
		accountGUID).Scan(&guid)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lock amount cache %s: %w", accountGUID, err)
	}
	return nil
}

func (s *PostgresStore) UpsertAmountCache(ctx context.Context, c *model.AmountCache) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO account_amounts (account_guid, amount, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (account_guid)
		 DO UPDATE SET amount = EXCLUDED.amount, updated_at = EXCLUDED.updated_at`,
		c.AccountGUID, c.Amount, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert amount cache %s: %w", c.AccountGUID, err)
	}
	return nil
}

func (s *PostgresStore) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := s.q.QueryRow(ctx, `SELECT clock_timestamp()`).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("store clock: %w", err)
	}
	return now, nil
}

// WithTx runs fn against a transaction-scoped PostgresStore. Read-committed
// (the default) is sufficient: the serialization the materialized strategy
// needs comes from the explicit row lock, not the isolation level.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if _, ok := s.q.(pgx.Tx); ok {
		return ErrNestedTx
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&PostgresStore{pool: s.pool, q: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
