package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ledgerbench/ledger-bench/internal/model"
)

// CachedStore wraps a primary Store with a Redis read-through cache of
// account point lookups — the hot read every worker request starts with.
// Writes go to the primary store; anything that mutates an account
// invalidates its cache key. Ledger and amount-cache operations pass
// through untouched: their coherence is the aggregation engine's job.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (s *CachedStore) CreateAccount(ctx context.Context, a *model.Account) error {
	if err := s.primary.CreateAccount(ctx, a); err != nil {
		return err
	}
	s.cacheAccount(ctx, a)
	return nil
}

func (s *CachedStore) GetAccount(ctx context.Context, guid string) (*model.Account, error) {
	data, err := s.rdb.Get(ctx, accountKey(guid)).Bytes()
	if err == nil {
		var a model.Account
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	a, err := s.primary.GetAccount(ctx, guid)
	if err != nil {
		return nil, err
	}

	s.cacheAccount(ctx, a)
	return a, nil
}

func (s *CachedStore) AddAccountAmount(ctx context.Context, guid string, delta int64) error {
	if err := s.primary.AddAccountAmount(ctx, guid, delta); err != nil {
		return err
	}
	// Invalidate; next read re-populates with the committed total.
	s.rdb.Del(ctx, accountKey(guid))
	return nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) InsertLedgerEntry(ctx context.Context, e *model.LedgerEntry) error {
	return s.primary.InsertLedgerEntry(ctx, e)
}

func (s *CachedStore) SumLedgerAmounts(ctx context.Context, accountGUID string, after *time.Time) (int64, error) {
	return s.primary.SumLedgerAmounts(ctx, accountGUID, after)
}

func (s *CachedStore) SumLedgerAmountsThrough(ctx context.Context, accountGUID string, asOf time.Time) (int64, error) {
	return s.primary.SumLedgerAmountsThrough(ctx, accountGUID, asOf)
}

func (s *CachedStore) GetAmountCache(ctx context.Context, accountGUID string) (*model.AmountCache, error) {
	return s.primary.GetAmountCache(ctx, accountGUID)
}

func (s *CachedStore) LockAmountCache(ctx context.Context, accountGUID string) error {
	return s.primary.LockAmountCache(ctx, accountGUID)
}

func (s *CachedStore) UpsertAmountCache(ctx context.Context, c *model.AmountCache) error {
	return s.primary.UpsertAmountCache(ctx, c)
}

func (s *CachedStore) Now(ctx context.Context) (time.Time, error) {
	return s.primary.Now(ctx)
}

// WithTx delegates the transaction to the primary store, with Redis
// eviction deferred until the commit has landed. Deleting a key while the
// transaction is still open would let a concurrent read repopulate it with
// the pre-commit balance, and that stale entry would outlive the commit for
// a full TTL.
func (s *CachedStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx := &cachedTx{touched: make(map[string]struct{})}
	if err := s.primary.WithTx(ctx, func(p Store) error {
		tx.primary = p
		return fn(tx)
	}); err != nil {
		return err
	}
	for guid := range tx.touched {
		s.rdb.Del(ctx, accountKey(guid))
	}
	return nil
}

// cachedTx is the transaction-scoped view handed to WithTx callbacks. It
// bypasses Redis entirely — uncommitted state must never be cached — and
// records which accounts the transaction touched so their keys can be
// evicted once the commit succeeds.
type cachedTx struct {
	primary Store
	touched map[string]struct{}
}

func (t *cachedTx) CreateAccount(ctx context.Context, a *model.Account) error {
	if err := t.primary.CreateAccount(ctx, a); err != nil {
		return err
	}
	t.touched[a.GUID] = struct{}{}
	return nil
}

func (t *cachedTx) GetAccount(ctx context.Context, guid string) (*model.Account, error) {
	return t.primary.GetAccount(ctx, guid)
}

func (t *cachedTx) AddAccountAmount(ctx context.Context, guid string, delta int64) error {
	if err := t.primary.AddAccountAmount(ctx, guid, delta); err != nil {
		return err
	}
	t.touched[guid] = struct{}{}
	return nil
}

func (t *cachedTx) InsertLedgerEntry(ctx context.Context, e *model.LedgerEntry) error {
	return t.primary.InsertLedgerEntry(ctx, e)
}

func (t *cachedTx) SumLedgerAmounts(ctx context.Context, accountGUID string, after *time.Time) (int64, error) {
	return t.primary.SumLedgerAmounts(ctx, accountGUID, after)
}

func (t *cachedTx) SumLedgerAmountsThrough(ctx context.Context, accountGUID string, asOf time.Time) (int64, error) {
	return t.primary.SumLedgerAmountsThrough(ctx, accountGUID, asOf)
}

func (t *cachedTx) GetAmountCache(ctx context.Context, accountGUID string) (*model.AmountCache, error) {
	return t.primary.GetAmountCache(ctx, accountGUID)
}

func (t *cachedTx) LockAmountCache(ctx context.Context, accountGUID string) error {
	return t.primary.LockAmountCache(ctx, accountGUID)
}

func (t *cachedTx) UpsertAmountCache(ctx context.Context, c *model.AmountCache) error {
	return t.primary.UpsertAmountCache(ctx, c)
}

func (t *cachedTx) Now(ctx context.Context) (time.Time, error) {
	return t.primary.Now(ctx)
}

func (t *cachedTx) WithTx(ctx context.Context, fn func(Store) error) error {
	return t.primary.WithTx(ctx, fn)
}

func (s *CachedStore) cacheAccount(ctx context.Context, a *model.Account) {
	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, accountKey(a.GUID), data, s.ttl)
	}
}

func accountKey(guid string) string { return fmt.Sprintf("account:%s", guid) }
