package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ledgerbench/ledger-bench/internal/model"
	"github.com/ledgerbench/ledger-bench/internal/store"
)

func newCachedStore(t *testing.T, primary store.Store) (*store.CachedStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return store.NewCachedStore(primary, rdb, time.Minute), mr
}

func TestCachedStore_ReadThrough(t *testing.T) {
	ms := store.NewMemoryStore()
	cs, mr := newCachedStore(t, ms)
	ctx := context.Background()

	acct := &model.Account{GUID: uuid.NewString()}
	if err := ms.CreateAccount(ctx, acct); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := cs.GetAccount(ctx, acct.GUID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Amount != 0 {
		t.Fatalf("amount = %d, want 0", got.Amount)
	}
	if !mr.Exists("account:" + acct.GUID) {
		t.Fatal("miss did not populate the cache")
	}

	// Mutating the primary behind the cache must not be visible: the next
	// read is served from Redis until something invalidates the key.
	if err := ms.AddAccountAmount(ctx, acct.GUID, 500); err != nil {
		t.Fatalf("add: %v", err)
	}
	got, err = cs.GetAccount(ctx, acct.GUID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Amount != 0 {
		t.Fatalf("amount = %d, want cached 0", got.Amount)
	}
}

func TestCachedStore_WriteInvalidates(t *testing.T) {
	ms := store.NewMemoryStore()
	cs, mr := newCachedStore(t, ms)
	ctx := context.Background()

	acct := &model.Account{GUID: uuid.NewString()}
	if err := cs.CreateAccount(ctx, acct); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := cs.GetAccount(ctx, acct.GUID); err != nil {
		t.Fatalf("get: %v", err)
	}

	if err := cs.AddAccountAmount(ctx, acct.GUID, 250); err != nil {
		t.Fatalf("add: %v", err)
	}
	if mr.Exists("account:" + acct.GUID) {
		t.Fatal("write did not invalidate the cache key")
	}

	got, err := cs.GetAccount(ctx, acct.GUID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Amount != 250 {
		t.Fatalf("amount = %d, want 250", got.Amount)
	}
}

func TestCachedStore_NotFoundIsNotCached(t *testing.T) {
	ms := store.NewMemoryStore()
	cs, mr := newCachedStore(t, ms)

	if _, err := cs.GetAccount(context.Background(), "nope"); err == nil {
		t.Fatal("expected not-found error")
	}
	if mr.Exists("account:nope") {
		t.Fatal("not-found lookup must not populate the cache")
	}
}

// readCommittedStore wraps a MemoryStore so transactional writes stay
// invisible to other readers until the commit, the way the SQL store
// behaves under read committed. MemoryStore applies writes immediately,
// which hides exactly the interleavings this file needs to exercise.
type readCommittedStore struct {
	*store.MemoryStore
}

func (s *readCommittedStore) WithTx(ctx context.Context, fn func(store.Store) error) error {
	tx := &readCommittedTx{MemoryStore: s.MemoryStore}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit(ctx)
}

type readCommittedTx struct {
	*store.MemoryStore
	writes []func(context.Context) error
}

func (t *readCommittedTx) AddAccountAmount(_ context.Context, guid string, delta int64) error {
	t.writes = append(t.writes, func(ctx context.Context) error {
		return t.MemoryStore.AddAccountAmount(ctx, guid, delta)
	})
	return nil
}

func (t *readCommittedTx) InsertLedgerEntry(_ context.Context, e *model.LedgerEntry) error {
	entry := *e
	t.writes = append(t.writes, func(ctx context.Context) error {
		return t.MemoryStore.InsertLedgerEntry(ctx, &entry)
	})
	return nil
}

func (t *readCommittedTx) commit(ctx context.Context) error {
	for _, w := range t.writes {
		if err := w(ctx); err != nil {
			return err
		}
	}
	return nil
}

// A read racing a still-open transaction may repopulate the cache with the
// pre-commit balance. That entry must not survive the commit: eviction has
// to happen after the primary's writes land, or the stale balance is served
// for a full TTL.
func TestCachedStore_TxEvictsAfterCommit(t *testing.T) {
	ms := store.NewMemoryStore()
	cs, _ := newCachedStore(t, &readCommittedStore{MemoryStore: ms})
	ctx := context.Background()

	acct := &model.Account{GUID: uuid.NewString()}
	if err := ms.CreateAccount(ctx, acct); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := cs.WithTx(ctx, func(tx store.Store) error {
		if err := tx.AddAccountAmount(ctx, acct.GUID, 100); err != nil {
			return err
		}
		// Concurrent reader mid-transaction: sees the pre-commit balance
		// and caches it.
		mid, err := cs.GetAccount(ctx, acct.GUID)
		if err != nil {
			return err
		}
		if mid.Amount != 0 {
			t.Fatalf("mid-tx amount = %d, want uncommitted 0", mid.Amount)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	got, err := cs.GetAccount(ctx, acct.GUID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Amount != 100 {
		t.Fatalf("post-commit amount = %d, want 100", got.Amount)
	}
}

func TestCachedStore_TxReadsBypassCache(t *testing.T) {
	ms := store.NewMemoryStore()
	cs, mr := newCachedStore(t, ms)
	ctx := context.Background()

	acct := &model.Account{GUID: uuid.NewString()}
	if err := ms.CreateAccount(ctx, acct); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := cs.WithTx(ctx, func(tx store.Store) error {
		if _, err := tx.GetAccount(ctx, acct.GUID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	if mr.Exists("account:" + acct.GUID) {
		t.Fatal("transactional read must not populate the cache")
	}
}
