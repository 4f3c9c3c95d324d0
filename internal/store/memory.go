package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ledgerbench/ledger-bench/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence, transactions
// are serialized rather than isolated, and rollback is not supported).
type MemoryStore struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	accounts map[string]*model.Account
	ledger   []model.LedgerEntry
	caches   map[string]*model.AmountCache
	lastTS   time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*model.Account),
		caches:   make(map[string]*model.AmountCache),
	}
}

// tick returns a strictly increasing timestamp so the tail boundary
// (created_at > T vs created_at <= T) stays well-defined under rapid
// inserts. Caller must hold mu.
func (s *MemoryStore) tick() time.Time {
	now := time.Now()
	if !now.After(s.lastTS) {
		now = s.lastTS.Add(time.Nanosecond)
	}
	s.lastTS = now
	return now
}

func (s *MemoryStore) CreateAccount(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[a.GUID]; ok {
		return fmt.Errorf("account %s already exists", a.GUID)
	}
	cp := *a
	s.accounts[a.GUID] = &cp
	return nil
}

func (s *MemoryStore) GetAccount(_ context.Context, guid string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[guid]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", guid, ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) AddAccountAmount(_ context.Context, guid string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[guid]
	if !ok {
		return fmt.Errorf("account %s: %w", guid, ErrNotFound)
	}
	a.Amount += delta
	return nil
}

func (s *MemoryStore) InsertLedgerEntry(_ context.Context, e *model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.CreatedAt = s.tick()
	s.ledger = append(s.ledger, *e)
	return nil
}

func (s *MemoryStore) SumLedgerAmounts(_ context.Context, accountGUID string, after *time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum int64
	for _, e := range s.ledger {
		if e.AccountGUID != accountGUID {
			continue
		}
		if after != nil && !e.CreatedAt.After(*after) {
			continue
		}
		sum += e.Amount
	}
	return sum, nil
}

func (s *MemoryStore) SumLedgerAmountsThrough(_ context.Context, accountGUID string, asOf time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum int64
	for _, e := range s.ledger {
		if e.AccountGUID != accountGUID {
			continue
		}
		if e.CreatedAt.After(asOf) {
			continue
		}
		sum += e.Amount
	}
	return sum, nil
}

// LedgerEntries returns a copy of all entries for an account in insert
// order. Not part of the Store interface; used by tests and tooling to
// inspect the ledger directly.
func (s *MemoryStore) LedgerEntries(accountGUID string) []model.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.LedgerEntry
	for _, e := range s.ledger {
		if e.AccountGUID == accountGUID {
			out = append(out, e)
		}
	}
	return out
}

func (s *MemoryStore) GetAmountCache(_ context.Context, accountGUID string) (*model.AmountCache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.caches[accountGUID]
	if !ok {
		return nil, fmt.Errorf("amount cache %s: %w", accountGUID, ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

// LockAmountCache is a no-op: WithTx serializes whole transactions, which
// subsumes the per-row lock the PostgreSQL store takes.
func (s *MemoryStore) LockAmountCache(_ context.Context, _ string) error {
	return nil
}

func (s *MemoryStore) UpsertAmountCache(_ context.Context, c *model.AmountCache) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *c
	s.caches[c.AccountGUID] = &cp
	return nil
}

func (s *MemoryStore) Now(_ context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick(), nil
}

// WithTx serializes transactions with a dedicated mutex: concurrent
// transactions run one at a time, mirroring the ordering (not the rollback
// semantics) of the real store.
func (s *MemoryStore) WithTx(_ context.Context, fn func(Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(&memoryTx{s})
}

// memoryTx is the transaction-scoped view of a MemoryStore.
type memoryTx struct {
	*MemoryStore
}

func (t *memoryTx) WithTx(_ context.Context, _ func(Store) error) error {
	return ErrNestedTx
}
