// Package memory implements every storage port of the ledger in process
// memory. It backs unit and stress tests and the demo mode of the CLI;
// transactional semantics mirror the postgres adapter (all-or-nothing
// commits, lock-ordered account access) under a store-wide lock.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallyhq/tally/internal/domain"
	"github.com/tallyhq/tally/internal/usecase"
)

// Store is an in-memory ledger store. Repository views over it are
// obtained with Accounts, Transactions, Entries and Ledger.
type Store struct {
	clock usecase.Clock

	mu           sync.RWMutex
	accounts     map[string]*domain.Account
	transactions map[string]*domain.Transaction
	byKey        map[string]string
	journal      []*domain.Entry
	sequence     int64

	resMu        sync.Mutex
	reservations map[string]*reservation
	lease        time.Duration
	retention    time.Duration
}

// NewStore creates an empty in-memory store.
func NewStore(clock usecase.Clock) *Store {
	return &Store{
		clock:        clock,
		accounts:     make(map[string]*domain.Account),
		transactions: make(map[string]*domain.Transaction),
		byKey:        make(map[string]string),
		reservations: make(map[string]*reservation),
		lease:        usecase.IdempotencyLease,
		retention:    usecase.IdempotencyRetention,
	}
}

// Accounts returns the account repository view.
func (s *Store) Accounts() *AccountRepository { return &AccountRepository{s: s} }

// Transactions returns the transaction repository view.
func (s *Store) Transactions() *TransactionRepository { return &TransactionRepository{s: s} }

// Entries returns the entry repository view.
func (s *Store) Entries() *EntryRepository { return &EntryRepository{s: s} }

// Ledger returns the journal-wide repository view.
func (s *Store) Ledger() *LedgerRepository { return &LedgerRepository{s: s} }

// JournalLen reports the number of committed journal entries.
func (s *Store) JournalLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.journal)
}

// Tx is a store-wide transaction: Begin takes the write lock, staged
// mutations become visible only on Commit.
type Tx struct {
	s    *Store
	done bool

	stagedTxns     []*domain.Transaction
	stagedReversed map[string]string
	stagedEntries  []*domain.Entry
	stagedBalances map[string]balanceUpdate
}

type balanceUpdate struct {
	balance   decimal.Decimal
	version   int64
	updatedAt time.Time
}

// Begin starts a transaction. It blocks until the store lock is free.
func (s *Store) Begin(ctx context.Context) (usecase.Transaction, error) {
	s.mu.Lock()
	return &Tx{
		s:              s,
		stagedReversed: make(map[string]string),
		stagedBalances: make(map[string]balanceUpdate),
	}, nil
}

// Commit applies all staged mutations atomically and releases the lock.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}

	for _, txn := range t.stagedTxns {
		clone := cloneTransaction(txn)
		t.s.transactions[clone.ID] = clone
		t.s.byKey[clone.IdempotencyKey] = clone.ID
	}
	for id, reversedBy := range t.stagedReversed {
		txn := t.s.transactions[id]
		txn.Status = domain.StatusReversed
		by := reversedBy
		txn.ReversedBy = &by
	}
	for _, e := range t.stagedEntries {
		t.s.journal = append(t.s.journal, cloneEntry(e))
	}
	for id, upd := range t.stagedBalances {
		account := t.s.accounts[id]
		account.Balance = upd.balance
		account.Version = upd.version
		account.UpdatedAt = upd.updatedAt
	}

	t.done = true
	t.s.mu.Unlock()
	return nil
}

// Rollback discards staged mutations. Safe to call after Commit.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.s.mu.Unlock()
	return nil
}

func asTx(tx usecase.Transaction) *Tx {
	return tx.(*Tx)
}

// AccountRepository implements usecase.AccountRepository.
type AccountRepository struct {
	s *Store
}

// Create creates a new account.
func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.accounts[account.ID]; ok {
		return domain.ErrDuplicateAccount
	}
	r.s.accounts[account.ID] = cloneAccount(account)
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	account, ok := r.s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return cloneAccount(account), nil
}

// GetByIDsForUpdate returns the accounts under the transaction's lock.
// The store-wide lock already serializes writers, so no per-row lock is
// needed; ids are still expected sorted for parity with the SQL adapter.
func (r *AccountRepository) GetByIDsForUpdate(ctx context.Context, tx usecase.Transaction, ids []string) ([]*domain.Account, error) {
	_ = asTx(tx)

	accounts := make([]*domain.Account, 0, len(ids))
	for _, id := range ids {
		if account, ok := r.s.accounts[id]; ok {
			accounts = append(accounts, cloneAccount(account))
		}
	}
	return accounts, nil
}

// UpdateBalance stages a balance update.
func (r *AccountRepository) UpdateBalance(ctx context.Context, tx usecase.Transaction, id string, balance decimal.Decimal, version int64, updatedAt time.Time) error {
	t := asTx(tx)

	if _, ok := r.s.accounts[id]; !ok {
		return domain.ErrAccountNotFound
	}
	t.stagedBalances[id] = balanceUpdate{balance: balance, version: version, updatedAt: updatedAt}
	return nil
}

// SetActive toggles the active flag.
func (r *AccountRepository) SetActive(ctx context.Context, id string, active bool, updatedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	account, ok := r.s.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	account.Active = active
	account.UpdatedAt = updatedAt
	return nil
}

// List lists accounts ordered by ID.
func (r *AccountRepository) List(ctx context.Context, limit, offset int) ([]*domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ids := make([]string, 0, len(r.s.accounts))
	for id := range r.s.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	accounts := make([]*domain.Account, 0, limit)
	for i := offset; i < len(ids) && len(accounts) < limit; i++ {
		accounts = append(accounts, cloneAccount(r.s.accounts[ids[i]]))
	}
	return accounts, nil
}

// TransactionRepository implements usecase.TransactionRepository.
type TransactionRepository struct {
	s *Store
}

// Create persists a transaction and assigns its journal sequence.
func (r *TransactionRepository) Create(ctx context.Context, tx usecase.Transaction, txn *domain.Transaction) error {
	t := asTx(tx)

	if _, ok := r.s.byKey[txn.IdempotencyKey]; ok {
		return domain.ErrDuplicateTransaction
	}
	for _, staged := range t.stagedTxns {
		if staged.IdempotencyKey == txn.IdempotencyKey {
			return domain.ErrDuplicateTransaction
		}
	}

	r.s.sequence++
	txn.Sequence = r.s.sequence
	t.stagedTxns = append(t.stagedTxns, txn)
	return nil
}

// GetByID retrieves a transaction with its entries.
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	txn, ok := r.s.transactions[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return cloneTransaction(txn), nil
}

// GetByIdempotencyKey retrieves a transaction by its idempotency key.
func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.byKey[key]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return cloneTransaction(r.s.transactions[id]), nil
}

// MarkReversed stages a posted -> reversed status flip.
func (r *TransactionRepository) MarkReversed(ctx context.Context, tx usecase.Transaction, id, reversedBy string) error {
	t := asTx(tx)

	txn, ok := r.s.transactions[id]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	if txn.Status != domain.StatusPosted {
		return domain.ErrAlreadyReversed
	}
	if _, ok := t.stagedReversed[id]; ok {
		return domain.ErrAlreadyReversed
	}
	t.stagedReversed[id] = reversedBy
	return nil
}

// ListByAccount returns transactions touching the account after the given
// sequence, in sequence order.
func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID string, afterSequence int64, limit int) ([]*domain.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var matched []*domain.Transaction
	for _, txn := range r.s.transactions {
		if txn.Sequence <= afterSequence {
			continue
		}
		for _, e := range txn.Entries {
			if e.AccountID == accountID {
				matched = append(matched, txn)
				break
			}
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].Sequence < matched[j].Sequence })

	if len(matched) > limit {
		matched = matched[:limit]
	}

	result := make([]*domain.Transaction, 0, len(matched))
	for _, txn := range matched {
		result = append(result, cloneTransaction(txn))
	}
	return result, nil
}

// EntryRepository implements usecase.EntryRepository.
type EntryRepository struct {
	s *Store
}

// Create stages a journal append.
func (r *EntryRepository) Create(ctx context.Context, tx usecase.Transaction, entry *domain.Entry) error {
	t := asTx(tx)
	t.stagedEntries = append(t.stagedEntries, entry)
	return nil
}

// GetByTransaction returns a transaction's entries in position order.
func (r *EntryRepository) GetByTransaction(ctx context.Context, transactionID string) ([]*domain.Entry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var entries []*domain.Entry
	for _, e := range r.s.journal {
		if e.TransactionID == transactionID {
			entries = append(entries, cloneEntry(e))
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Position < entries[j].Position })
	return entries, nil
}

// GetByAccount returns an account's entries in journal order.
func (r *EntryRepository) GetByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Entry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var entries []*domain.Entry
	for _, e := range r.s.journal {
		if e.AccountID == accountID {
			entries = append(entries, cloneEntry(e))
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Sequence != entries[j].Sequence {
			return entries[i].Sequence < entries[j].Sequence
		}
		return entries[i].Position < entries[j].Position
	})

	if offset > len(entries) {
		offset = len(entries)
	}
	entries = entries[offset:]
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// SumByDirection sums the account's entry amounts per direction up to the
// cutoff.
func (r *EntryRepository) SumByDirection(ctx context.Context, accountID string, cutoff usecase.ReplayCutoff) (decimal.Decimal, decimal.Decimal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	debits, credits := decimal.Zero, decimal.Zero
	for _, e := range r.s.journal {
		if e.AccountID != accountID {
			continue
		}
		if cutoff.Sequence != nil && e.Sequence > *cutoff.Sequence {
			continue
		}
		if cutoff.Time != nil && e.CreatedAt.After(*cutoff.Time) {
			continue
		}
		if e.Direction == domain.DirectionDebit {
			debits = debits.Add(e.Amount)
		} else {
			credits = credits.Add(e.Amount)
		}
	}
	return debits, credits, nil
}

// LedgerRepository implements usecase.LedgerRepository.
type LedgerRepository struct {
	s *Store
}

// TrialBalance sums all journal entries per currency and direction.
func (r *LedgerRepository) TrialBalance(ctx context.Context) ([]usecase.CurrencyTotals, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	debits := map[string]decimal.Decimal{}
	credits := map[string]decimal.Decimal{}
	for _, e := range r.s.journal {
		if e.Direction == domain.DirectionDebit {
			debits[e.Currency] = debits[e.Currency].Add(e.Amount)
		} else {
			credits[e.Currency] = credits[e.Currency].Add(e.Amount)
		}
	}

	currencies := map[string]bool{}
	for c := range debits {
		currencies[c] = true
	}
	for c := range credits {
		currencies[c] = true
	}

	var names []string
	for c := range currencies {
		names = append(names, c)
	}
	sort.Strings(names)

	totals := make([]usecase.CurrencyTotals, 0, len(names))
	for _, c := range names {
		totals = append(totals, usecase.CurrencyTotals{
			Currency: c,
			Debits:   debits[c],
			Credits:  credits[c],
		})
	}
	return totals, nil
}

type reservation struct {
	hash      string
	completed bool
	result    []byte
	expiresAt time.Time
}

// Reserve atomically claims the key or reports its prior outcome.
func (s *Store) Reserve(ctx context.Context, key, requestHash string) (*usecase.Reservation, error) {
	s.resMu.Lock()
	defer s.resMu.Unlock()

	now := s.clock.Now()

	if r, ok := s.reservations[key]; ok && now.Before(r.expiresAt) {
		if r.hash != requestHash {
			return nil, domain.ErrIdempotencyConflict
		}
		if r.completed {
			return &usecase.Reservation{Replayed: true, Result: r.result}, nil
		}
		return nil, domain.ErrIdempotencyInProgress
	}

	// Unseen, or the previous reservation's lease/retention expired.
	s.reservations[key] = &reservation{
		hash:      requestHash,
		expiresAt: now.Add(s.lease),
	}
	return &usecase.Reservation{}, nil
}

// Complete stores the final result for the key.
func (s *Store) Complete(ctx context.Context, key string, result []byte) error {
	s.resMu.Lock()
	defer s.resMu.Unlock()

	r, ok := s.reservations[key]
	if !ok {
		return fmt.Errorf("no reservation for key %s", key)
	}
	r.completed = true
	r.result = result
	r.expiresAt = s.clock.Now().Add(s.retention)
	return nil
}

// Release frees an uncompleted reservation.
func (s *Store) Release(ctx context.Context, key string) error {
	s.resMu.Lock()
	defer s.resMu.Unlock()

	if r, ok := s.reservations[key]; ok && !r.completed {
		delete(s.reservations, key)
	}
	return nil
}

func cloneAccount(a *domain.Account) *domain.Account {
	clone := *a
	if a.Metadata != nil {
		clone.Metadata = make(map[string]any, len(a.Metadata))
		for k, v := range a.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

func cloneTransaction(t *domain.Transaction) *domain.Transaction {
	clone := *t
	if t.Metadata != nil {
		clone.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			clone.Metadata[k] = v
		}
	}
	if t.ReversalOf != nil {
		v := *t.ReversalOf
		clone.ReversalOf = &v
	}
	if t.ReversedBy != nil {
		v := *t.ReversedBy
		clone.ReversedBy = &v
	}
	clone.Entries = make([]*domain.Entry, 0, len(t.Entries))
	for _, e := range t.Entries {
		clone.Entries = append(clone.Entries, cloneEntry(e))
	}
	return &clone
}

func cloneEntry(e *domain.Entry) *domain.Entry {
	clone := *e
	return &clone
}
