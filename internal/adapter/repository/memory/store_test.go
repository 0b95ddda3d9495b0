package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallyhq/tally/internal/adapter/repository/memory"
	"github.com/tallyhq/tally/internal/domain"
	"github.com/tallyhq/tally/internal/usecase"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testAccount(id string) *domain.Account {
	return &domain.Account{
		ID:       id,
		Name:     id,
		Type:     domain.AccountTypeAsset,
		Currency: "USD",
		Balance:  decimal.Zero,
		Active:   true,
	}
}

func TestCommitAppliesStagedMutations(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(newFakeClock())

	if err := store.Accounts().Create(ctx, testAccount("cash")); err != nil {
		t.Fatalf("create account: %v", err)
	}

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	txn := &domain.Transaction{
		ID:             "txn-1",
		IdempotencyKey: "key-1",
		Type:           domain.TransactionTypeTransfer,
		Status:         domain.StatusPosted,
	}
	if err := store.Transactions().Create(ctx, tx, txn); err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if txn.Sequence != 1 {
		t.Errorf("expected sequence 1, got %d", txn.Sequence)
	}

	entry := &domain.Entry{
		ID:            "entry-1",
		TransactionID: "txn-1",
		AccountID:     "cash",
		Direction:     domain.DirectionDebit,
		Amount:        decimal.NewFromInt(10),
		Currency:      "USD",
		Sequence:      txn.Sequence,
	}
	if err := store.Entries().Create(ctx, tx, entry); err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if err := store.Accounts().UpdateBalance(ctx, tx, "cash", decimal.NewFromInt(10), 1, time.Now()); err != nil {
		t.Fatalf("update balance: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := store.Transactions().GetByIdempotencyKey(ctx, "key-1")
	if err != nil {
		t.Fatalf("get by key: %v", err)
	}
	if got.ID != "txn-1" {
		t.Errorf("expected txn-1, got %s", got.ID)
	}
	if store.JournalLen() != 1 {
		t.Errorf("expected 1 journal entry, got %d", store.JournalLen())
	}

	account, err := store.Accounts().GetByID(ctx, "cash")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if !account.Balance.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected balance 10, got %s", account.Balance)
	}
}

func TestRollbackDiscardsStagedMutations(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(newFakeClock())

	if err := store.Accounts().Create(ctx, testAccount("cash")); err != nil {
		t.Fatalf("create account: %v", err)
	}

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	txn := &domain.Transaction{ID: "txn-1", IdempotencyKey: "key-1", Status: domain.StatusPosted}
	if err := store.Transactions().Create(ctx, tx, txn); err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if err := store.Entries().Create(ctx, tx, &domain.Entry{ID: "entry-1", AccountID: "cash"}); err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if err := store.Accounts().UpdateBalance(ctx, tx, "cash", decimal.NewFromInt(10), 1, time.Now()); err != nil {
		t.Fatalf("update balance: %v", err)
	}

	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	// Rollback after rollback is a no-op, mirroring the SQL adapter.
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("second rollback: %v", err)
	}

	if _, err := store.Transactions().GetByIdempotencyKey(ctx, "key-1"); !errors.Is(err, domain.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
	if store.JournalLen() != 0 {
		t.Errorf("expected empty journal, got %d entries", store.JournalLen())
	}

	account, err := store.Accounts().GetByID(ctx, "cash")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if !account.Balance.IsZero() {
		t.Errorf("expected untouched balance, got %s", account.Balance)
	}
}

func TestDuplicateIdempotencyKeyRejected(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(newFakeClock())

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := store.Transactions().Create(ctx, tx, &domain.Transaction{ID: "txn-1", IdempotencyKey: "key-1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tx, err = store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback(ctx)

	err = store.Transactions().Create(ctx, tx, &domain.Transaction{ID: "txn-2", IdempotencyKey: "key-1"})
	if !errors.Is(err, domain.ErrDuplicateTransaction) {
		t.Fatalf("expected ErrDuplicateTransaction, got %v", err)
	}
}

func TestReserveLifecycle(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(newFakeClock())

	res, err := store.Reserve(ctx, "key-1", "hash-a")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if res.Replayed {
		t.Error("fresh reservation must not be a replay")
	}

	if _, err := store.Reserve(ctx, "key-1", "hash-a"); !errors.Is(err, domain.ErrIdempotencyInProgress) {
		t.Fatalf("expected ErrIdempotencyInProgress, got %v", err)
	}
	if _, err := store.Reserve(ctx, "key-1", "hash-b"); !errors.Is(err, domain.ErrIdempotencyConflict) {
		t.Fatalf("expected ErrIdempotencyConflict, got %v", err)
	}

	if err := store.Complete(ctx, "key-1", []byte(`{"id":"txn-1"}`)); err != nil {
		t.Fatalf("complete: %v", err)
	}

	res, err = store.Reserve(ctx, "key-1", "hash-a")
	if err != nil {
		t.Fatalf("reserve after complete: %v", err)
	}
	if !res.Replayed || string(res.Result) != `{"id":"txn-1"}` {
		t.Errorf("expected replay with stored result, got %+v", res)
	}

	// A completed key still rejects a different payload.
	if _, err := store.Reserve(ctx, "key-1", "hash-b"); !errors.Is(err, domain.ErrIdempotencyConflict) {
		t.Fatalf("expected ErrIdempotencyConflict, got %v", err)
	}
}

func TestReserveLeaseExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := memory.NewStore(clock)

	if _, err := store.Reserve(ctx, "key-1", "hash-a"); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	// Within the lease the key is held.
	clock.Advance(usecase.IdempotencyLease / 2)
	if _, err := store.Reserve(ctx, "key-1", "hash-a"); !errors.Is(err, domain.ErrIdempotencyInProgress) {
		t.Fatalf("expected ErrIdempotencyInProgress, got %v", err)
	}

	// An abandoned reservation becomes reclaimable after its lease.
	clock.Advance(usecase.IdempotencyLease)
	res, err := store.Reserve(ctx, "key-1", "hash-b")
	if err != nil {
		t.Fatalf("reserve after lease expiry: %v", err)
	}
	if res.Replayed {
		t.Error("reclaimed reservation must not be a replay")
	}
}

func TestReleaseFreesPendingOnly(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(newFakeClock())

	if _, err := store.Reserve(ctx, "key-1", "hash-a"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.Release(ctx, "key-1"); err != nil {
		t.Fatalf("release: %v", err)
	}

	// Released key is immediately reusable, with any payload.
	if _, err := store.Reserve(ctx, "key-1", "hash-b"); err != nil {
		t.Fatalf("reserve after release: %v", err)
	}

	if err := store.Complete(ctx, "key-1", []byte("done")); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := store.Release(ctx, "key-1"); err != nil {
		t.Fatalf("release completed: %v", err)
	}

	// Completed records survive Release.
	res, err := store.Reserve(ctx, "key-1", "hash-b")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !res.Replayed {
		t.Error("expected completed record to survive release")
	}
}

func TestCompletedRecordExpiresAfterRetention(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := memory.NewStore(clock)

	if _, err := store.Reserve(ctx, "key-1", "hash-a"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.Complete(ctx, "key-1", []byte("done")); err != nil {
		t.Fatalf("complete: %v", err)
	}

	clock.Advance(usecase.IdempotencyRetention + time.Minute)

	res, err := store.Reserve(ctx, "key-1", "hash-b")
	if err != nil {
		t.Fatalf("reserve after retention: %v", err)
	}
	if res.Replayed {
		t.Error("expected a fresh reservation once retention lapsed")
	}
}
