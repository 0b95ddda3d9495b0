package usecase_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallyhq/tally/internal/adapter/repository/memory"
	"github.com/tallyhq/tally/internal/domain"
	"github.com/tallyhq/tally/internal/usecase"
)

// fakeClock is a settable time source shared by the fixture.
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

// seqIDGen generates deterministic sequential IDs.
type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%06d", g.n)
}

// passRetrier runs the operation exactly once. The in-memory store
// serializes writers, so transient conflicts cannot occur.
type passRetrier struct{}

func (passRetrier) Retry(ctx context.Context, operation func() error) error {
	return operation()
}

// recordingSink captures reconciliation discrepancies.
type recordingSink struct {
	mu    sync.Mutex
	calls []usecase.Discrepancy
}

func (s *recordingSink) Notify(ctx context.Context, d usecase.Discrepancy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, d)
	return nil
}

func (s *recordingSink) Calls() []usecase.Discrepancy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]usecase.Discrepancy(nil), s.calls...)
}

// fixture wires every use case against the in-memory store.
type fixture struct {
	store  *memory.Store
	clock  *fakeClock
	alerts *recordingSink

	accounts       *usecase.AccountUseCase
	posting        *usecase.PostingUseCase
	transactions   *usecase.TransactionUseCase
	balances       *usecase.BalanceUseCase
	reversals      *usecase.ReversalUseCase
	reconciliation *usecase.ReconciliationUseCase
}

func newFixture() *fixture {
	clock := newFakeClock()
	store := memory.NewStore(clock)
	idGen := &seqIDGen{}
	alerts := &recordingSink{}

	posting := usecase.NewPostingUseCase(
		store, store.Accounts(), store.Transactions(), store.Entries(),
		store, passRetrier{}, idGen, clock,
	)
	balances := usecase.NewBalanceUseCase(store.Accounts(), store.Entries())

	return &fixture{
		store:          store,
		clock:          clock,
		alerts:         alerts,
		accounts:       usecase.NewAccountUseCase(store.Accounts(), idGen, clock),
		posting:        posting,
		transactions:   usecase.NewTransactionUseCase(store.Transactions(), store.Accounts()),
		balances:       balances,
		reversals:      usecase.NewReversalUseCase(store.Transactions(), posting),
		reconciliation: usecase.NewReconciliationUseCase(store.Accounts(), balances, store.Ledger(), alerts, clock),
	}
}

func (f *fixture) createAccount(t *testing.T, id string, accountType domain.AccountType) *domain.Account {
	t.Helper()

	account, err := f.accounts.CreateAccount(context.Background(), usecase.CreateAccountInput{
		ID:       id,
		Name:     id,
		Type:     accountType,
		Currency: "USD",
	})
	if err != nil {
		t.Fatalf("create account %s: %v", id, err)
	}
	return account
}

func (f *fixture) post(t *testing.T, key string, entries ...usecase.PostEntryInput) *domain.Transaction {
	t.Helper()

	txn, err := f.posting.Post(context.Background(), usecase.PostTransactionInput{
		IdempotencyKey: key,
		Type:           domain.TransactionTypeTransfer,
		Entries:        entries,
	})
	if err != nil {
		t.Fatalf("post %s: %v", key, err)
	}
	return txn
}

func (f *fixture) balance(t *testing.T, accountID string) decimal.Decimal {
	t.Helper()

	balance, err := f.balances.CurrentBalance(context.Background(), accountID)
	if err != nil {
		t.Fatalf("balance of %s: %v", accountID, err)
	}
	return balance
}

func debit(accountID, amount string) usecase.PostEntryInput {
	return usecase.PostEntryInput{
		AccountID: accountID,
		Direction: domain.DirectionDebit,
		Amount:    dec(amount),
		Currency:  "USD",
	}
}

func credit(accountID, amount string) usecase.PostEntryInput {
	return usecase.PostEntryInput{
		AccountID: accountID,
		Direction: domain.DirectionCredit,
		Amount:    dec(amount),
		Currency:  "USD",
	}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}
