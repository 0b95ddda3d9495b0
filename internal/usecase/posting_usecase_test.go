package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/tallyhq/tally/internal/domain"
	"github.com/tallyhq/tally/internal/usecase"
)

func TestPostBalancedTransaction(t *testing.T) {
	f := newFixture()
	f.createAccount(t, "cash", domain.AccountTypeAsset)
	f.createAccount(t, "sales", domain.AccountTypeRevenue)

	txn := f.post(t, "sale-1", debit("cash", "100.00"), credit("sales", "100.00"))

	if txn.Status != domain.StatusPosted {
		t.Errorf("expected status posted, got %s", txn.Status)
	}
	if txn.Sequence != 1 {
		t.Errorf("expected sequence 1, got %d", txn.Sequence)
	}
	if len(txn.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(txn.Entries))
	}

	first := txn.Entries[0]
	if !first.BalanceBefore.IsZero() || !first.BalanceAfter.Equal(dec("100.00")) {
		t.Errorf("expected balance 0 -> 100.00, got %s -> %s", first.BalanceBefore, first.BalanceAfter)
	}
	if first.AccountVersion != 1 {
		t.Errorf("expected account version 1, got %d", first.AccountVersion)
	}

	if got := f.balance(t, "cash"); !got.Equal(dec("100.00")) {
		t.Errorf("expected cash balance 100.00, got %s", got)
	}
	if got := f.balance(t, "sales"); !got.Equal(dec("100.00")) {
		t.Errorf("expected sales balance 100.00, got %s", got)
	}
	if got := f.store.JournalLen(); got != 2 {
		t.Errorf("expected 2 journal entries, got %d", got)
	}

	stored, err := f.transactions.GetTransaction(context.Background(), txn.ID)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if stored.IdempotencyKey != "sale-1" || len(stored.Entries) != 2 {
		t.Errorf("stored transaction does not match posted one: %+v", stored)
	}
}

func TestPostValidationFailures(t *testing.T) {
	f := newFixture()
	f.createAccount(t, "cash", domain.AccountTypeAsset)
	f.createAccount(t, "sales", domain.AccountTypeRevenue)

	tests := []struct {
		name  string
		input usecase.PostTransactionInput
		want  error
	}{
		{
			name: "missing idempotency key",
			input: usecase.PostTransactionInput{
				Type:    domain.TransactionTypeTransfer,
				Entries: []usecase.PostEntryInput{debit("cash", "10"), credit("sales", "10")},
			},
			want: domain.ErrMissingIdempotencyKey,
		},
		{
			name: "invalid transaction type",
			input: usecase.PostTransactionInput{
				IdempotencyKey: "k1",
				Type:           "barter",
				Entries:        []usecase.PostEntryInput{debit("cash", "10"), credit("sales", "10")},
			},
			want: domain.ErrInvalidTransactionType,
		},
		{
			name: "no entries",
			input: usecase.PostTransactionInput{
				IdempotencyKey: "k2",
				Type:           domain.TransactionTypeTransfer,
			},
			want: domain.ErrNoEntries,
		},
		{
			name: "unbalanced",
			input: usecase.PostTransactionInput{
				IdempotencyKey: "k3",
				Type:           domain.TransactionTypeTransfer,
				Entries:        []usecase.PostEntryInput{debit("cash", "10"), credit("sales", "9")},
			},
			want: domain.ErrUnbalancedEntries,
		},
		{
			name: "unknown currency",
			input: usecase.PostTransactionInput{
				IdempotencyKey: "k4",
				Type:           domain.TransactionTypeTransfer,
				Entries: []usecase.PostEntryInput{
					{AccountID: "cash", Direction: domain.DirectionDebit, Amount: dec("10"), Currency: "XXX"},
					{AccountID: "sales", Direction: domain.DirectionCredit, Amount: dec("10"), Currency: "XXX"},
				},
			},
			want: domain.ErrInvalidCurrency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.posting.Post(context.Background(), tt.input)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if got := f.store.JournalLen(); got != 0 {
		t.Errorf("rejected transactions must not touch the journal, found %d entries", got)
	}
}

func TestPostRejectionLeavesStateUntouched(t *testing.T) {
	f := newFixture()
	f.createAccount(t, "cash", domain.AccountTypeAsset)
	f.createAccount(t, "sales", domain.AccountTypeRevenue)

	_, err := f.posting.Post(context.Background(), usecase.PostTransactionInput{
		IdempotencyKey: "bad-sale",
		Type:           domain.TransactionTypeTransfer,
		Entries:        []usecase.PostEntryInput{debit("cash", "100.00"), credit("sales", "99.99")},
	})
	if !errors.Is(err, domain.ErrUnbalancedEntries) {
		t.Fatalf("expected ErrUnbalancedEntries, got %v", err)
	}

	if got := f.store.JournalLen(); got != 0 {
		t.Fatalf("expected empty journal, got %d entries", got)
	}
	if got := f.balance(t, "cash"); !got.IsZero() {
		t.Errorf("expected untouched cash balance, got %s", got)
	}

	// The key is not consumed by a rejection: a corrected retry succeeds.
	f.post(t, "bad-sale", debit("cash", "100.00"), credit("sales", "100.00"))
}

func TestPostInsufficientBalance(t *testing.T) {
	f := newFixture()
	f.createAccount(t, "cash", domain.AccountTypeAsset)
	f.createAccount(t, "vendor", domain.AccountTypeLiability)

	// cash holds nothing, so crediting it must fail the sign policy.
	_, err := f.posting.Post(context.Background(), usecase.PostTransactionInput{
		IdempotencyKey: "overdraw",
		Type:           domain.TransactionTypeTransfer,
		Entries:        []usecase.PostEntryInput{debit("vendor", "50.00"), credit("cash", "50.00")},
	})
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	if got := f.store.JournalLen(); got != 0 {
		t.Errorf("expected nothing persisted, got %d journal entries", got)
	}
	if got := f.balance(t, "vendor"); !got.IsZero() {
		t.Errorf("expected untouched vendor balance, got %s", got)
	}
}

func TestPostMixedEntriesAllOrNothing(t *testing.T) {
	f := newFixture()
	f.createAccount(t, "cash", domain.AccountTypeAsset)
	f.createAccount(t, "wallet", domain.AccountTypeAsset)
	f.createAccount(t, "capital", domain.AccountTypeEquity)

	f.post(t, "seed", debit("cash", "30.00"), credit("capital", "30.00"))

	// The first entry alone would be fine, but the second overdraws wallet,
	// so neither may apply.
	_, err := f.posting.Post(context.Background(), usecase.PostTransactionInput{
		IdempotencyKey: "partial",
		Type:           domain.TransactionTypeTransfer,
		Entries: []usecase.PostEntryInput{
			debit("cash", "10.00"),
			credit("wallet", "10.00"),
		},
	})
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	if got := f.balance(t, "cash"); !got.Equal(dec("30.00")) {
		t.Errorf("expected cash unchanged at 30.00, got %s", got)
	}
	if got := f.store.JournalLen(); got != 2 {
		t.Errorf("expected only the seed entries, got %d", got)
	}
}

func TestPostUnknownAccount(t *testing.T) {
	f := newFixture()
	f.createAccount(t, "cash", domain.AccountTypeAsset)

	_, err := f.posting.Post(context.Background(), usecase.PostTransactionInput{
		IdempotencyKey: "ghost-post",
		Type:           domain.TransactionTypeTransfer,
		Entries:        []usecase.PostEntryInput{debit("cash", "10"), credit("ghost", "10")},
	})
	if !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestPostInactiveAccount(t *testing.T) {
	f := newFixture()
	f.createAccount(t, "cash", domain.AccountTypeAsset)
	f.createAccount(t, "sales", domain.AccountTypeRevenue)

	if err := f.accounts.Deactivate(context.Background(), "sales"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	_, err := f.posting.Post(context.Background(), usecase.PostTransactionInput{
		IdempotencyKey: "late-sale",
		Type:           domain.TransactionTypeTransfer,
		Entries:        []usecase.PostEntryInput{debit("cash", "10"), credit("sales", "10")},
	})
	if !errors.Is(err, domain.ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
}

func TestPostCurrencyMismatch(t *testing.T) {
	f := newFixture()
	f.createAccount(t, "cash", domain.AccountTypeAsset)

	_, err := f.accounts.CreateAccount(context.Background(), usecase.CreateAccountInput{
		ID:       "euro-sales",
		Name:     "euro-sales",
		Type:     domain.AccountTypeRevenue,
		Currency: "EUR",
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	_, err = f.posting.Post(context.Background(), usecase.PostTransactionInput{
		IdempotencyKey: "cross",
		Type:           domain.TransactionTypeTransfer,
		Entries:        []usecase.PostEntryInput{debit("cash", "10"), credit("euro-sales", "10")},
	})
	if !errors.Is(err, domain.ErrCurrencyMismatch) {
		t.Fatalf("expected ErrCurrencyMismatch, got %v", err)
	}
}

func TestPostReplaySameKey(t *testing.T) {
	f := newFixture()
	f.createAccount(t, "cash", domain.AccountTypeAsset)
	f.createAccount(t, "sales", domain.AccountTypeRevenue)

	first := f.post(t, "sale-42", debit("cash", "25.00"), credit("sales", "25.00"))

	for i := 0; i < 3; i++ {
		replay := f.post(t, "sale-42", debit("cash", "25.00"), credit("sales", "25.00"))
		if replay.ID != first.ID {
			t.Fatalf("replay %d returned a different transaction: %s != %s", i, replay.ID, first.ID)
		}
	}

	if got := f.store.JournalLen(); got != 2 {
		t.Errorf("expected transaction applied once, got %d journal entries", got)
	}
	if got := f.balance(t, "cash"); !got.Equal(dec("25.00")) {
		t.Errorf("expected cash balance 25.00, got %s", got)
	}
}

func TestPostSameKeyDifferentPayload(t *testing.T) {
	f := newFixture()
	f.createAccount(t, "cash", domain.AccountTypeAsset)
	f.createAccount(t, "sales", domain.AccountTypeRevenue)

	f.post(t, "sale-7", debit("cash", "10.00"), credit("sales", "10.00"))

	_, err := f.posting.Post(context.Background(), usecase.PostTransactionInput{
		IdempotencyKey: "sale-7",
		Type:           domain.TransactionTypeTransfer,
		Entries:        []usecase.PostEntryInput{debit("cash", "11.00"), credit("sales", "11.00")},
	})
	if !errors.Is(err, domain.ErrIdempotencyConflict) {
		t.Fatalf("expected ErrIdempotencyConflict, got %v", err)
	}

	if got := f.balance(t, "cash"); !got.Equal(dec("10.00")) {
		t.Errorf("expected cash balance unchanged at 10.00, got %s", got)
	}
}

func TestConcurrentPostingsConverge(t *testing.T) {
	f := newFixture()
	f.createAccount(t, "cash", domain.AccountTypeAsset)
	f.createAccount(t, "wallet", domain.AccountTypeAsset)
	f.createAccount(t, "capital", domain.AccountTypeEquity)

	f.post(t, "seed", debit("cash", "1000.00"), credit("capital", "1000.00"))

	const workers = 50

	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.posting.Post(context.Background(), usecase.PostTransactionInput{
				IdempotencyKey: fmt.Sprintf("move-%d", i),
				Type:           domain.TransactionTypeTransfer,
				Entries:        []usecase.PostEntryInput{debit("wallet", "1.00"), credit("cash", "1.00")},
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent post failed: %v", err)
		}
	}

	if got := f.balance(t, "cash"); !got.Equal(dec("950.00")) {
		t.Errorf("expected cash balance 950.00, got %s", got)
	}
	if got := f.balance(t, "wallet"); !got.Equal(dec("50.00")) {
		t.Errorf("expected wallet balance 50.00, got %s", got)
	}

	// The materialized balances and the journal replay must agree.
	for _, id := range []string{"cash", "wallet", "capital"} {
		replayed, err := f.balances.FullReplayBalance(context.Background(), id)
		if err != nil {
			t.Fatalf("replay %s: %v", id, err)
		}
		if materialized := f.balance(t, id); !replayed.Equal(materialized) {
			t.Errorf("account %s diverged: replay %s, materialized %s", id, replayed, materialized)
		}
	}

	totals, err := f.store.Ledger().TrialBalance(context.Background())
	if err != nil {
		t.Fatalf("trial balance: %v", err)
	}
	for _, total := range totals {
		if !total.Debits.Equal(total.Credits) {
			t.Errorf("%s out of balance: debits %s, credits %s", total.Currency, total.Debits, total.Credits)
		}
	}
}

func TestConcurrentSameKey(t *testing.T) {
	f := newFixture()
	f.createAccount(t, "cash", domain.AccountTypeAsset)
	f.createAccount(t, "sales", domain.AccountTypeRevenue)

	const workers = 10

	var wg sync.WaitGroup
	type outcome struct {
		txn *domain.Transaction
		err error
	}
	results := make(chan outcome, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			txn, err := f.posting.Post(context.Background(), usecase.PostTransactionInput{
				IdempotencyKey: "dup-sale",
				Type:           domain.TransactionTypeTransfer,
				Entries:        []usecase.PostEntryInput{debit("cash", "5.00"), credit("sales", "5.00")},
			})
			results <- outcome{txn: txn, err: err}
		}()
	}
	wg.Wait()
	close(results)

	var posted []*domain.Transaction
	for r := range results {
		switch {
		case r.err == nil:
			posted = append(posted, r.txn)
		case errors.Is(r.err, domain.ErrIdempotencyInProgress):
			// Losers of the race may surface the in-flight reservation.
		default:
			t.Fatalf("unexpected error: %v", r.err)
		}
	}

	if len(posted) == 0 {
		t.Fatal("expected at least one successful post")
	}
	for _, txn := range posted {
		if txn.ID != posted[0].ID {
			t.Fatalf("successful posts diverged: %s != %s", txn.ID, posted[0].ID)
		}
	}

	if got := f.balance(t, "cash"); !got.Equal(dec("5.00")) {
		t.Errorf("expected exactly one application, cash balance is %s", got)
	}
	if got := f.store.JournalLen(); got != 2 {
		t.Errorf("expected 2 journal entries, got %d", got)
	}
}
