package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallyhq/tally/internal/domain"
)

// AccountRepository defines data access for accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	// GetByIDsForUpdate locks the given accounts for the duration of tx.
	// Callers must pass ids sorted so every transaction acquires locks in
	// the same global order.
	GetByIDsForUpdate(ctx context.Context, tx Transaction, ids []string) ([]*domain.Account, error)
	UpdateBalance(ctx context.Context, tx Transaction, id string, balance decimal.Decimal, version int64, updatedAt time.Time) error
	SetActive(ctx context.Context, id string, active bool, updatedAt time.Time) error
	List(ctx context.Context, limit, offset int) ([]*domain.Account, error)
}

// TransactionRepository defines data access for transactions.
type TransactionRepository interface {
	// Create persists the transaction and assigns its journal sequence.
	Create(ctx context.Context, tx Transaction, txn *domain.Transaction) error
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error)
	// MarkReversed flips a posted transaction to reversed and records the
	// compensating transaction's id. Fails if the transaction is not in
	// posted status.
	MarkReversed(ctx context.Context, tx Transaction, id, reversedBy string) error
	// ListByAccount returns transactions touching the account with
	// sequence greater than afterSequence, in sequence order.
	ListByAccount(ctx context.Context, accountID string, afterSequence int64, limit int) ([]*domain.Transaction, error)
}

// ReplayCutoff bounds a journal replay. The zero value replays everything.
type ReplayCutoff struct {
	Sequence *int64
	Time     *time.Time
}

// EntryRepository defines data access for the append-only entry journal.
type EntryRepository interface {
	Create(ctx context.Context, tx Transaction, entry *domain.Entry) error
	GetByTransaction(ctx context.Context, transactionID string) ([]*domain.Entry, error)
	GetByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Entry, error)
	// SumByDirection sums entry amounts per direction for an account up to
	// the cutoff, in journal order.
	SumByDirection(ctx context.Context, accountID string, cutoff ReplayCutoff) (debits, credits decimal.Decimal, err error)
}

// CurrencyTotals holds journal-wide sums for one currency.
type CurrencyTotals struct {
	Currency string
	Debits   decimal.Decimal
	Credits  decimal.Decimal
}

// LedgerRepository defines journal-wide operations.
type LedgerRepository interface {
	// TrialBalance sums all journal entries per currency and direction.
	TrialBalance(ctx context.Context) ([]CurrencyTotals, error)
}

// Transaction represents a storage transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles storage transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Retrier retries an operation on transient storage conflicts. After the
// retry budget is exhausted the operation's error surfaces wrapped as
// domain.ErrConcurrencyConflict.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Clock abstracts the time source for timestamps and lease expiry.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Reservation is the result of reserving an idempotency key.
type Reservation struct {
	// Replayed is true when the key was already completed with the same
	// payload; Result then holds the stored outcome.
	Replayed bool
	Result   []byte
}

// IdempotencyStore deduplicates transaction requests by client key.
//
// Reserve outcomes:
//   - unseen key: reservation acquired, Replayed=false
//   - key completed with the same request hash: Replayed=true with the
//     stored result, nothing is re-applied
//   - key held or completed with a different hash: domain.ErrIdempotencyConflict
//   - key held by an in-flight request with the same hash: domain.ErrIdempotencyInProgress
//
// A reservation that is never completed expires after its lease so a later
// retry is not wedged; reclaiming an expired reservation is atomic.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key, requestHash string) (*Reservation, error)
	Complete(ctx context.Context, key string, result []byte) error
	Release(ctx context.Context, key string) error
}

// Discrepancy describes a divergence between the materialized balance and
// the journal replay for one account.
type Discrepancy struct {
	AccountID  string
	Expected   decimal.Decimal
	Actual     decimal.Decimal
	Delta      decimal.Decimal
	DetectedAt time.Time
}

// AlertSink receives reconciliation discrepancies. It must never be
// invoked from the posting path.
type AlertSink interface {
	Notify(ctx context.Context, d Discrepancy) error
}
