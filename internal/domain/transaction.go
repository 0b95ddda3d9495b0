package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is an informational tag describing why a transaction
// exists. Invariant enforcement is type-agnostic and entry-based.
type TransactionType string

const (
	TransactionTypeCredit     TransactionType = "credit"
	TransactionTypeDebit      TransactionType = "debit"
	TransactionTypeTransfer   TransactionType = "transfer"
	TransactionTypeReversal   TransactionType = "reversal"
	TransactionTypeAdjustment TransactionType = "adjustment"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeCredit, TransactionTypeDebit, TransactionTypeTransfer,
		TransactionTypeReversal, TransactionTypeAdjustment:
		return true
	}
	return false
}

// TransactionStatus tracks the transaction lifecycle:
// pending -> posted -> (optionally) reversed. Rejected transactions are
// never persisted.
type TransactionStatus string

const (
	StatusPending  TransactionStatus = "pending"
	StatusPosted   TransactionStatus = "posted"
	StatusReversed TransactionStatus = "reversed"
)

// EntryDirection is the side of an entry.
type EntryDirection string

const (
	DirectionDebit  EntryDirection = "debit"
	DirectionCredit EntryDirection = "credit"
)

// Valid reports whether d is a known direction.
func (d EntryDirection) Valid() bool {
	return d == DirectionDebit || d == DirectionCredit
}

// Opposite returns the other side.
func (d EntryDirection) Opposite() EntryDirection {
	if d == DirectionDebit {
		return DirectionCredit
	}
	return DirectionDebit
}

// Transaction is a balanced set of entries recorded atomically.
// Once posted it is immutable; corrections happen via reversals.
type Transaction struct {
	ID             string
	IdempotencyKey string
	Type           TransactionType
	Status         TransactionStatus
	Sequence       int64
	ReasonCode     string
	Metadata       map[string]any
	ReversalOf     *string
	ReversedBy     *string
	Entries        []*Entry
	CreatedAt      time.Time
}

// Entry is a single debit or credit line within a transaction. The
// balance-before/after snapshot and account version are recorded at
// posting time so the journal alone can prove how a balance evolved.
type Entry struct {
	ID             string
	TransactionID  string
	AccountID      string
	Direction      EntryDirection
	Amount         decimal.Decimal
	Currency       string
	Position       int
	Sequence       int64
	BalanceBefore  decimal.Decimal
	BalanceAfter   decimal.Decimal
	AccountVersion int64
	CreatedAt      time.Time
}

// ValidateEntries checks structural validity of a proposed entry set:
// non-empty, positive amounts, known directions, currency present.
func ValidateEntries(entries []*Entry) error {
	if len(entries) == 0 {
		return ErrNoEntries
	}
	for i, e := range entries {
		if !e.Direction.Valid() {
			return fmt.Errorf("%w: entry %d", ErrInvalidDirection, i)
		}
		if e.Amount.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("%w: entry %d", ErrInvalidAmount, i)
		}
		if e.Currency == "" {
			return fmt.Errorf("%w: entry %d", ErrMissingCurrency, i)
		}
		if e.AccountID == "" {
			return fmt.Errorf("%w: entry %d has no account", ErrAccountNotFound, i)
		}
	}
	return nil
}

// CheckBalanced verifies the balance invariant: for every currency present
// in the entry set, the sum of debit amounts equals the sum of credit
// amounts. Balance is required independently per currency; conversion
// between currencies is out of scope.
func CheckBalanced(entries []*Entry) error {
	debits := map[string]decimal.Decimal{}
	credits := map[string]decimal.Decimal{}

	for _, e := range entries {
		if e.Direction == DirectionDebit {
			debits[e.Currency] = debits[e.Currency].Add(e.Amount)
		} else {
			credits[e.Currency] = credits[e.Currency].Add(e.Amount)
		}
	}

	for currency := range debits {
		if !debits[currency].Equal(credits[currency]) {
			return fmt.Errorf("%w: %s debits=%s credits=%s",
				ErrUnbalancedEntries, currency, debits[currency], credits[currency])
		}
	}
	for currency := range credits {
		if _, ok := debits[currency]; !ok && !credits[currency].IsZero() {
			return fmt.Errorf("%w: %s debits=0 credits=%s",
				ErrUnbalancedEntries, currency, credits[currency])
		}
	}

	return nil
}

// ReversalEntries returns compensating entries for the transaction: the
// original entries with debit/credit directions swapped. The originals are
// never touched.
func (t *Transaction) ReversalEntries() []*Entry {
	reversed := make([]*Entry, 0, len(t.Entries))
	for i, e := range t.Entries {
		reversed = append(reversed, &Entry{
			AccountID: e.AccountID,
			Direction: e.Direction.Opposite(),
			Amount:    e.Amount,
			Currency:  e.Currency,
			Position:  i,
		})
	}
	return reversed
}
