package usecase

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/tallyhq/tally/internal/domain"
)

// SimplePostInput is a one-call credit or debit paired against a
// counterparty account, typically an external/world account.
type SimplePostInput struct {
	IdempotencyKey string
	AccountID      string
	CounterpartyID string
	Amount         decimal.Decimal
	Currency       string
	ReasonCode     string
	Metadata       map[string]any
}

// TransferInput is a one-call two-account transfer.
type TransferInput struct {
	IdempotencyKey string
	FromAccountID  string
	ToAccountID    string
	Amount         decimal.Decimal
	Currency       string
	ReasonCode     string
	Metadata       map[string]any
}

// Credit expands a one-sided credit into a balanced pair: a credit entry
// on the target account and a debit entry on the counterparty. Value is
// conserved; both entries go through the full posting path.
func (uc *PostingUseCase) Credit(ctx context.Context, input SimplePostInput) (*domain.Transaction, error) {
	return uc.Post(ctx, PostTransactionInput{
		IdempotencyKey: input.IdempotencyKey,
		Type:           domain.TransactionTypeCredit,
		ReasonCode:     input.ReasonCode,
		Metadata:       input.Metadata,
		Entries: []PostEntryInput{
			{AccountID: input.CounterpartyID, Direction: domain.DirectionDebit, Amount: input.Amount, Currency: input.Currency},
			{AccountID: input.AccountID, Direction: domain.DirectionCredit, Amount: input.Amount, Currency: input.Currency},
		},
	})
}

// Debit is the mirror of Credit: a debit entry on the target account and
// a credit entry on the counterparty.
func (uc *PostingUseCase) Debit(ctx context.Context, input SimplePostInput) (*domain.Transaction, error) {
	return uc.Post(ctx, PostTransactionInput{
		IdempotencyKey: input.IdempotencyKey,
		Type:           domain.TransactionTypeDebit,
		ReasonCode:     input.ReasonCode,
		Metadata:       input.Metadata,
		Entries: []PostEntryInput{
			{AccountID: input.AccountID, Direction: domain.DirectionDebit, Amount: input.Amount, Currency: input.Currency},
			{AccountID: input.CounterpartyID, Direction: domain.DirectionCredit, Amount: input.Amount, Currency: input.Currency},
		},
	})
}

// Transfer moves value between two accounts: a debit entry on the
// destination and a credit entry on the source.
func (uc *PostingUseCase) Transfer(ctx context.Context, input TransferInput) (*domain.Transaction, error) {
	return uc.Post(ctx, PostTransactionInput{
		IdempotencyKey: input.IdempotencyKey,
		Type:           domain.TransactionTypeTransfer,
		ReasonCode:     input.ReasonCode,
		Metadata:       input.Metadata,
		Entries: []PostEntryInput{
			{AccountID: input.ToAccountID, Direction: domain.DirectionDebit, Amount: input.Amount, Currency: input.Currency},
			{AccountID: input.FromAccountID, Direction: domain.DirectionCredit, Amount: input.Amount, Currency: input.Currency},
		},
	})
}
