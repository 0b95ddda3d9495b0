package dto

import (
	"github.com/shopspring/decimal"

	"github.com/tallyhq/tally/internal/domain"
	"github.com/tallyhq/tally/internal/usecase"
)

// CreateAccountRequest represents a request to create an account.
type CreateAccountRequest struct {
	ID            string         `json:"id,omitempty"`
	Name          string         `json:"name"`
	Type          string         `json:"type"`
	Currency      string         `json:"currency"`
	AllowNegative *bool          `json:"allow_negative,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateAccountRequest) ToUseCaseInput() usecase.CreateAccountInput {
	return usecase.CreateAccountInput{
		ID:            r.ID,
		Name:          r.Name,
		Type:          domain.AccountType(r.Type),
		Currency:      r.Currency,
		AllowNegative: r.AllowNegative,
		Metadata:      r.Metadata,
	}
}

// SimpleTransactionRequest is a one-call credit or debit against a
// counterparty account. The server expands it into a balanced entry pair.
type SimpleTransactionRequest struct {
	IdempotencyKey string          `json:"idempotency_key"`
	AccountID      string          `json:"account_id"`
	CounterpartyID string          `json:"counterparty_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	ReasonCode     string          `json:"reason_code,omitempty"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *SimpleTransactionRequest) ToUseCaseInput() usecase.SimplePostInput {
	return usecase.SimplePostInput{
		IdempotencyKey: r.IdempotencyKey,
		AccountID:      r.AccountID,
		CounterpartyID: r.CounterpartyID,
		Amount:         r.Amount,
		Currency:       r.Currency,
		ReasonCode:     r.ReasonCode,
		Metadata:       r.Metadata,
	}
}

// TransferRequest is a one-call two-account transfer.
type TransferRequest struct {
	IdempotencyKey string          `json:"idempotency_key"`
	FromAccountID  string          `json:"from_account_id"`
	ToAccountID    string          `json:"to_account_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	ReasonCode     string          `json:"reason_code,omitempty"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *TransferRequest) ToUseCaseInput() usecase.TransferInput {
	return usecase.TransferInput{
		IdempotencyKey: r.IdempotencyKey,
		FromAccountID:  r.FromAccountID,
		ToAccountID:    r.ToAccountID,
		Amount:         r.Amount,
		Currency:       r.Currency,
		ReasonCode:     r.ReasonCode,
		Metadata:       r.Metadata,
	}
}

// EntryItem represents a single entry in a posting request.
type EntryItem struct {
	AccountID string          `json:"account_id"`
	Direction string          `json:"direction"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
}

// PostTransactionRequest represents a request to post a transaction.
type PostTransactionRequest struct {
	IdempotencyKey string         `json:"idempotency_key"`
	Type           string         `json:"type"`
	ReasonCode     string         `json:"reason_code,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Entries        []EntryItem    `json:"entries"`
}

// ToUseCaseInput converts to use case input.
func (r *PostTransactionRequest) ToUseCaseInput() usecase.PostTransactionInput {
	entries := make([]usecase.PostEntryInput, len(r.Entries))
	for i, e := range r.Entries {
		entries[i] = usecase.PostEntryInput{
			AccountID: e.AccountID,
			Direction: domain.EntryDirection(e.Direction),
			Amount:    e.Amount,
			Currency:  e.Currency,
		}
	}

	return usecase.PostTransactionInput{
		IdempotencyKey: r.IdempotencyKey,
		Type:           domain.TransactionType(r.Type),
		ReasonCode:     r.ReasonCode,
		Metadata:       r.Metadata,
		Entries:        entries,
	}
}
