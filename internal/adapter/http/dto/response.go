package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallyhq/tally/internal/domain"
	"github.com/tallyhq/tally/internal/usecase"
)

// AccountResponse represents an account in API responses.
type AccountResponse struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Type          string          `json:"type"`
	Currency      string          `json:"currency"`
	Balance       decimal.Decimal `json:"balance"`
	Version       int64           `json:"version"`
	AllowNegative bool            `json:"allow_negative"`
	Active        bool            `json:"active"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// AccountFromDomain converts domain account to response.
func AccountFromDomain(a *domain.Account) *AccountResponse {
	return &AccountResponse{
		ID:            a.ID,
		Name:          a.Name,
		Type:          string(a.Type),
		Currency:      a.Currency,
		Balance:       a.Balance,
		Version:       a.Version,
		AllowNegative: a.AllowNegative,
		Active:        a.Active,
		Metadata:      a.Metadata,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

// AccountsFromDomain converts domain accounts to responses.
func AccountsFromDomain(accounts []*domain.Account) []*AccountResponse {
	result := make([]*AccountResponse, len(accounts))
	for i, a := range accounts {
		result[i] = AccountFromDomain(a)
	}
	return result
}

// ListAccountsResponse wraps an account listing.
type ListAccountsResponse struct {
	Accounts []*AccountResponse `json:"accounts"`
	Total    int64              `json:"total"`
}

// TransactionResponse represents a transaction in API responses.
type TransactionResponse struct {
	ID             string           `json:"id"`
	IdempotencyKey string           `json:"idempotency_key"`
	Type           string           `json:"type"`
	Status         string           `json:"status"`
	Sequence       int64            `json:"sequence"`
	ReasonCode     string           `json:"reason_code,omitempty"`
	Metadata       map[string]any   `json:"metadata,omitempty"`
	ReversalOf     *string          `json:"reversal_of,omitempty"`
	ReversedBy     *string          `json:"reversed_by,omitempty"`
	Entries        []*EntryResponse `json:"entries"`
	CreatedAt      time.Time        `json:"created_at"`
}

// TransactionFromDomain converts domain transaction to response.
func TransactionFromDomain(t *domain.Transaction) *TransactionResponse {
	return &TransactionResponse{
		ID:             t.ID,
		IdempotencyKey: t.IdempotencyKey,
		Type:           string(t.Type),
		Status:         string(t.Status),
		Sequence:       t.Sequence,
		ReasonCode:     t.ReasonCode,
		Metadata:       t.Metadata,
		ReversalOf:     t.ReversalOf,
		ReversedBy:     t.ReversedBy,
		Entries:        EntriesFromDomain(t.Entries),
		CreatedAt:      t.CreatedAt,
	}
}

// TransactionsFromDomain converts domain transactions to responses.
func TransactionsFromDomain(transactions []*domain.Transaction) []*TransactionResponse {
	result := make([]*TransactionResponse, len(transactions))
	for i, t := range transactions {
		result[i] = TransactionFromDomain(t)
	}
	return result
}

// HistoryResponse is one page of an account's transaction history.
type HistoryResponse struct {
	Transactions  []*TransactionResponse `json:"transactions"`
	NextPageToken string                 `json:"next_page_token,omitempty"`
}

// EntryResponse represents a journal entry in API responses.
type EntryResponse struct {
	ID             string          `json:"id"`
	TransactionID  string          `json:"transaction_id"`
	AccountID      string          `json:"account_id"`
	Direction      string          `json:"direction"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Position       int             `json:"position"`
	Sequence       int64           `json:"sequence"`
	BalanceBefore  decimal.Decimal `json:"balance_before"`
	BalanceAfter   decimal.Decimal `json:"balance_after"`
	AccountVersion int64           `json:"account_version"`
	CreatedAt      time.Time       `json:"created_at"`
}

// EntryFromDomain converts domain entry to response.
func EntryFromDomain(e *domain.Entry) *EntryResponse {
	return &EntryResponse{
		ID:             e.ID,
		TransactionID:  e.TransactionID,
		AccountID:      e.AccountID,
		Direction:      string(e.Direction),
		Amount:         e.Amount,
		Currency:       e.Currency,
		Position:       e.Position,
		Sequence:       e.Sequence,
		BalanceBefore:  e.BalanceBefore,
		BalanceAfter:   e.BalanceAfter,
		AccountVersion: e.AccountVersion,
		CreatedAt:      e.CreatedAt,
	}
}

// EntriesFromDomain converts domain entries to responses.
func EntriesFromDomain(entries []*domain.Entry) []*EntryResponse {
	result := make([]*EntryResponse, len(entries))
	for i, e := range entries {
		result[i] = EntryFromDomain(e)
	}
	return result
}

// BalanceResponse represents an account balance in API responses.
type BalanceResponse struct {
	AccountID string          `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
	AsOf      string          `json:"as_of,omitempty"`
}

// ReconciliationAccountResponse is one account's reconciliation outcome.
type ReconciliationAccountResponse struct {
	AccountID string          `json:"account_id"`
	Expected  decimal.Decimal `json:"expected"`
	Actual    decimal.Decimal `json:"actual"`
	Delta     decimal.Decimal `json:"delta"`
	Status    string          `json:"status"`
	CheckedAt time.Time       `json:"checked_at"`
}

// ReconciliationResponse represents a reconciliation run.
type ReconciliationResponse struct {
	Accounts      []*ReconciliationAccountResponse `json:"accounts"`
	Discrepancies int                              `json:"discrepancies"`
	CheckedAt     time.Time                        `json:"checked_at"`
}

// ReconciliationFromUseCase converts a reconciliation report to a response.
func ReconciliationFromUseCase(report *usecase.ReconciliationReport) *ReconciliationResponse {
	accounts := make([]*ReconciliationAccountResponse, len(report.Accounts))
	for i, a := range report.Accounts {
		accounts[i] = &ReconciliationAccountResponse{
			AccountID: a.AccountID,
			Expected:  a.Expected,
			Actual:    a.Actual,
			Delta:     a.Delta,
			Status:    string(a.Status),
			CheckedAt: a.CheckedAt,
		}
	}

	return &ReconciliationResponse{
		Accounts:      accounts,
		Discrepancies: report.Discrepancies,
		CheckedAt:     report.CheckedAt,
	}
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
