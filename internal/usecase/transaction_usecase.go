package usecase

import (
	"context"
	"fmt"
	"strconv"

	"github.com/tallyhq/tally/internal/domain"
)

// TransactionUseCase serves transaction reads and account history.
type TransactionUseCase struct {
	txnRepo     TransactionRepository
	accountRepo AccountRepository
}

// NewTransactionUseCase creates a new TransactionUseCase.
func NewTransactionUseCase(txnRepo TransactionRepository, accountRepo AccountRepository) *TransactionUseCase {
	return &TransactionUseCase{
		txnRepo:     txnRepo,
		accountRepo: accountRepo,
	}
}

// GetTransaction retrieves a transaction with its entries.
func (uc *TransactionUseCase) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return uc.txnRepo.GetByID(ctx, id)
}

// HistoryInput represents input for listing account history.
type HistoryInput struct {
	AccountID string
	PageToken string
	PageSize  int
}

// HistoryPage is one page of an account's transaction history.
type HistoryPage struct {
	Transactions  []*domain.Transaction
	NextPageToken string
}

// GetHistory returns the account's transactions in journal sequence order.
// Pagination is stable under concurrent appends because the page token is
// the last sequence seen and sequences are monotone.
func (uc *TransactionUseCase) GetHistory(ctx context.Context, input HistoryInput) (*HistoryPage, error) {
	if _, err := uc.accountRepo.GetByID(ctx, input.AccountID); err != nil {
		return nil, err
	}

	afterSequence := int64(0)
	if input.PageToken != "" {
		parsed, err := strconv.ParseInt(input.PageToken, 10, 64)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidPageToken, input.PageToken)
		}
		afterSequence = parsed
	}

	pageSize, _ := domain.ValidatePagination(input.PageSize, 0)

	transactions, err := uc.txnRepo.ListByAccount(ctx, input.AccountID, afterSequence, pageSize)
	if err != nil {
		return nil, err
	}

	page := &HistoryPage{Transactions: transactions}
	if len(transactions) == pageSize {
		last := transactions[len(transactions)-1]
		page.NextPageToken = strconv.FormatInt(last.Sequence, 10)
	}

	return page, nil
}
