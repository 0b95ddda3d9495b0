package usecase

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/tallyhq/tally/internal/domain"
)

// BalanceUseCase computes account balances, either from the materialized
// balance store (fast path) or by replaying the journal (audit path). The
// two must always agree; the reconciliation engine checks that they do.
type BalanceUseCase struct {
	accountRepo AccountRepository
	entryRepo   EntryRepository
}

// NewBalanceUseCase creates a new BalanceUseCase.
func NewBalanceUseCase(accountRepo AccountRepository, entryRepo EntryRepository) *BalanceUseCase {
	return &BalanceUseCase{
		accountRepo: accountRepo,
		entryRepo:   entryRepo,
	}
}

// CurrentBalance returns the materialized balance.
func (uc *BalanceUseCase) CurrentBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	account, err := uc.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// BalanceAsOf replays entries up to the cutoff in journal order, summing
// signed amounts per the account's normal balance side.
func (uc *BalanceUseCase) BalanceAsOf(ctx context.Context, accountID string, cutoff ReplayCutoff) (decimal.Decimal, error) {
	account, err := uc.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}

	debits, credits, err := uc.entryRepo.SumByDirection(ctx, accountID, cutoff)
	if err != nil {
		return decimal.Zero, err
	}

	if account.NormalSide() == domain.SideDebit {
		return debits.Sub(credits), nil
	}
	return credits.Sub(debits), nil
}

// FullReplayBalance recomputes the balance from the entire journal.
// It must equal CurrentBalance at all times.
func (uc *BalanceUseCase) FullReplayBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return uc.BalanceAsOf(ctx, accountID, ReplayCutoff{})
}
