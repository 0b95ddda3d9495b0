package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tallyhq/tally/internal/domain"
)

// AccountUseCase is the account registry: it owns account definitions and
// their lifecycle. Type, currency and sign policy are immutable after
// creation so historical entries keep their meaning.
type AccountUseCase struct {
	accountRepo AccountRepository
	idGen       IDGenerator
	clock       Clock
}

// NewAccountUseCase creates a new AccountUseCase.
func NewAccountUseCase(accountRepo AccountRepository, idGen IDGenerator, clock Clock) *AccountUseCase {
	return &AccountUseCase{
		accountRepo: accountRepo,
		idGen:       idGen,
		clock:       clock,
	}
}

// CreateAccountInput represents input for creating an account.
type CreateAccountInput struct {
	ID       string // optional; generated when empty
	Name     string
	Type     domain.AccountType
	Currency string
	// AllowNegative overrides the per-type default when set.
	AllowNegative *bool
	Metadata      map[string]any
}

// CreateAccount creates a new account with a zero balance.
func (uc *AccountUseCase) CreateAccount(ctx context.Context, input CreateAccountInput) (*domain.Account, error) {
	if err := domain.ValidateAccountName(input.Name); err != nil {
		return nil, err
	}
	if !input.Type.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidAccountType, input.Type)
	}
	if err := domain.ValidateCurrency(input.Currency); err != nil {
		return nil, err
	}
	if err := domain.ValidateMetadata(input.Metadata); err != nil {
		return nil, err
	}

	allowNegative := domain.DefaultAllowNegative(input.Type)
	if input.AllowNegative != nil {
		allowNegative = *input.AllowNegative
	}

	id := input.ID
	if id == "" {
		id = uc.idGen.Generate()
	}

	now := uc.clock.Now()

	account := &domain.Account{
		ID:            id,
		Name:          input.Name,
		Type:          input.Type,
		Currency:      strings.ToUpper(strings.TrimSpace(input.Currency)),
		Balance:       decimal.Zero,
		Version:       0,
		AllowNegative: allowNegative,
		Active:        true,
		Metadata:      input.Metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := uc.accountRepo.Create(ctx, account); err != nil {
		return nil, err
	}

	return account, nil
}

// GetAccount retrieves an account by ID.
func (uc *AccountUseCase) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return uc.accountRepo.GetByID(ctx, id)
}

// Deactivate marks an account inactive. New postings against it fail;
// historical reads are unaffected. Accounts are never deleted.
func (uc *AccountUseCase) Deactivate(ctx context.Context, id string) error {
	if _, err := uc.accountRepo.GetByID(ctx, id); err != nil {
		return err
	}
	return uc.accountRepo.SetActive(ctx, id, false, uc.clock.Now())
}

// ListAccountsInput represents input for listing accounts.
type ListAccountsInput struct {
	Limit  int
	Offset int
}

// ListAccounts lists accounts with pagination.
func (uc *AccountUseCase) ListAccounts(ctx context.Context, input ListAccountsInput) ([]*domain.Account, error) {
	limit, offset := domain.ValidatePagination(input.Limit, input.Offset)
	return uc.accountRepo.List(ctx, limit, offset)
}
