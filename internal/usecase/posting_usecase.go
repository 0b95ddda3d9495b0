package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tallyhq/tally/internal/domain"
)

// PostingUseCase is the only path that mutates balances. It validates the
// balance and sign invariants, deduplicates by idempotency key, and applies
// a transaction's entries atomically under a sorted per-account locking
// discipline.
type PostingUseCase struct {
	txManager   TransactionManager
	accountRepo AccountRepository
	txnRepo     TransactionRepository
	entryRepo   EntryRepository
	idempotency IdempotencyStore
	retrier     Retrier
	idGen       IDGenerator
	clock       Clock
}

// NewPostingUseCase creates a new PostingUseCase.
func NewPostingUseCase(
	txManager TransactionManager,
	accountRepo AccountRepository,
	txnRepo TransactionRepository,
	entryRepo EntryRepository,
	idempotency IdempotencyStore,
	retrier Retrier,
	idGen IDGenerator,
	clock Clock,
) *PostingUseCase {
	return &PostingUseCase{
		txManager:   txManager,
		accountRepo: accountRepo,
		txnRepo:     txnRepo,
		entryRepo:   entryRepo,
		idempotency: idempotency,
		retrier:     retrier,
		idGen:       idGen,
		clock:       clock,
	}
}

// PostEntryInput is one proposed entry line.
type PostEntryInput struct {
	AccountID string
	Direction domain.EntryDirection
	Amount    decimal.Decimal
	Currency  string
}

// PostTransactionInput is a proposed transaction.
type PostTransactionInput struct {
	IdempotencyKey string
	Type           domain.TransactionType
	ReasonCode     string
	Metadata       map[string]any
	Entries        []PostEntryInput

	// reversalOf is set by ReversalUseCase only; when non-empty the
	// original transaction is marked reversed in the same commit.
	reversalOf string
}

// Post validates and atomically applies a transaction.
func (uc *PostingUseCase) Post(ctx context.Context, input PostTransactionInput) (*domain.Transaction, error) {
	entries := make([]*domain.Entry, 0, len(input.Entries))
	for i, e := range input.Entries {
		entries = append(entries, &domain.Entry{
			AccountID: e.AccountID,
			Direction: e.Direction,
			Amount:    e.Amount,
			Currency:  e.Currency,
			Position:  i,
		})
	}

	if err := uc.validate(input, entries); err != nil {
		return nil, err
	}

	hash, err := requestHash(input)
	if err != nil {
		return nil, err
	}

	reservation, err := uc.idempotency.Reserve(ctx, input.IdempotencyKey, hash)
	if err != nil {
		return nil, err
	}

	if reservation.Replayed {
		var txn domain.Transaction
		if err := json.Unmarshal(reservation.Result, &txn); err != nil {
			return nil, fmt.Errorf("corrupt idempotency record for key %s: %w", input.IdempotencyKey, err)
		}
		return &txn, nil
	}

	var posted *domain.Transaction

	err = uc.retrier.Retry(ctx, func() error {
		var postErr error
		posted, postErr = uc.postOnce(ctx, input, entries)
		return postErr
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateTransaction) {
			// The journal already holds a transaction for this key: a
			// previous attempt committed but crashed before completing the
			// reservation. Serve the committed result.
			existing, getErr := uc.txnRepo.GetByIdempotencyKey(ctx, input.IdempotencyKey)
			if getErr != nil {
				return nil, getErr
			}
			uc.complete(ctx, input.IdempotencyKey, existing)
			return existing, nil
		}

		// Rejected transactions are not persisted and do not consume the
		// key; free it so a corrected retry is possible.
		_ = uc.idempotency.Release(ctx, input.IdempotencyKey)
		return nil, err
	}

	uc.complete(ctx, input.IdempotencyKey, posted)

	return posted, nil
}

func (uc *PostingUseCase) validate(input PostTransactionInput, entries []*domain.Entry) error {
	if input.IdempotencyKey == "" {
		return domain.ErrMissingIdempotencyKey
	}
	if !input.Type.Valid() {
		return fmt.Errorf("%w: %s", domain.ErrInvalidTransactionType, input.Type)
	}
	if err := domain.ValidateMetadata(input.Metadata); err != nil {
		return err
	}
	if err := domain.ValidateEntries(entries); err != nil {
		return err
	}
	for _, e := range entries {
		if err := domain.ValidateAmount(e.Amount); err != nil {
			return err
		}
		if err := domain.ValidateCurrency(e.Currency); err != nil {
			return err
		}
	}
	return domain.CheckBalanced(entries)
}

// postOnce runs one atomic posting attempt: lock accounts in sorted order,
// check prospective balances, append to the journal and update the balance
// store, then commit. Nothing is visible unless everything commits.
func (uc *PostingUseCase) postOnce(ctx context.Context, input PostTransactionInput, proposed []*domain.Entry) (*domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	accountIDs := collectUniqueAccountIDs(proposed)
	sort.Strings(accountIDs)

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	accounts, err := uc.accountRepo.GetByIDsForUpdate(ctx, tx, accountIDs)
	if err != nil {
		return nil, err
	}
	if len(accounts) != len(accountIDs) {
		return nil, domain.ErrAccountNotFound
	}

	accountMap := make(map[string]*domain.Account, len(accounts))
	for _, a := range accounts {
		accountMap[a.ID] = a
	}

	for _, e := range proposed {
		account := accountMap[e.AccountID]
		if !account.Active {
			return nil, fmt.Errorf("%w: %s", domain.ErrAccountInactive, account.ID)
		}
		if account.Currency != e.Currency {
			return nil, fmt.Errorf("%w: account %s holds %s", domain.ErrCurrencyMismatch, account.ID, account.Currency)
		}
	}

	// Prospective balances for every touched account; the whole
	// transaction aborts if any account would violate its sign policy.
	prospective := make(map[string]decimal.Decimal, len(accounts))
	for _, a := range accounts {
		prospective[a.ID] = a.Balance
	}
	for _, e := range proposed {
		account := accountMap[e.AccountID]
		prospective[e.AccountID] = prospective[e.AccountID].Add(account.SignedDelta(e.Direction, e.Amount))
	}
	for id, balance := range prospective {
		if err := accountMap[id].ValidateBalance(balance); err != nil {
			return nil, fmt.Errorf("%w: account %s would reach %s", domain.ErrInsufficientBalance, id, balance)
		}
	}

	now := uc.clock.Now()

	txn := &domain.Transaction{
		ID:             uc.idGen.Generate(),
		IdempotencyKey: input.IdempotencyKey,
		Type:           input.Type,
		Status:         domain.StatusPosted,
		ReasonCode:     input.ReasonCode,
		Metadata:       input.Metadata,
		CreatedAt:      now,
	}
	if input.reversalOf != "" {
		reversalOf := input.reversalOf
		txn.ReversalOf = &reversalOf
	}

	if err := uc.txnRepo.Create(ctx, tx, txn); err != nil {
		return nil, err
	}

	if input.reversalOf != "" {
		if err := uc.txnRepo.MarkReversed(ctx, tx, input.reversalOf, txn.ID); err != nil {
			return nil, err
		}
	}

	running := make(map[string]decimal.Decimal, len(accounts))
	versions := make(map[string]int64, len(accounts))
	for _, a := range accounts {
		running[a.ID] = a.Balance
		versions[a.ID] = a.Version
	}

	for _, e := range proposed {
		account := accountMap[e.AccountID]
		before := running[e.AccountID]
		after := before.Add(account.SignedDelta(e.Direction, e.Amount))

		entry := &domain.Entry{
			ID:             uc.idGen.Generate(),
			TransactionID:  txn.ID,
			AccountID:      e.AccountID,
			Direction:      e.Direction,
			Amount:         e.Amount,
			Currency:       e.Currency,
			Position:       e.Position,
			Sequence:       txn.Sequence,
			BalanceBefore:  before,
			BalanceAfter:   after,
			AccountVersion: versions[e.AccountID] + 1,
			CreatedAt:      now,
		}
		if err := uc.entryRepo.Create(ctx, tx, entry); err != nil {
			return nil, err
		}

		running[e.AccountID] = after
		versions[e.AccountID]++
		txn.Entries = append(txn.Entries, entry)
	}

	for _, id := range accountIDs {
		if err := uc.accountRepo.UpdateBalance(ctx, tx, id, running[id], versions[id], now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return txn, nil
}

// complete stores the posted transaction against the reservation. Failure
// is tolerated: the unique idempotency key in the journal backstops
// deduplication even if the cached result is lost.
func (uc *PostingUseCase) complete(ctx context.Context, key string, txn *domain.Transaction) {
	result, err := json.Marshal(txn)
	if err != nil {
		return
	}
	_ = uc.idempotency.Complete(ctx, key, result)
}

func collectUniqueAccountIDs(entries []*domain.Entry) []string {
	seen := make(map[string]bool)

	var ids []string
	for _, e := range entries {
		if !seen[e.AccountID] {
			seen[e.AccountID] = true
			ids = append(ids, e.AccountID)
		}
	}

	return ids
}

// requestHash fingerprints the request payload so a reused idempotency key
// with a different payload is rejected instead of silently replayed.
func requestHash(input PostTransactionInput) (string, error) {
	canonical := struct {
		Type       domain.TransactionType `json:"type"`
		ReasonCode string                 `json:"reason_code"`
		Metadata   map[string]any         `json:"metadata,omitempty"`
		ReversalOf string                 `json:"reversal_of,omitempty"`
		Entries    []PostEntryInput       `json:"entries"`
	}{
		Type:       input.Type,
		ReasonCode: input.ReasonCode,
		Metadata:   input.Metadata,
		ReversalOf: input.reversalOf,
		Entries:    input.Entries,
	}

	// encoding/json sorts map keys, so the digest is deterministic.
	data, err := json.Marshal(canonical)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:]), nil
}
