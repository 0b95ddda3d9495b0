package usecase

import (
	"context"
	"fmt"

	"github.com/tallyhq/tally/internal/domain"
)

// ReversalUseCase issues compensating transactions. A reversal never
// mutates history: it posts a new transaction whose entries are the
// original's with directions swapped, then the original is flagged
// reversed in the same commit.
type ReversalUseCase struct {
	txnRepo TransactionRepository
	posting *PostingUseCase
}

// NewReversalUseCase creates a new ReversalUseCase.
func NewReversalUseCase(txnRepo TransactionRepository, posting *PostingUseCase) *ReversalUseCase {
	return &ReversalUseCase{
		txnRepo: txnRepo,
		posting: posting,
	}
}

// Reverse posts a compensating transaction for a posted transaction.
// The reversal goes through the normal posting path, so it obeys the
// balance and sign invariants like any other transaction.
func (uc *ReversalUseCase) Reverse(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	original, err := uc.txnRepo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	switch original.Status {
	case domain.StatusPosted:
	case domain.StatusReversed:
		return nil, fmt.Errorf("%w: %s", domain.ErrAlreadyReversed, transactionID)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrNotPosted, transactionID)
	}

	entries := original.ReversalEntries()
	inputs := make([]PostEntryInput, 0, len(entries))
	for _, e := range entries {
		inputs = append(inputs, PostEntryInput{
			AccountID: e.AccountID,
			Direction: e.Direction,
			Amount:    e.Amount,
			Currency:  e.Currency,
		})
	}

	// The derived idempotency key makes racing reversal calls converge on
	// exactly one compensating transaction.
	return uc.posting.Post(ctx, PostTransactionInput{
		IdempotencyKey: "reversal:" + original.ID,
		Type:           domain.TransactionTypeReversal,
		ReasonCode:     "reversal of " + original.ID,
		Entries:        inputs,
		reversalOf:     original.ID,
	})
}
