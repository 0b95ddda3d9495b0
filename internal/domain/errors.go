package domain

import "errors"

var (
	// Not-found errors
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")

	// Validation errors
	ErrDuplicateAccount       = errors.New("account identifier already exists")
	ErrInvalidAccountType     = errors.New("unsupported account type")
	ErrMissingCurrency        = errors.New("currency code is required")
	ErrAccountInactive        = errors.New("account is inactive")
	ErrNoEntries              = errors.New("transaction has no entries")
	ErrUnbalancedEntries      = errors.New("debits do not equal credits")
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrInvalidDirection       = errors.New("entry direction must be debit or credit")
	ErrInvalidTransactionType = errors.New("unsupported transaction type")
	ErrCurrencyMismatch       = errors.New("entry currency does not match account currency")
	ErrMissingIdempotencyKey  = errors.New("idempotency key is required")
	ErrInvalidPageToken       = errors.New("invalid page token")
	ErrAlreadyReversed        = errors.New("transaction already reversed")
	ErrNotPosted              = errors.New("transaction is not posted")

	// Posting errors
	ErrInsufficientBalance = errors.New("insufficient balance")

	// Idempotency errors
	ErrIdempotencyConflict   = errors.New("idempotency key reused with a different payload")
	ErrIdempotencyInProgress = errors.New("another request holds this idempotency key")
	ErrDuplicateTransaction  = errors.New("transaction already recorded for idempotency key")

	// Transient errors; safe to retry with the same idempotency key
	ErrConcurrencyConflict = errors.New("concurrent update conflict, retry")
)

// IsValidation reports whether err belongs to the validation family:
// malformed or semantically invalid requests that must never be retried
// without changing the request.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrDuplicateAccount,
		ErrInvalidAccountType,
		ErrMissingCurrency,
		ErrAccountInactive,
		ErrNoEntries,
		ErrUnbalancedEntries,
		ErrInvalidAmount,
		ErrInvalidDirection,
		ErrInvalidTransactionType,
		ErrCurrencyMismatch,
		ErrMissingIdempotencyKey,
		ErrInvalidPageToken,
		ErrAlreadyReversed,
		ErrNotPosted,
		ErrInvalidAccountName,
		ErrInvalidCurrency,
		ErrMetadataTooLarge,
		ErrAmountTooLarge,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
