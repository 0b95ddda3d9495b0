package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tallyhq/tally/internal/domain"
	"github.com/tallyhq/tally/internal/usecase"
)

// TransactionRepository implements usecase.TransactionRepository.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

const transactionColumns = `id, idempotency_key, type, status, sequence, reason_code, metadata, reversal_of, reversed_by, created_at`

// Create persists a transaction and assigns its journal sequence. The
// unique index on idempotency_key is the storage-level duplicate guard;
// a violation surfaces as domain.ErrDuplicateTransaction so the caller
// can fetch the already-recorded transaction.
func (r *TransactionRepository) Create(ctx context.Context, tx usecase.Transaction, txn *domain.Transaction) error {
	pgxTx := tx.(*Tx).PgxTx()

	metadata, err := metadataToJSON(txn.Metadata)
	if err != nil {
		return err
	}

	err = pgxTx.QueryRow(ctx, `
		INSERT INTO transactions (id, idempotency_key, type, status, reason_code, metadata, reversal_of, reversed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING sequence`,
		txn.ID,
		txn.IdempotencyKey,
		string(txn.Type),
		string(txn.Status),
		txn.ReasonCode,
		metadata,
		txn.ReversalOf,
		txn.ReversedBy,
		timeToPgTimestamptz(txn.CreatedAt),
	).Scan(&txn.Sequence)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateTransaction
	}

	return err
}

// GetByID retrieves a transaction with its entries.
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE id = $1`,
		id,
	)

	return r.scanWithEntries(ctx, row)
}

// GetByIdempotencyKey retrieves a transaction by its idempotency key.
func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE idempotency_key = $1`,
		key,
	)

	return r.scanWithEntries(ctx, row)
}

// MarkReversed flips a posted transaction to reversed. The status guard in
// the WHERE clause makes racing reversals fail instead of double-flipping.
func (r *TransactionRepository) MarkReversed(ctx context.Context, tx usecase.Transaction, id, reversedBy string) error {
	pgxTx := tx.(*Tx).PgxTx()

	tag, err := pgxTx.Exec(ctx, `
		UPDATE transactions
		SET status = $2, reversed_by = $3
		WHERE id = $1 AND status = $4`,
		id,
		string(domain.StatusReversed),
		reversedBy,
		string(domain.StatusPosted),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := pgxTx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrTransactionNotFound
		}

		return domain.ErrAlreadyReversed
	}

	return nil
}

// ListByAccount returns transactions touching the account after the given
// sequence, in sequence order.
func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID string, afterSequence int64, limit int) ([]*domain.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE sequence > $2
		  AND id IN (SELECT transaction_id FROM entries WHERE account_id = $1)
		ORDER BY sequence
		LIMIT $3`,
		accountID,
		afterSequence,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	ids := make([]string, 0, limit)
	byID := make(map[string]*domain.Transaction, limit)
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, txn)
		ids = append(ids, txn.ID)
		byID[txn.ID] = txn
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return transactions, nil
	}

	entries, err := r.entriesForTransactions(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		txn := byID[e.TransactionID]
		txn.Entries = append(txn.Entries, e)
	}

	return transactions, nil
}

func (r *TransactionRepository) scanWithEntries(ctx context.Context, row pgx.Row) (*domain.Transaction, error) {
	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}

		return nil, err
	}

	entries, err := r.entriesForTransactions(ctx, []string{txn.ID})
	if err != nil {
		return nil, err
	}
	txn.Entries = entries

	return txn, nil
}

func (r *TransactionRepository) entriesForTransactions(ctx context.Context, ids []string) ([]*domain.Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM entries
		WHERE transaction_id = ANY($1)
		ORDER BY sequence, position`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		txn       domain.Transaction
		txnType   string
		status    string
		metadata  []byte
		createdAt pgtype.Timestamptz
	)

	err := row.Scan(
		&txn.ID,
		&txn.IdempotencyKey,
		&txnType,
		&status,
		&txn.Sequence,
		&txn.ReasonCode,
		&metadata,
		&txn.ReversalOf,
		&txn.ReversedBy,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	txn.Type = domain.TransactionType(txnType)
	txn.Status = domain.TransactionStatus(status)
	txn.CreatedAt = createdAt.Time

	txn.Metadata, err = jsonToMetadata(metadata)
	if err != nil {
		return nil, err
	}

	return &txn, nil
}
