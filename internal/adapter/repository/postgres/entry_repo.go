package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tallyhq/tally/internal/domain"
	"github.com/tallyhq/tally/internal/usecase"
)

// EntryRepository implements usecase.EntryRepository.
type EntryRepository struct {
	pool *pgxpool.Pool
}

// NewEntryRepository creates a new EntryRepository.
func NewEntryRepository(pool *pgxpool.Pool) *EntryRepository {
	return &EntryRepository{pool: pool}
}

const entryColumns = `id, transaction_id, account_id, direction, amount, currency, position, sequence, balance_before, balance_after, account_version, created_at`

// Create appends a journal entry.
func (r *EntryRepository) Create(ctx context.Context, tx usecase.Transaction, entry *domain.Entry) error {
	pgxTx := tx.(*Tx).PgxTx()

	_, err := pgxTx.Exec(ctx, `
		INSERT INTO entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		entry.ID,
		entry.TransactionID,
		entry.AccountID,
		string(entry.Direction),
		decimalToNumeric(entry.Amount),
		entry.Currency,
		entry.Position,
		entry.Sequence,
		decimalToNumeric(entry.BalanceBefore),
		decimalToNumeric(entry.BalanceAfter),
		entry.AccountVersion,
		timeToPgTimestamptz(entry.CreatedAt),
	)

	return err
}

// GetByTransaction returns a transaction's entries in position order.
func (r *EntryRepository) GetByTransaction(ctx context.Context, transactionID string) ([]*domain.Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM entries
		WHERE transaction_id = $1
		ORDER BY position`,
		transactionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

// GetByAccount returns an account's entries in journal order.
func (r *EntryRepository) GetByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM entries
		WHERE account_id = $1
		ORDER BY sequence, position
		LIMIT $2 OFFSET $3`,
		accountID,
		limit,
		offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

// SumByDirection sums the account's entry amounts per direction up to the
// cutoff. A zero cutoff covers the whole journal.
func (r *EntryRepository) SumByDirection(ctx context.Context, accountID string, cutoff usecase.ReplayCutoff) (decimal.Decimal, decimal.Decimal, error) {
	maxSequence := int64(1<<63 - 1)
	if cutoff.Sequence != nil {
		maxSequence = *cutoff.Sequence
	}
	maxTime := pgtype.Timestamptz{InfinityModifier: pgtype.Infinity, Valid: true}
	if cutoff.Time != nil {
		maxTime = timeToPgTimestamptz(*cutoff.Time)
	}

	var totalDebits, totalCredits pgtype.Numeric
	err := r.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN direction = 'debit' THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN direction = 'credit' THEN amount ELSE 0 END), 0)
		FROM entries
		WHERE account_id = $1 AND sequence <= $2 AND created_at <= $3`,
		accountID,
		maxSequence,
		maxTime,
	).Scan(&totalDebits, &totalCredits)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	return numericToDecimal(totalDebits), numericToDecimal(totalCredits), nil
}

func collectEntries(rows pgx.Rows) ([]*domain.Entry, error) {
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

func scanEntry(row pgx.Row) (*domain.Entry, error) {
	var (
		entry         domain.Entry
		direction     string
		amount        pgtype.Numeric
		balanceBefore pgtype.Numeric
		balanceAfter  pgtype.Numeric
		createdAt     pgtype.Timestamptz
	)

	err := row.Scan(
		&entry.ID,
		&entry.TransactionID,
		&entry.AccountID,
		&direction,
		&amount,
		&entry.Currency,
		&entry.Position,
		&entry.Sequence,
		&balanceBefore,
		&balanceAfter,
		&entry.AccountVersion,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	entry.Direction = domain.EntryDirection(direction)
	entry.Amount = numericToDecimal(amount)
	entry.BalanceBefore = numericToDecimal(balanceBefore)
	entry.BalanceAfter = numericToDecimal(balanceAfter)
	entry.CreatedAt = createdAt.Time

	return &entry, nil
}
