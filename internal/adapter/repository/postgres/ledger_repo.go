package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tallyhq/tally/internal/usecase"
)

// LedgerRepository implements usecase.LedgerRepository.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// TrialBalance sums all journal entries per currency and direction.
func (r *LedgerRepository) TrialBalance(ctx context.Context) ([]usecase.CurrencyTotals, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT
			currency,
			COALESCE(SUM(CASE WHEN direction = 'debit' THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN direction = 'credit' THEN amount ELSE 0 END), 0)
		FROM entries
		GROUP BY currency
		ORDER BY currency`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []usecase.CurrencyTotals
	for rows.Next() {
		var (
			t       usecase.CurrencyTotals
			debits  pgtype.Numeric
			credits pgtype.Numeric
		)
		if err := rows.Scan(&t.Currency, &debits, &credits); err != nil {
			return nil, err
		}
		t.Debits = numericToDecimal(debits)
		t.Credits = numericToDecimal(credits)
		totals = append(totals, t)
	}

	return totals, rows.Err()
}
