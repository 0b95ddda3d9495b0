package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallyhq/tally/internal/domain"
)

// ReportStatus is the per-account outcome of a reconciliation run.
type ReportStatus string

const (
	ReportStatusClean    ReportStatus = "clean"
	ReportStatusMismatch ReportStatus = "mismatch"
)

// AccountReport compares the journal replay against the materialized
// balance for one account. Expected is the replayed value, Actual the
// materialized one.
type AccountReport struct {
	AccountID string
	Expected  decimal.Decimal
	Actual    decimal.Decimal
	Delta     decimal.Decimal
	Status    ReportStatus
	CheckedAt time.Time
}

// ReconciliationReport is the outcome of one run.
type ReconciliationReport struct {
	Accounts      []*AccountReport
	Discrepancies int
	CheckedAt     time.Time
}

// ReconcileScope selects what to reconcile. Zero value means all accounts.
type ReconcileScope struct {
	AccountID string
}

// ReconciliationUseCase periodically replays the journal and compares it
// against materialized balances. It only reads and reports: correction
// requires an explicit adjustment transaction through the posting path,
// so repeated runs on a clean ledger are side-effect free.
type ReconciliationUseCase struct {
	accountRepo AccountRepository
	balances    *BalanceUseCase
	ledgerRepo  LedgerRepository
	alerts      AlertSink
	clock       Clock
}

// NewReconciliationUseCase creates a new ReconciliationUseCase.
func NewReconciliationUseCase(
	accountRepo AccountRepository,
	balances *BalanceUseCase,
	ledgerRepo LedgerRepository,
	alerts AlertSink,
	clock Clock,
) *ReconciliationUseCase {
	return &ReconciliationUseCase{
		accountRepo: accountRepo,
		balances:    balances,
		ledgerRepo:  ledgerRepo,
		alerts:      alerts,
		clock:       clock,
	}
}

// Reconcile checks the in-scope accounts. Discrepancies are recorded in
// the report and routed to the alert sink; the ledger itself is never
// touched.
func (uc *ReconciliationUseCase) Reconcile(ctx context.Context, scope ReconcileScope) (*ReconciliationReport, error) {
	var accounts []*domain.Account

	if scope.AccountID != "" {
		account, err := uc.accountRepo.GetByID(ctx, scope.AccountID)
		if err != nil {
			return nil, err
		}
		accounts = []*domain.Account{account}
	} else {
		limit, offset := domain.ValidatePagination(1000, 0)
		for {
			page, err := uc.accountRepo.List(ctx, limit, offset)
			if err != nil {
				return nil, err
			}
			accounts = append(accounts, page...)
			if len(page) < limit {
				break
			}
			offset += limit
		}
	}

	report := &ReconciliationReport{
		Accounts:  make([]*AccountReport, 0, len(accounts)),
		CheckedAt: uc.clock.Now(),
	}

	for _, account := range accounts {
		result, err := uc.reconcileAccount(ctx, account)
		if err != nil {
			return nil, fmt.Errorf("reconcile account %s: %w", account.ID, err)
		}

		report.Accounts = append(report.Accounts, result)

		if result.Status == ReportStatusMismatch {
			report.Discrepancies++

			// Alerting is best-effort; the report is the durable record.
			_ = uc.alerts.Notify(ctx, Discrepancy{
				AccountID:  account.ID,
				Expected:   result.Expected,
				Actual:     result.Actual,
				Delta:      result.Delta,
				DetectedAt: result.CheckedAt,
			})
		}
	}

	return report, nil
}

func (uc *ReconciliationUseCase) reconcileAccount(ctx context.Context, account *domain.Account) (*AccountReport, error) {
	expected, err := uc.balances.FullReplayBalance(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	actual, err := uc.balances.CurrentBalance(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	result := &AccountReport{
		AccountID: account.ID,
		Expected:  expected,
		Actual:    actual,
		Delta:     actual.Sub(expected),
		Status:    ReportStatusClean,
		CheckedAt: uc.clock.Now(),
	}
	if !expected.Equal(actual) {
		result.Status = ReportStatusMismatch
	}

	return result, nil
}

// CheckLedgerConsistency verifies the journal-wide double-entry invariant:
// for every currency, total debits equal total credits.
func (uc *ReconciliationUseCase) CheckLedgerConsistency(ctx context.Context) error {
	totals, err := uc.ledgerRepo.TrialBalance(ctx)
	if err != nil {
		return err
	}

	for _, t := range totals {
		if !t.Debits.Equal(t.Credits) {
			return fmt.Errorf(
				"ledger inconsistency in %s: debits=%s credits=%s difference=%s",
				t.Currency, t.Debits, t.Credits, t.Debits.Sub(t.Credits),
			)
		}
	}

	return nil
}
