// Package integration exercises the full HTTP-to-storage stack against
// real Postgres and Redis instances. The tests skip under -short.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	adaptershttp "github.com/tallyhq/tally/internal/adapter/http"
	"github.com/tallyhq/tally/internal/adapter/http/dto"
	"github.com/tallyhq/tally/internal/adapter/http/handler"
	repo "github.com/tallyhq/tally/internal/adapter/repository/postgres"
	redisrepo "github.com/tallyhq/tally/internal/adapter/repository/redis"
	"github.com/tallyhq/tally/internal/domain"
	infraredis "github.com/tallyhq/tally/internal/infrastructure/redis"
	"github.com/tallyhq/tally/internal/usecase"
	"github.com/tallyhq/tally/tests/testutil"
)

type stack struct {
	router http.Handler
	db     *testutil.TestDB
}

func newStack(t *testing.T) *stack {
	t.Helper()

	ctx := context.Background()

	testDB := testutil.NewTestDB(t)
	t.Cleanup(testDB.Cleanup)
	testDB.TruncateAll(ctx)

	pool := testDB.Pool
	accountRepo := repo.NewAccountRepository(pool)
	transactionRepo := repo.NewTransactionRepository(pool)
	entryRepo := repo.NewEntryRepository(pool)
	ledgerRepo := repo.NewLedgerRepository(pool)
	txManager := repo.NewTxManager(pool)
	retrier := repo.NewRetrier(zerolog.Nop())
	idGen := repo.NewULIDGenerator()
	clock := usecase.SystemClock{}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	redisClient, err := infraredis.NewClient(ctx, redisURL)
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	t.Cleanup(func() { redisClient.Close() })

	idempotencyStore := redisrepo.NewIdempotencyStore(
		redisClient, usecase.IdempotencyLease, usecase.IdempotencyRetention,
	)

	accountUC := usecase.NewAccountUseCase(accountRepo, idGen, clock)
	postingUC := usecase.NewPostingUseCase(
		txManager, accountRepo, transactionRepo, entryRepo,
		idempotencyStore, retrier, idGen, clock,
	)
	transactionUC := usecase.NewTransactionUseCase(transactionRepo, accountRepo)
	balanceUC := usecase.NewBalanceUseCase(accountRepo, entryRepo)
	reversalUC := usecase.NewReversalUseCase(transactionRepo, postingUC)
	reconciliationUC := usecase.NewReconciliationUseCase(
		accountRepo, balanceUC, ledgerRepo, noopAlertSink{}, clock,
	)

	router := adaptershttp.NewRouter(adaptershttp.RouterConfig{
		AccountHandler:        handler.NewAccountHandler(accountUC),
		TransactionHandler:    handler.NewTransactionHandler(postingUC, transactionUC, reversalUC),
		BalanceHandler:        handler.NewBalanceHandler(balanceUC, entryRepo),
		ReconciliationHandler: handler.NewReconciliationHandler(reconciliationUC),
		HealthHandler:         handler.NewHealthHandler(pool, redisClient),
		Logger:                zerolog.Nop(),
	})

	return &stack{router: router, db: testDB}
}

type noopAlertSink struct{}

func (noopAlertSink) Notify(ctx context.Context, d usecase.Discrepancy) error { return nil }

func (s *stack) seedAccounts(ctx context.Context, t *testing.T) {
	t.Helper()

	s.db.CreateTestAccount(ctx, "cash", domain.AccountTypeAsset, "USD")
	s.db.CreateTestAccount(ctx, "sales", domain.AccountTypeRevenue, "USD")
}

func (s *stack) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, path, bytes.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, r)
	return w
}

func (s *stack) postTransaction(t *testing.T, req dto.PostTransactionRequest) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return s.do(t, http.MethodPost, "/api/v1/transactions/", body)
}

func (s *stack) balance(t *testing.T, accountID string) decimal.Decimal {
	t.Helper()

	w := s.do(t, http.MethodGet, "/api/v1/accounts/"+accountID+"/balance", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get balance %s: %d %s", accountID, w.Code, w.Body.String())
	}

	var resp dto.BalanceResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	return resp.Balance
}

func saleTransaction(key, amount string) dto.PostTransactionRequest {
	return dto.PostTransactionRequest{
		IdempotencyKey: key,
		Type:           "transfer",
		Entries: []dto.EntryItem{
			{AccountID: "cash", Direction: "debit", Amount: decimal.RequireFromString(amount), Currency: "USD"},
			{AccountID: "sales", Direction: "credit", Amount: decimal.RequireFromString(amount), Currency: "USD"},
		},
	}
}
