package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tallyhq/tally/internal/adapter/http/dto"
	"github.com/tallyhq/tally/internal/adapter/http/handler"
	"github.com/tallyhq/tally/internal/adapter/repository/memory"
	"github.com/tallyhq/tally/internal/usecase"
)

func TestNewRouter_HealthEndpointAvailable(t *testing.T) {
	router := NewRouter(newRouterConfig())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected /health to return 200, got %d", rec.Code)
	}
}

func TestNewRouter_MetricsEndpointAvailable(t *testing.T) {
	router := NewRouter(newRouterConfig())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected /metrics to return 200, got %d", rec.Code)
	}
}

func TestNewRouter_RegistersKeyRoutes(t *testing.T) {
	router := NewRouter(newRouterConfig())

	chiRoutes, ok := router.(chi.Router)
	if !ok {
		t.Fatal("router does not implement chi.Routes")
	}

	seen := map[string]bool{}
	if err := chi.Walk(chiRoutes, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		seen[method+" "+route] = true
		return nil
	}); err != nil {
		t.Fatalf("walk failed: %v", err)
	}

	expected := []string{
		"GET /health",
		"GET /ready",
		"POST /api/v1/accounts/",
		"GET /api/v1/accounts/",
		"GET /api/v1/accounts/{id}",
		"DELETE /api/v1/accounts/{id}",
		"GET /api/v1/accounts/{id}/balance",
		"GET /api/v1/accounts/{id}/entries",
		"GET /api/v1/accounts/{id}/transactions",
		"POST /api/v1/transactions/",
		"POST /api/v1/transactions/credit",
		"POST /api/v1/transactions/debit",
		"POST /api/v1/transactions/transfer",
		"GET /api/v1/transactions/{id}",
		"POST /api/v1/transactions/{id}/reverse",
		"POST /api/v1/reconciliation/run",
		"GET /api/v1/reconciliation/consistency",
	}

	for _, route := range expected {
		if !seen[route] {
			t.Fatalf("expected route %s to be registered", route)
		}
	}
}

func TestNewRouter_PostAndReadBalance(t *testing.T) {
	router := NewRouter(newRouterConfig())

	for _, payload := range []string{
		`{"id":"cash","name":"cash","type":"asset","currency":"USD"}`,
		`{"id":"sales","name":"sales","type":"revenue","currency":"USD"}`,
	} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts/", bytes.NewBufferString(payload))
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("create account: expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
	}

	posting := `{
		"idempotency_key": "sale-1",
		"type": "transfer",
		"entries": [
			{"account_id": "cash", "direction": "debit", "amount": "100.00", "currency": "USD"},
			{"account_id": "sales", "direction": "credit", "amount": "100.00", "currency": "USD"}
		]
	}`

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions/", bytes.NewBufferString(posting))
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("post transaction: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/accounts/cash/balance", nil)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get balance: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var balance dto.BalanceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &balance); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if !balance.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected balance 100, got %s", balance.Balance)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/reconciliation/consistency", nil)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("consistency check: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

type routerIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *routerIDGen) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%06d", g.n)
}

type routerRetrier struct{}

func (routerRetrier) Retry(ctx context.Context, operation func() error) error {
	return operation()
}

type noopSink struct{}

func (noopSink) Notify(ctx context.Context, d usecase.Discrepancy) error { return nil }

func newRouterConfig() RouterConfig {
	clock := usecase.SystemClock{}
	store := memory.NewStore(clock)
	idGen := &routerIDGen{}

	accountUC := usecase.NewAccountUseCase(store.Accounts(), idGen, clock)
	postingUC := usecase.NewPostingUseCase(
		store, store.Accounts(), store.Transactions(), store.Entries(),
		store, routerRetrier{}, idGen, clock,
	)
	transactionUC := usecase.NewTransactionUseCase(store.Transactions(), store.Accounts())
	balanceUC := usecase.NewBalanceUseCase(store.Accounts(), store.Entries())
	reversalUC := usecase.NewReversalUseCase(store.Transactions(), postingUC)
	reconciliationUC := usecase.NewReconciliationUseCase(store.Accounts(), balanceUC, store.Ledger(), noopSink{}, clock)

	return RouterConfig{
		AccountHandler:        handler.NewAccountHandler(accountUC),
		TransactionHandler:    handler.NewTransactionHandler(postingUC, transactionUC, reversalUC),
		BalanceHandler:        handler.NewBalanceHandler(balanceUC, store.Entries()),
		ReconciliationHandler: handler.NewReconciliationHandler(reconciliationUC),
		HealthHandler:         &handler.HealthHandler{},
		Logger:                zerolog.Nop(),
	}
}
