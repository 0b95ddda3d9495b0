package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tallyhq/tally/internal/adapter/http/dto"
	"github.com/tallyhq/tally/tests/testutil"
)

func TestConcurrentPostings(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	s := newStack(t)

	t.Run("distinct keys all apply", func(t *testing.T) {
		s.db.TruncateAll(ctx)
		s.seedAccounts(ctx, t)

		const workers = 20

		var wg sync.WaitGroup
		codes := make([]int, workers)

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				w := s.postTransaction(t, saleTransaction("sale-"+testutil.GenerateID(), "1.00"))
				codes[i] = w.Code
			}(i)
		}
		wg.Wait()

		for i, code := range codes {
			if code != http.StatusCreated {
				t.Fatalf("worker %d: expected 201, got %d", i, code)
			}
		}

		if got := s.balance(t, "cash"); !got.Equal(decimal.NewFromInt(workers)) {
			t.Errorf("expected cash balance %d, got %s", workers, got)
		}

		w := s.do(t, http.MethodGet, "/api/v1/reconciliation/consistency", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("consistency check: expected 200, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("same key applies once", func(t *testing.T) {
		s.db.TruncateAll(ctx)
		s.seedAccounts(ctx, t)

		const workers = 10
		key := "dup-" + testutil.GenerateID()

		var wg sync.WaitGroup
		results := make([]*dto.TransactionResponse, workers)
		codes := make([]int, workers)

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				w := s.postTransaction(t, saleTransaction(key, "5.00"))
				codes[i] = w.Code
				if w.Code == http.StatusCreated {
					var resp dto.TransactionResponse
					if err := json.Unmarshal(w.Body.Bytes(), &resp); err == nil {
						results[i] = &resp
					}
				}
			}(i)
		}
		wg.Wait()

		var winnerID string
		created := 0
		for i, code := range codes {
			switch code {
			case http.StatusCreated:
				created++
				if winnerID == "" {
					winnerID = results[i].ID
				} else if results[i].ID != winnerID {
					t.Fatalf("expected every success to return the same transaction, got %s and %s", winnerID, results[i].ID)
				}
			case http.StatusServiceUnavailable:
				// Lost the reservation race while the winner was in flight.
			default:
				t.Fatalf("worker %d: unexpected status %d", i, code)
			}
		}
		if created == 0 {
			t.Fatal("expected at least one posting to succeed")
		}

		if got := s.balance(t, "cash"); !got.Equal(decimal.RequireFromString("5.00")) {
			t.Errorf("expected cash balance 5.00 (applied once), got %s", got)
		}
	})
}
