package handler

import (
	"net/http"

	"github.com/tallyhq/tally/internal/adapter/http/dto"
	"github.com/tallyhq/tally/internal/usecase"
)

// ReconciliationHandler handles reconciliation requests.
type ReconciliationHandler struct {
	reconciliationUC *usecase.ReconciliationUseCase
}

// NewReconciliationHandler creates a new ReconciliationHandler.
func NewReconciliationHandler(reconciliationUC *usecase.ReconciliationUseCase) *ReconciliationHandler {
	return &ReconciliationHandler{reconciliationUC: reconciliationUC}
}

// Run reconciles the whole ledger, or one account when account_id is given.
func (h *ReconciliationHandler) Run(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciliationUC.Reconcile(r.Context(), usecase.ReconcileScope{
		AccountID: r.URL.Query().Get("account_id"),
	})
	if err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to reconcile", err.Error())

		return
	}

	writeJSON(w, http.StatusOK, dto.ReconciliationFromUseCase(report))
}

// CheckConsistency verifies that total debits equal total credits per
// currency across the whole journal.
func (h *ReconciliationHandler) CheckConsistency(w http.ResponseWriter, r *http.Request) {
	if err := h.reconciliationUC.CheckLedgerConsistency(r.Context()); err != nil {
		writeJSON(w, http.StatusConflict, map[string]any{
			"status":     "inconsistent",
			"consistent": false,
			"message":    err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "consistent",
		"consistent": true,
	})
}
