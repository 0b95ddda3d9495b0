package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tallyhq/tally/internal/adapter/http/dto"
	"github.com/tallyhq/tally/internal/usecase"
)

// BalanceHandler handles balance queries.
type BalanceHandler struct {
	balanceUC *usecase.BalanceUseCase
	entryRepo usecase.EntryRepository
}

// NewBalanceHandler creates a new BalanceHandler.
func NewBalanceHandler(balanceUC *usecase.BalanceUseCase, entryRepo usecase.EntryRepository) *BalanceHandler {
	return &BalanceHandler{
		balanceUC: balanceUC,
		entryRepo: entryRepo,
	}
}

// Get returns the account balance. With as_of_sequence or as_of_time the
// balance is replayed from the journal up to that point; otherwise the
// materialized balance is served.
func (h *BalanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "missing account ID", "")
		return
	}

	cutoff, asOf, err := parseCutoff(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid as-of parameter", err.Error())
		return
	}

	var balance = dto.BalanceResponse{AccountID: accountID, AsOf: asOf}
	if cutoff == nil {
		balance.Balance, err = h.balanceUC.CurrentBalance(r.Context(), accountID)
	} else {
		balance.Balance, err = h.balanceUC.BalanceAsOf(r.Context(), accountID, *cutoff)
	}
	if err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to get balance", err.Error())

		return
	}

	writeJSON(w, http.StatusOK, balance)
}

// ListEntries lists the account's journal entries.
func (h *BalanceHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "missing account ID", "")
		return
	}

	limit := parseIntQuery(r, "limit", 20)
	offset := parseIntQuery(r, "offset", 0)

	entries, err := h.entryRepo.GetByAccount(r.Context(), accountID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list entries", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.EntriesFromDomain(entries))
}

func parseCutoff(r *http.Request) (*usecase.ReplayCutoff, string, error) {
	if raw := r.URL.Query().Get("as_of_sequence"); raw != "" {
		seq, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, "", err
		}
		return &usecase.ReplayCutoff{Sequence: &seq}, raw, nil
	}

	if raw := r.URL.Query().Get("as_of_time"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, "", err
		}
		return &usecase.ReplayCutoff{Time: &ts}, raw, nil
	}

	return nil, "", nil
}
