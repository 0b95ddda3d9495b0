package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tallyhq/tally/internal/adapter/http/dto"
	"github.com/tallyhq/tally/internal/usecase"
)

// TransactionHandler handles transaction-related HTTP requests.
type TransactionHandler struct {
	postingUC     *usecase.PostingUseCase
	transactionUC *usecase.TransactionUseCase
	reversalUC    *usecase.ReversalUseCase
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(
	postingUC *usecase.PostingUseCase,
	transactionUC *usecase.TransactionUseCase,
	reversalUC *usecase.ReversalUseCase,
) *TransactionHandler {
	return &TransactionHandler{
		postingUC:     postingUC,
		transactionUC: transactionUC,
		reversalUC:    reversalUC,
	}
}

// Post posts a balanced transaction.
func (h *TransactionHandler) Post(w http.ResponseWriter, r *http.Request) {
	var req dto.PostTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	txn, err := h.postingUC.Post(r.Context(), req.ToUseCaseInput())
	if err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to post transaction", err.Error())

		return
	}

	writeJSON(w, http.StatusCreated, dto.TransactionFromDomain(txn))
}

// Credit posts a one-call credit expanded into a balanced pair.
func (h *TransactionHandler) Credit(w http.ResponseWriter, r *http.Request) {
	var req dto.SimpleTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	txn, err := h.postingUC.Credit(r.Context(), req.ToUseCaseInput())
	if err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to post credit", err.Error())

		return
	}

	writeJSON(w, http.StatusCreated, dto.TransactionFromDomain(txn))
}

// Debit posts a one-call debit expanded into a balanced pair.
func (h *TransactionHandler) Debit(w http.ResponseWriter, r *http.Request) {
	var req dto.SimpleTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	txn, err := h.postingUC.Debit(r.Context(), req.ToUseCaseInput())
	if err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to post debit", err.Error())

		return
	}

	writeJSON(w, http.StatusCreated, dto.TransactionFromDomain(txn))
}

// Transfer posts a one-call two-account transfer.
func (h *TransactionHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req dto.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	txn, err := h.postingUC.Transfer(r.Context(), req.ToUseCaseInput())
	if err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to post transfer", err.Error())

		return
	}

	writeJSON(w, http.StatusCreated, dto.TransactionFromDomain(txn))
}

// Get retrieves a transaction by ID.
func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing transaction ID", "")
		return
	}

	txn, err := h.transactionUC.GetTransaction(r.Context(), id)
	if err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to get transaction", err.Error())

		return
	}

	writeJSON(w, http.StatusOK, dto.TransactionFromDomain(txn))
}

// Reverse posts a compensating transaction for a posted transaction.
func (h *TransactionHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing transaction ID", "")
		return
	}

	reversal, err := h.reversalUC.Reverse(r.Context(), id)
	if err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to reverse transaction", err.Error())

		return
	}

	writeJSON(w, http.StatusCreated, dto.TransactionFromDomain(reversal))
}

// History lists an account's transactions in journal order.
func (h *TransactionHandler) History(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "missing account ID", "")
		return
	}

	page, err := h.transactionUC.GetHistory(r.Context(), usecase.HistoryInput{
		AccountID: accountID,
		PageToken: r.URL.Query().Get("page_token"),
		PageSize:  parseIntQuery(r, "page_size", 0),
	})
	if err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to list history", err.Error())

		return
	}

	writeJSON(w, http.StatusOK, dto.HistoryResponse{
		Transactions:  dto.TransactionsFromDomain(page.Transactions),
		NextPageToken: page.NextPageToken,
	})
}
