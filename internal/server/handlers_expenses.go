package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/ArionMiles/autoexpense/pkg/api"
)

const msgUserIDRequired = "userId is required"

// handleListExpenses handles GET /expenses.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)
	if userID == "" {
		respondError(w, http.StatusBadRequest, msgUserIDRequired)
		return
	}

	transactions, err := s.deps.Store.ListTransactions(r.Context(), userID)
	if err != nil {
		s.logger.Error("failed to list transactions", "user_id", userID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch transactions")
		return
	}

	respondData(w, transactions, "")
}

// handleGetExpense handles GET /expenses/{id}.
func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)
	if userID == "" {
		respondError(w, http.StatusBadRequest, msgUserIDRequired)
		return
	}

	t, err := s.deps.Store.GetTransaction(r.Context(), userID, mux.Vars(r)["id"])
	if errors.Is(err, api.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Transaction not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get transaction", "user_id", userID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch transaction")
		return
	}

	respondData(w, t, "")
}

// transactionBody is the PUT payload. Pointers distinguish missing fields
// from zero values.
type transactionBody struct {
	Merchant  *string   `json:"merchant"`
	Amount    *float64  `json:"amount"`
	Currency  *string   `json:"currency"`
	Date      *string   `json:"date"`
	Category  *string   `json:"category"`
	Summary   *string   `json:"summary"`
	IsPending *bool     `json:"isPending"`
	Type      *api.Kind `json:"type"`
}

func (b transactionBody) toTransaction(id, userID string) (*api.Transaction, error) {
	var missing []string
	for _, f := range []struct {
		name string
		set  bool
	}{
		{"merchant", b.Merchant != nil},
		{"amount", b.Amount != nil},
		{"currency", b.Currency != nil},
		{"date", b.Date != nil},
		{"category", b.Category != nil},
		{"summary", b.Summary != nil},
	} {
		if !f.set {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, errors.New("missing required fields: " + strings.Join(missing, ", "))
	}

	t := &api.Transaction{
		ID:       id,
		UserID:   userID,
		Merchant: *b.Merchant,
		Amount:   *b.Amount,
		Currency: *b.Currency,
		Date:     *b.Date,
		Category: *b.Category,
		Summary:  *b.Summary,
		Type:     api.KindExpense,
	}
	if b.IsPending != nil {
		t.IsPending = *b.IsPending
	}
	if b.Type != nil {
		if !b.Type.Valid() {
			return nil, errors.New("type must be 'expense' or 'income'")
		}
		t.Type = *b.Type
	}
	return t, nil
}

// handlePutExpense handles PUT /expenses/{id}: create or replace.
func (s *Server) handlePutExpense(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)
	if userID == "" {
		respondError(w, http.StatusBadRequest, msgUserIDRequired)
		return
	}

	var body transactionBody
	if err := decodeJSON(w, r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	t, err := body.toTransaction(mux.Vars(r)["id"], userID)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, err := s.deps.Store.UpsertTransaction(r.Context(), t)
	if errors.Is(err, api.ErrConflict) {
		respondError(w, http.StatusConflict, "Transaction id belongs to another user")
		return
	}
	if err != nil {
		s.logger.Error("failed to save transaction", "user_id", userID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to save transaction")
		return
	}

	respondData(w, saved, "")
}

// handleDeleteExpense handles DELETE /expenses/{id}.
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)
	if userID == "" {
		respondError(w, http.StatusBadRequest, msgUserIDRequired)
		return
	}

	err := s.deps.Store.DeleteTransaction(r.Context(), userID, mux.Vars(r)["id"])
	if errors.Is(err, api.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Transaction not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to delete transaction", "user_id", userID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to delete transaction")
		return
	}

	respondJSON(w, http.StatusOK, envelope{Success: true, Message: "Transaction deleted"})
}
