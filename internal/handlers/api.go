package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/rumor-ml/ofximport/internal/domain"
	"github.com/rumor-ml/ofximport/internal/firestore"
	"github.com/rumor-ml/ofximport/internal/middleware"
	"github.com/rumor-ml/ofximport/internal/validate"
)

// FirestoreClient interface for dependency injection
type FirestoreClient interface {
	GetTransactions(ctx context.Context, userID string) ([]*firestore.Transaction, error)
	UpsertTransaction(ctx context.Context, txn *firestore.Transaction) error
	CreateParseSession(ctx context.Context, session *firestore.ParseSession) error
	UpdateParseSession(ctx context.Context, session *firestore.ParseSession) error
	GetParseSession(ctx context.Context, sessionID string) (*firestore.ParseSession, error)
	ListParseSessions(ctx context.Context, userID string) ([]*firestore.ParseSession, error)
}

// APIHandler handles API requests
type APIHandler struct {
	fsClient FirestoreClient
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(fsClient FirestoreClient) *APIHandler {
	return &APIHandler{fsClient: fsClient}
}

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// GetTransactions handles GET /api/transactions
func (h *APIHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	transactions, err := h.fsClient.GetTransactions(r.Context(), userID)
	if err != nil {
		http.Error(w, "Failed to fetch transactions", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(transactions); err != nil {
		log.Printf("ERROR: Failed to encode transactions for user %s: %v", userID, err)
		return
	}
}

// commitRequest is the reviewed batch posted back after an import session.
// Records may carry user edits to descriptions and categories.
type commitRequest struct {
	Transactions []firestore.Transaction `json:"transactions"`
}

type commitResponse struct {
	Committed int `json:"committed"`
}

// CommitTransactions handles POST /api/transactions/commit. The batch is
// validated as a whole before any upsert so a commit never lands partially
// malformed data.
func (h *APIHandler) CommitTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Transactions) == 0 {
		http.Error(w, "No transactions to commit", http.StatusBadRequest)
		return
	}

	batch := req.Transactions
	records, err := toRecords(batch)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result := validate.ValidateRecords(records)
	if !result.Valid() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		if err := json.NewEncoder(w).Encode(result); err != nil {
			log.Printf("ERROR: Failed to encode validation result for user %s: %v", userID, err)
		}
		return
	}

	for i := range batch {
		batch[i].UserID = userID
		if err := h.fsClient.UpsertTransaction(r.Context(), &batch[i]); err != nil {
			log.Printf("ERROR: Failed to upsert transaction %s for user %s: %v", batch[i].ExternalID, userID, err)
			http.Error(w, "Failed to commit transactions", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(commitResponse{Committed: len(batch)}); err != nil {
		log.Printf("ERROR: Failed to encode commit response for user %s: %v", userID, err)
	}
}

// toRecords converts a posted batch to domain records so it can be run
// through the same validation as freshly parsed statements.
func toRecords(batch []firestore.Transaction) ([]domain.TransactionRecord, error) {
	records := make([]domain.TransactionRecord, 0, len(batch))
	for i := range batch {
		record, err := batch[i].Record()
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", batch[i].ExternalID, err)
		}
		records = append(records, *record)
	}
	return records, nil
}

// ListSessions handles GET /api/parse/sessions
func (h *APIHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sessions, err := h.fsClient.ListParseSessions(r.Context(), userID)
	if err != nil {
		http.Error(w, "Failed to fetch sessions", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(sessions); err != nil {
		log.Printf("ERROR: Failed to encode sessions for user %s: %v", userID, err)
		return
	}
}
