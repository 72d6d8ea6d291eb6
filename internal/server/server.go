// Package server wires the import API: statement upload and parsing,
// transaction review endpoints, and the SSE progress feed.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rumor-ml/ofximport/internal/currency"
	"github.com/rumor-ml/ofximport/internal/firestore"
	"github.com/rumor-ml/ofximport/internal/handlers"
	"github.com/rumor-ml/ofximport/internal/middleware"
	"github.com/rumor-ml/ofximport/internal/streaming"
)

// Server represents the import API server
type Server struct {
	fsClient *firestore.Client
	hub      *streaming.StreamHub
	mux      *http.ServeMux
}

// Config holds server construction options
type Config struct {
	ProjectID       string
	CredentialsFile string
	// CurrencyFile optionally overrides the embedded ISO 4217 table
	CurrencyFile string
	// FallbackCurrency substitutes for unknown CURDEF codes
	FallbackCurrency string
}

// New creates a new server instance
func New(ctx context.Context, cfg Config) (*Server, error) {
	fsClient, err := firestore.NewClient(ctx, cfg.ProjectID, cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	fallback := cfg.FallbackCurrency
	if fallback == "" {
		fallback = "USD"
	}
	var currencies *currency.Set
	if cfg.CurrencyFile != "" {
		currencies, err = currency.LoadFromFile(cfg.CurrencyFile, fallback)
	} else {
		currencies, err = currency.LoadEmbedded(fallback)
	}
	if err != nil {
		fsClient.Close()
		return nil, fmt.Errorf("failed to load currency table: %w", err)
	}

	s := &Server{
		fsClient: fsClient,
		hub:      streaming.NewStreamHub(),
		mux:      http.NewServeMux(),
	}
	s.setupRoutes(currencies)

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(currencies *currency.Set) {
	// Health check (no auth required)
	s.mux.HandleFunc("/health", handlers.HealthCheck)

	apiHandler := handlers.NewAPIHandler(s.fsClient)
	parseHandler := handlers.NewParseHandlers(s.fsClient, s.hub, currencies)
	authMiddleware := middleware.NewAuthMiddleware(s.fsClient.Auth)

	protect := func(h http.HandlerFunc) http.Handler {
		return authMiddleware.RequireAuth(h)
	}

	// Transaction review
	s.mux.Handle("GET /api/transactions", protect(apiHandler.GetTransactions))
	s.mux.Handle("POST /api/transactions/commit", protect(apiHandler.CommitTransactions))

	// Import sessions
	s.mux.Handle("GET /api/parse/sessions", protect(apiHandler.ListSessions))
	s.mux.Handle("POST /api/parse/start", protect(parseHandler.StartParse))
	s.mux.Handle("GET /api/parse/{id}", protect(parseHandler.GetSession))
	s.mux.Handle("GET /api/parse/{id}/events", protect(parseHandler.StreamEvents))
	s.mux.Handle("POST /api/parse/{id}/cancel", protect(parseHandler.CancelParse))

	// Static files for the review UI (when deployed together)
	s.mux.Handle("/", http.FileServer(http.Dir("./dist")))
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return middleware.CORS(s.mux)
}

// Close closes the server resources
func (s *Server) Close() error {
	return s.fsClient.Close()
}
