package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rumor-ml/ofximport/internal/currency"
	"github.com/rumor-ml/ofximport/internal/firestore"
	"github.com/rumor-ml/ofximport/internal/middleware"
	"github.com/rumor-ml/ofximport/internal/pipeline"
	"github.com/rumor-ml/ofximport/internal/streaming"
	"github.com/rumor-ml/ofximport/internal/transform"
)

// maxUploadBytes caps a single import request. Statement files are small;
// anything near this limit is not an OFX export.
const maxUploadBytes = 100 << 20

// ParseHandlers handles statement upload and import session requests
type ParseHandlers struct {
	fsClient   FirestoreClient
	hub        *streaming.StreamHub
	currencies *currency.Set
}

// NewParseHandlers creates a new parse handlers instance
func NewParseHandlers(fsClient FirestoreClient, hub *streaming.StreamHub, currencies *currency.Set) *ParseHandlers {
	return &ParseHandlers{
		fsClient:   fsClient,
		hub:        hub,
		currencies: currencies,
	}
}

// upload is a statement file captured from the multipart form. Contents are
// read before the handler returns because the form's temp files are gone
// once the request completes.
type upload struct {
	name string
	data []byte
}

// StartParse handles POST /api/parse/start
func (h *ParseHandlers) StartParse(w http.ResponseWriter, r *http.Request) {
	authInfo, ok := middleware.GetAuth(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		http.Error(w, "No files uploaded", http.StatusBadRequest)
		return
	}

	uploads := make([]upload, 0, len(files))
	for _, fileHeader := range files {
		file, err := fileHeader.Open()
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open uploaded file %s", fileHeader.Filename), http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to read uploaded file %s", fileHeader.Filename), http.StatusBadRequest)
			return
		}
		uploads = append(uploads, upload{name: fileHeader.Filename, data: data})
	}

	session := &firestore.ParseSession{
		ID:        uuid.New().String(),
		UserID:    authInfo.UserID,
		Status:    firestore.ParseSessionStatusProcessing,
		FileCount: len(uploads),
		Stats:     make(map[string]interface{}),
		CreatedAt: time.Now(),
	}

	if err := h.fsClient.CreateParseSession(r.Context(), session); err != nil {
		log.Printf("ERROR: Failed to create parse session: %v", err)
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	go h.processUploads(context.Background(), session, uploads)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	fmt.Fprintf(w, `{"sessionId":%q}`, session.ID)
}

// processUploads runs every uploaded statement through the parse pipeline,
// mirrors the results to Firestore, and streams progress to SSE clients.
// One bad file does not abort the session; it is reported and skipped.
func (h *ParseHandlers) processUploads(ctx context.Context, session *firestore.ParseSession, uploads []upload) {
	var parsed, failed, transactions int

	for i, up := range uploads {
		fileID := uuid.New().String()
		h.hub.Broadcast(session.ID, streaming.NewFileEvent(streaming.FileEvent{
			ID:        fileID,
			SessionID: session.ID,
			FileName:  up.name,
			Status:    "processing",
		}))

		result, err := h.parseUpload(ctx, session.ID, up)
		if err != nil {
			log.Printf("ERROR: Failed to parse %s in session %s: %v", up.name, session.ID, err)
			failed++
			h.hub.Broadcast(session.ID, streaming.NewErrorEvent(streaming.ErrorEvent{
				Message: err.Error(),
				FileID:  fileID,
			}))
			h.hub.Broadcast(session.ID, streaming.NewFileEvent(streaming.FileEvent{
				ID:        fileID,
				SessionID: session.ID,
				FileName:  up.name,
				Status:    "error",
				Error:     err.Error(),
			}))
			continue
		}

		for _, record := range result.Records {
			txn := firestore.FromRecord(record, session.UserID)
			if err := h.fsClient.UpsertTransaction(ctx, txn); err != nil {
				log.Printf("ERROR: Failed to store transaction %s: %v", record.ExternalID, err)
				continue
			}
			h.hub.Broadcast(session.ID, streaming.NewTransactionStreamEvent(record))
		}

		parsed++
		transactions += len(result.Records)

		h.hub.Broadcast(session.ID, streaming.NewSummaryEvent(streaming.SummaryEvent{
			FileID:   fileID,
			FileName: up.name,
			Summary:  result.Summary,
		}))
		h.hub.Broadcast(session.ID, streaming.NewFileEvent(streaming.FileEvent{
			ID:        fileID,
			SessionID: session.ID,
			FileName:  up.name,
			Status:    "completed",
			Metadata: map[string]interface{}{
				"kind":         string(result.Kind),
				"transactions": len(result.Records),
			},
		}))
		h.hub.Broadcast(session.ID, streaming.NewProgressEvent(streaming.ProgressEvent{
			FileID:     fileID,
			FileName:   up.name,
			Processed:  i + 1,
			Total:      len(uploads),
			Percentage: float64(i+1) / float64(len(uploads)) * 100,
			Status:     "completed",
		}))
	}

	now := time.Now()
	session.CompletedAt = &now
	session.Stats["filesParsed"] = parsed
	session.Stats["filesFailed"] = failed
	session.Stats["transactions"] = transactions

	if parsed == 0 {
		session.Status = firestore.ParseSessionStatusError
		session.Error = fmt.Sprintf("all %d files failed to parse", failed)
	} else {
		session.Status = firestore.ParseSessionStatusCompleted
	}

	if err := h.fsClient.UpdateParseSession(ctx, session); err != nil {
		log.Printf("ERROR: Failed to update parse session %s: %v", session.ID, err)
	}

	h.hub.Broadcast(session.ID, streaming.NewCompleteEvent(streaming.SessionEvent{
		ID:          session.ID,
		Status:      string(session.Status),
		Stats:       session.Stats,
		CompletedAt: session.CompletedAt,
		Error:       session.Error,
	}))
}

func (h *ParseHandlers) parseUpload(ctx context.Context, sessionID string, up upload) (*pipeline.Result, error) {
	accountID, err := accountIDForUpload(up.name)
	if err != nil {
		return nil, fmt.Errorf("cannot derive account from filename %q: %w", up.name, err)
	}

	opts := pipeline.Options{
		AccountID:  accountID,
		GroupID:    sessionID,
		Currencies: h.currencies,
		Filename:   up.name,
	}
	return pipeline.ParseStatement(ctx, bytes.NewReader(up.data), opts)
}

// accountIDForUpload derives a stable account identity from the uploaded
// filename. Uploads carry no directory structure, so the filename stem is
// all the identity there is.
func accountIDForUpload(filename string) (string, error) {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return transform.SlugifyAccount(stem)
}

// GetSession handles GET /api/parse/{id}
func (h *ParseHandlers) GetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.ownedSession(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(session); err != nil {
		log.Printf("ERROR: Failed to encode session %s: %v", session.ID, err)
	}
}

// CancelParse handles POST /api/parse/{id}/cancel
func (h *ParseHandlers) CancelParse(w http.ResponseWriter, r *http.Request) {
	session, ok := h.ownedSession(w, r)
	if !ok {
		return
	}

	session.Status = firestore.ParseSessionStatusCancelled
	if err := h.fsClient.UpdateParseSession(r.Context(), session); err != nil {
		http.Error(w, "Failed to cancel session", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"cancelled"}`)
}

// StreamEvents handles GET /api/parse/{id}/events, the SSE feed a review UI
// subscribes to while a session runs.
func (h *ParseHandlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	session, ok := h.ownedSession(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := h.hub.Register(r.Context(), session.ID)
	defer h.hub.Unregister(session.ID, client)

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-client.Events:
			if !open {
				return
			}
			if err := writeSSE(w, flusher, event); err != nil {
				return
			}
		case <-heartbeat.C:
			if err := writeSSE(w, flusher, streaming.NewHeartbeatEvent()); err != nil {
				return
			}
		}
	}
}

func writeSSE(w io.Writer, flusher http.Flusher, event streaming.SSEEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// ownedSession resolves the {id} path value to a session owned by the
// authenticated user, writing the appropriate error response otherwise.
func (h *ParseHandlers) ownedSession(w http.ResponseWriter, r *http.Request) (*firestore.ParseSession, bool) {
	authInfo, ok := middleware.GetAuth(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	session, err := h.fsClient.GetParseSession(r.Context(), r.PathValue("id"))
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	if session.UserID != authInfo.UserID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return nil, false
	}
	return session, true
}
