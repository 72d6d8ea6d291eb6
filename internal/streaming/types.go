package streaming

import (
	"time"

	"github.com/rumor-ml/ofximport/internal/domain"
)

// EventType represents the type of SSE event
type EventType string

const (
	EventTypeSession     EventType = "session"
	EventTypeProgress    EventType = "progress"
	EventTypeFile        EventType = "file"
	EventTypeTransaction EventType = "transaction"
	EventTypeSummary     EventType = "summary"
	EventTypeComplete    EventType = "complete"
	EventTypeError       EventType = "error"
	EventTypeHeartbeat   EventType = "heartbeat"
)

// SSEEvent represents a Server-Sent Event
type SSEEvent struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// ErrorData extracts the payload of an error event.
func (e SSEEvent) ErrorData() (ErrorEvent, bool) {
	data, ok := e.Data.(ErrorEvent)
	return data, ok
}

// ProgressData extracts the payload of a progress event.
func (e SSEEvent) ProgressData() (ProgressEvent, bool) {
	data, ok := e.Data.(ProgressEvent)
	return data, ok
}

// FileData extracts the payload of a file event.
func (e SSEEvent) FileData() (FileEvent, bool) {
	data, ok := e.Data.(FileEvent)
	return data, ok
}

// SessionEvent represents a parse session state event
type SessionEvent struct {
	ID          string                 `json:"id"`
	Status      string                 `json:"status"`
	Stats       map[string]interface{} `json:"stats"`
	CompletedAt *time.Time             `json:"completedAt,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// ProgressEvent represents parsing progress across the session's files
type ProgressEvent struct {
	FileID     string  `json:"fileId"`
	FileName   string  `json:"fileName"`
	Processed  int     `json:"processed"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
	Status     string  `json:"status"`
}

// FileEvent represents one statement file moving through the import
type FileEvent struct {
	ID        string                 `json:"id"`
	SessionID string                 `json:"sessionId"`
	FileName  string                 `json:"fileName"`
	Status    string                 `json:"status"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// TransactionEvent streams one normalized transaction to the review UI.
// Amount is the decimal string, signed by classification on the client side.
type TransactionEvent struct {
	ExternalID     string `json:"externalId"`
	Date           string `json:"date"`
	Description    string `json:"description"`
	Amount         string `json:"amount"`
	Classification string `json:"classification"`
	Currency       string `json:"currency"`
}

// NewTransactionEvent converts a record to its streamed shape.
func NewTransactionEvent(record domain.TransactionRecord) TransactionEvent {
	return TransactionEvent{
		ExternalID:     record.ExternalID,
		Date:           record.Date,
		Description:    record.Description,
		Amount:         record.Amount.String(),
		Classification: string(record.Classification),
		Currency:       record.Currency,
	}
}

// SummaryEvent carries the per-file aggregate once a statement finishes
type SummaryEvent struct {
	FileID   string              `json:"fileId"`
	FileName string              `json:"fileName"`
	Summary  domain.ParseSummary `json:"summary"`
}

// ErrorEvent represents an error during parsing
type ErrorEvent struct {
	Message string `json:"message"`
	FileID  string `json:"fileId,omitempty"`
}

func newEvent(eventType EventType, data interface{}) SSEEvent {
	return SSEEvent{Type: eventType, Timestamp: time.Now(), Data: data}
}

// NewSessionEvent wraps a SessionEvent for broadcast
func NewSessionEvent(data SessionEvent) SSEEvent { return newEvent(EventTypeSession, data) }

// NewProgressEvent wraps a ProgressEvent for broadcast
func NewProgressEvent(data ProgressEvent) SSEEvent { return newEvent(EventTypeProgress, data) }

// NewFileEvent wraps a FileEvent for broadcast
func NewFileEvent(data FileEvent) SSEEvent { return newEvent(EventTypeFile, data) }

// NewTransactionStreamEvent wraps a normalized record for broadcast
func NewTransactionStreamEvent(record domain.TransactionRecord) SSEEvent {
	return newEvent(EventTypeTransaction, NewTransactionEvent(record))
}

// NewSummaryEvent wraps a SummaryEvent for broadcast
func NewSummaryEvent(data SummaryEvent) SSEEvent { return newEvent(EventTypeSummary, data) }

// NewErrorEvent wraps an ErrorEvent for broadcast
func NewErrorEvent(data ErrorEvent) SSEEvent { return newEvent(EventTypeError, data) }

// NewCompleteEvent wraps arbitrary completion data for broadcast
func NewCompleteEvent(data interface{}) SSEEvent { return newEvent(EventTypeComplete, data) }

// NewHeartbeatEvent produces a keepalive event
func NewHeartbeatEvent() SSEEvent { return newEvent(EventTypeHeartbeat, nil) }
