// Package firestore syncs imported transactions to Firestore for the web
// review UI. The local SQLite store stays the source of truth; this mirror
// is keyed by the same external IDs, so repeated syncs converge.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/rumor-ml/ofximport/internal/domain"
)

// Client wraps Firestore with import-specific operations
type Client struct {
	Firestore *firestore.Client
	Auth      *auth.Client
	projectID string
}

// NewClient creates a new Firestore client using Application Default
// Credentials, or an explicit credentials file when credsPath is set.
func NewClient(ctx context.Context, projectID, credsPath string) (*Client, error) {
	conf := &firebase.Config{ProjectID: projectID}

	var opts []option.ClientOption
	if credsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credsPath))
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	firestoreClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		firestoreClient.Close()
		return nil, fmt.Errorf("failed to create Auth client: %w", err)
	}

	return &Client{
		Firestore: firestoreClient,
		Auth:      authClient,
		projectID: projectID,
	}, nil
}

// Close closes the Firestore client
func (c *Client) Close() error {
	return c.Firestore.Close()
}

// Transaction is the Firestore shape of a normalized transaction. Amount is
// stored as its decimal string so nothing is lost to float rounding.
type Transaction struct {
	ExternalID     string    `firestore:"externalId"`
	UserID         string    `firestore:"userId"`
	GroupID        string    `firestore:"groupId"`
	Date           string    `firestore:"date"`
	Description    string    `firestore:"description"`
	Amount         string    `firestore:"amount"`
	Classification string    `firestore:"classification"`
	Currency       string    `firestore:"currency"`
	Category       string    `firestore:"category"`
	CreatedAt      time.Time `firestore:"createdAt"`
}

// Validate checks if the Transaction has valid data
func (t *Transaction) Validate() error {
	if t.ExternalID == "" {
		return fmt.Errorf("external ID is required")
	}
	if t.UserID == "" {
		return fmt.Errorf("user ID is required")
	}

	if _, err := time.Parse("2006-01-02", t.Date); err != nil {
		return fmt.Errorf("invalid date format (expected YYYY-MM-DD): %w", err)
	}

	amount, err := decimal.NewFromString(t.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", t.Amount, err)
	}
	if amount.IsNegative() {
		return fmt.Errorf("amount must be non-negative")
	}

	if !domain.ValidateClassification(domain.Classification(t.Classification)) {
		return fmt.Errorf("invalid classification: %s", t.Classification)
	}

	return nil
}

// FromRecord converts a normalized record into its Firestore shape.
func FromRecord(record domain.TransactionRecord, userID string) *Transaction {
	return &Transaction{
		ExternalID:     record.ExternalID,
		UserID:         userID,
		GroupID:        record.GroupID,
		Date:           record.Date,
		Description:    record.Description,
		Amount:         record.Amount.String(),
		Classification: string(record.Classification),
		Currency:       record.Currency,
		Category:       record.Category,
		CreatedAt:      time.Now(),
	}
}

// Record converts back to the domain shape.
func (t *Transaction) Record() (*domain.TransactionRecord, error) {
	amount, err := decimal.NewFromString(t.Amount)
	if err != nil {
		return nil, fmt.Errorf("stored amount %q is not a decimal: %w", t.Amount, err)
	}
	return &domain.TransactionRecord{
		ExternalID:     t.ExternalID,
		GroupID:        t.GroupID,
		Date:           t.Date,
		Description:    t.Description,
		Amount:         amount,
		Classification: domain.Classification(t.Classification),
		Currency:       t.Currency,
		Category:       t.Category,
	}, nil
}

// UpsertTransaction writes a transaction document keyed by its external ID.
// Set replaces the existing document, so re-syncs converge.
func (c *Client) UpsertTransaction(ctx context.Context, txn *Transaction) error {
	if err := txn.Validate(); err != nil {
		return fmt.Errorf("invalid transaction: %w", err)
	}
	_, err := c.Firestore.Collection("import-transactions").Doc(txn.ExternalID).Set(ctx, txn)
	return err
}

// GetTransactions retrieves all transactions for a user, newest first.
func (c *Client) GetTransactions(ctx context.Context, userID string) ([]*Transaction, error) {
	iter := c.Firestore.Collection("import-transactions").
		Where("userId", "==", userID).
		OrderBy("date", firestore.Desc).
		Documents(ctx)

	var transactions []*Transaction
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate transactions for user %s: %w", userID, err)
		}

		var txn Transaction
		if err := doc.DataTo(&txn); err != nil {
			return nil, fmt.Errorf("failed to parse transaction: %w", err)
		}
		transactions = append(transactions, &txn)
	}

	return transactions, nil
}

// ParseSessionStatus represents the status of a parse session
type ParseSessionStatus string

const (
	ParseSessionStatusPending    ParseSessionStatus = "pending"
	ParseSessionStatusProcessing ParseSessionStatus = "processing"
	ParseSessionStatusCompleted  ParseSessionStatus = "completed"
	ParseSessionStatusError      ParseSessionStatus = "error"
	ParseSessionStatusCancelled  ParseSessionStatus = "cancelled"
)

// ParseSession represents a file parsing session in Firestore
type ParseSession struct {
	ID          string                 `firestore:"id"`
	UserID      string                 `firestore:"userId"`
	Status      ParseSessionStatus     `firestore:"status"`
	FileCount   int                    `firestore:"fileCount"`
	Stats       map[string]interface{} `firestore:"stats"`
	CompletedAt *time.Time             `firestore:"completedAt,omitempty"`
	Error       string                 `firestore:"error,omitempty"`
	CreatedAt   time.Time              `firestore:"createdAt"`
}

// Validate checks if the ParseSession has valid data
func (s *ParseSession) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("session ID is required")
	}
	if s.UserID == "" {
		return fmt.Errorf("user ID is required")
	}

	validStatuses := map[ParseSessionStatus]bool{
		ParseSessionStatusPending:    true,
		ParseSessionStatusProcessing: true,
		ParseSessionStatusCompleted:  true,
		ParseSessionStatusError:      true,
		ParseSessionStatusCancelled:  true,
	}
	if !validStatuses[s.Status] {
		return fmt.Errorf("invalid status: %s", s.Status)
	}

	if s.FileCount < 0 {
		return fmt.Errorf("file count cannot be negative")
	}

	return nil
}

// CreateParseSession creates a new parse session
func (c *Client) CreateParseSession(ctx context.Context, session *ParseSession) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("invalid parse session: %w", err)
	}
	_, err := c.Firestore.Collection("import-parse-sessions").Doc(session.ID).Set(ctx, session)
	return err
}

// UpdateParseSession updates an existing parse session
func (c *Client) UpdateParseSession(ctx context.Context, session *ParseSession) error {
	_, err := c.Firestore.Collection("import-parse-sessions").Doc(session.ID).Set(ctx, session)
	return err
}

// GetParseSession retrieves a parse session by ID
func (c *Client) GetParseSession(ctx context.Context, sessionID string) (*ParseSession, error) {
	doc, err := c.Firestore.Collection("import-parse-sessions").Doc(sessionID).Get(ctx)
	if err != nil {
		return nil, err
	}

	var session ParseSession
	if err := doc.DataTo(&session); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}

	return &session, nil
}

// ListParseSessions retrieves recent parse sessions for a user
func (c *Client) ListParseSessions(ctx context.Context, userID string) ([]*ParseSession, error) {
	iter := c.Firestore.Collection("import-parse-sessions").
		Where("userId", "==", userID).
		OrderBy("createdAt", firestore.Desc).
		Limit(50).
		Documents(ctx)

	var sessions []*ParseSession
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate parse sessions for user %s: %w", userID, err)
		}

		var sess ParseSession
		if err := doc.DataTo(&sess); err != nil {
			return nil, fmt.Errorf("failed to parse session: %w", err)
		}
		sessions = append(sessions, &sess)
	}

	return sessions, nil
}
