// Package store persists normalized transactions in a local SQLite database.
// The external ID is the primary key, so re-importing a statement upserts
// instead of duplicating.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/rumor-ml/ofximport/internal/domain"
)

// Store wraps the transactions database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at dbPath and ensures the schema
// exists. Use ":memory:" for an ephemeral database.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// initSchema creates the transactions table and its query indexes.
func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transactions (
			external_id    TEXT PRIMARY KEY,
			group_id       TEXT NOT NULL DEFAULT '',
			date           TEXT NOT NULL,
			description    TEXT NOT NULL,
			amount         TEXT NOT NULL,
			classification TEXT NOT NULL,
			currency       TEXT NOT NULL,
			category       TEXT NOT NULL DEFAULT '',
			updated_at     TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create transactions table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(date)
	`)
	if err != nil {
		return fmt.Errorf("failed to create date index: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_transactions_group ON transactions(group_id)
	`)
	if err != nil {
		return fmt.Errorf("failed to create group index: %w", err)
	}

	return nil
}

// Upsert writes one record, replacing any existing row with the same
// external ID. Replaying a statement converges on the latest parse.
func (s *Store) Upsert(ctx context.Context, record domain.TransactionRecord) error {
	if record.ExternalID == "" {
		return fmt.Errorf("external ID cannot be empty")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (external_id, group_id, date, description, amount, classification, currency, category)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			group_id       = excluded.group_id,
			date           = excluded.date,
			description    = excluded.description,
			amount         = excluded.amount,
			classification = excluded.classification,
			currency       = excluded.currency,
			category       = excluded.category,
			updated_at     = CURRENT_TIMESTAMP
	`, record.ExternalID, record.GroupID, record.Date, record.Description,
		record.Amount.String(), string(record.Classification), record.Currency, record.Category)
	if err != nil {
		return fmt.Errorf("failed to upsert transaction %s: %w", record.ExternalID, err)
	}

	return nil
}

// UpsertAll writes a batch of records in one database transaction.
func (s *Store) UpsertAll(ctx context.Context, records []domain.TransactionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (external_id, group_id, date, description, amount, classification, currency, category)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			group_id       = excluded.group_id,
			date           = excluded.date,
			description    = excluded.description,
			amount         = excluded.amount,
			classification = excluded.classification,
			currency       = excluded.currency,
			category       = excluded.category,
			updated_at     = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		if record.ExternalID == "" {
			return fmt.Errorf("external ID cannot be empty")
		}
		_, err := stmt.ExecContext(ctx, record.ExternalID, record.GroupID, record.Date,
			record.Description, record.Amount.String(), string(record.Classification),
			record.Currency, record.Category)
		if err != nil {
			return fmt.Errorf("failed to upsert transaction %s: %w", record.ExternalID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	return nil
}

// Get retrieves one record by external ID.
// Returns sql.ErrNoRows when it does not exist.
func (s *Store) Get(ctx context.Context, externalID string) (*domain.TransactionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT external_id, group_id, date, description, amount, classification, currency, category
		FROM transactions WHERE external_id = ?
	`, externalID)

	record, err := scanRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load transaction %s: %w", externalID, err)
	}
	return record, nil
}

// Transactions returns all stored records ordered by date, then external ID.
func (s *Store) Transactions(ctx context.Context) ([]domain.TransactionRecord, error) {
	return s.query(ctx, `
		SELECT external_id, group_id, date, description, amount, classification, currency, category
		FROM transactions ORDER BY date, external_id
	`)
}

// TransactionsByGroup returns the records imported under one group ID.
func (s *Store) TransactionsByGroup(ctx context.Context, groupID string) ([]domain.TransactionRecord, error) {
	return s.query(ctx, `
		SELECT external_id, group_id, date, description, amount, classification, currency, category
		FROM transactions WHERE group_id = ? ORDER BY date, external_id
	`, groupID)
}

// Count reports how many transactions are stored.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]domain.TransactionRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var records []domain.TransactionRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}

	return records, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*domain.TransactionRecord, error) {
	var record domain.TransactionRecord
	var amount, classification string

	err := row.Scan(&record.ExternalID, &record.GroupID, &record.Date, &record.Description,
		&amount, &classification, &record.Currency, &record.Category)
	if err != nil {
		return nil, err
	}

	record.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("stored amount %q is not a decimal: %w", amount, err)
	}
	record.Classification = domain.Classification(classification)

	return &record, nil
}
