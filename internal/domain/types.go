package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Classification records whether a transaction moves money in or out. It is
// stored alongside the unsigned amount instead of being re-derived from sign
// downstream: display and currency code must never need to recover business
// meaning from a raw number.
type Classification string

const (
	ClassificationIncome  Classification = "income"
	ClassificationExpense Classification = "expense"
)

// ValidateClassification checks if c is a known classification.
func ValidateClassification(c Classification) bool {
	return c == ClassificationIncome || c == ClassificationExpense
}

// TransactionRecord is one normalized statement transaction, the unit handed
// to persistence and the review UI.
//
// ExternalID is the globally stable identity: accountID + "-" + FITID. It is
// byte-identical across repeated parses of the same statement for the same
// account, which is what lets persistence upsert instead of duplicating.
// Callers may edit Description and Category before commit but must never
// touch ExternalID, Amount, or Date without re-deriving identity semantics.
type TransactionRecord struct {
	ExternalID     string          `json:"externalId"`
	GroupID        string          `json:"groupId,omitempty"`
	Date           string          `json:"date"` // YYYY-MM-DD, day-granular
	Description    string          `json:"description"`
	Amount         decimal.Decimal `json:"amount"` // always non-negative
	Classification Classification  `json:"classification"`
	Currency       string          `json:"currency"`
	// Category is left empty by the importer; a downstream classifier may
	// populate it. Nothing here assumes categorization has run.
	Category string `json:"category,omitempty"`
}

// NewTransactionRecord creates a validated record.
func NewTransactionRecord(externalID, date, description string, amount decimal.Decimal, classification Classification, currencyCode string) (*TransactionRecord, error) {
	if externalID == "" {
		return nil, fmt.Errorf("external ID cannot be empty")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, fmt.Errorf("invalid date format (expected YYYY-MM-DD): %w", err)
	}
	if description == "" {
		return nil, fmt.Errorf("description cannot be empty")
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("amount must be non-negative, got %s (classification carries the sign)", amount)
	}
	if !ValidateClassification(classification) {
		return nil, fmt.Errorf("invalid classification: %s", classification)
	}
	if currencyCode == "" {
		return nil, fmt.Errorf("currency code cannot be empty")
	}

	return &TransactionRecord{
		ExternalID:     externalID,
		Date:           date,
		Description:    description,
		Amount:         amount,
		Classification: classification,
		Currency:       currencyCode,
	}, nil
}

// Signed returns the amount with its sign restored: negative for expenses,
// positive for income.
func (r *TransactionRecord) Signed() decimal.Decimal {
	if r.Classification == ClassificationExpense {
		return r.Amount.Neg()
	}
	return r.Amount
}
