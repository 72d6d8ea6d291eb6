// Package validate checks normalized transaction batches before they are
// committed to a store. Parsing already guarantees well-formed records for
// its own output; this guards records that arrive from exports, merges, or
// API clients.
package validate

import (
	"fmt"
	"time"

	"github.com/rumor-ml/ofximport/internal/domain"
)

// ValidationResult contains all validation errors and warnings for a batch
type ValidationResult struct {
	Errors   []ValidationError   `json:"errors"`
	Warnings []ValidationWarning `json:"warnings"`
}

// ValidationError represents a validation error
type ValidationError struct {
	ID      string `json:"id"` // external ID of the offending transaction
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// ValidationWarning represents a non-critical validation issue
type ValidationWarning struct {
	ID      string `json:"id"`
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// Valid reports whether the batch passed with no errors. Warnings do not
// block a commit.
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// ValidateRecords checks every record's field constraints and the batch-wide
// external ID uniqueness. Returns all errors and warnings found, not just
// the first.
func ValidateRecords(records []domain.TransactionRecord) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationWarning{},
	}

	seen := make(map[string]bool, len(records))

	for _, record := range records {
		if record.ExternalID == "" {
			result.Errors = append(result.Errors, ValidationError{
				ID:      record.ExternalID,
				Field:   "ExternalID",
				Value:   "",
				Message: "external ID cannot be empty",
			})
		}

		if record.Date == "" {
			result.Errors = append(result.Errors, ValidationError{
				ID:      record.ExternalID,
				Field:   "Date",
				Value:   "",
				Message: "date cannot be empty",
			})
		} else if _, err := time.Parse("2006-01-02", record.Date); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				ID:      record.ExternalID,
				Field:   "Date",
				Value:   record.Date,
				Message: fmt.Sprintf("invalid date format (expected YYYY-MM-DD): %v", err),
			})
		}

		if record.Amount.IsNegative() {
			result.Errors = append(result.Errors, ValidationError{
				ID:      record.ExternalID,
				Field:   "Amount",
				Value:   record.Amount.String(),
				Message: "amount must be non-negative (direction is carried by classification)",
			})
		}

		if !domain.ValidateClassification(record.Classification) {
			result.Errors = append(result.Errors, ValidationError{
				ID:      record.ExternalID,
				Field:   "Classification",
				Value:   string(record.Classification),
				Message: fmt.Sprintf("invalid classification: %s (must be income or expense)", record.Classification),
			})
		}

		if record.Currency == "" {
			result.Errors = append(result.Errors, ValidationError{
				ID:      record.ExternalID,
				Field:   "Currency",
				Value:   "",
				Message: "currency cannot be empty",
			})
		}

		if record.Description == "" {
			result.Warnings = append(result.Warnings, ValidationWarning{
				ID:      record.ExternalID,
				Field:   "Description",
				Value:   "",
				Message: "description is empty",
			})
		}

		if record.ExternalID != "" {
			if seen[record.ExternalID] {
				result.Errors = append(result.Errors, ValidationError{
					ID:      record.ExternalID,
					Field:   "ExternalID",
					Value:   record.ExternalID,
					Message: "duplicate external ID in batch",
				})
			}
			seen[record.ExternalID] = true
		}
	}

	return result
}
