// Package transform walks a parsed statement and produces the canonical
// transaction records the rest of the system ingests.
package transform

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/ofximport/internal/currency"
	"github.com/rumor-ml/ofximport/internal/domain"
	"github.com/rumor-ml/ofximport/internal/ofx"
)

// Synthesized description fallbacks, parameterized by classification so the
// review UI can still say which direction the money moved.
const (
	fallbackExpenseDescription = "Unknown expense"
	fallbackIncomeDescription  = "Unknown income"
)

// Normalize converts the parsed document's transaction list into ordered
// TransactionRecords for the given account. Output order is statement order,
// not date order; callers that want date order sort explicitly.
//
// Per-field policies (unknown currency, missing description) resolve locally
// and never fail the parse. Structural problems in an entry (missing FITID,
// unparseable amount or date) do fail: a record without identity or value
// cannot be upserted safely.
func Normalize(doc *ofx.Document, accountID, groupID string, currencies *currency.Set) ([]domain.TransactionRecord, error) {
	if doc == nil {
		return nil, fmt.Errorf("document cannot be nil")
	}
	if accountID == "" {
		return nil, fmt.Errorf("account ID cannot be empty")
	}
	if currencies == nil {
		return nil, fmt.Errorf("currency set cannot be nil")
	}

	stmt := doc.Statement()
	if stmt == nil {
		return nil, fmt.Errorf("document has no statement section")
	}

	// One resolution per statement: OFX declares a single default currency
	// for the whole transaction list.
	currencyCode, _ := currencies.Resolve(stmt.Currency)

	records := make([]domain.TransactionRecord, 0, len(stmt.Transactions))
	for i, txn := range stmt.Transactions {
		record, err := normalizeTransaction(txn, accountID, currencyCode)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize transaction at index %d: %w", i, err)
		}
		record.GroupID = groupID
		records = append(records, *record)
	}

	return records, nil
}

func normalizeTransaction(txn ofx.StatementTransaction, accountID, currencyCode string) (*domain.TransactionRecord, error) {
	fitID := strings.TrimSpace(txn.FITID)
	if fitID == "" {
		return nil, fmt.Errorf("entry is missing the FITID field required for identity")
	}

	signed, err := parseAmount(txn.Amount)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", fitID, err)
	}

	date, err := parseDate(txn.Posted)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", fitID, err)
	}

	// A negative amount is an expense; zero and positive are income. The
	// stored amount is the absolute value and the classification carries
	// the business meaning from here on.
	classification := domain.ClassificationIncome
	if signed.IsNegative() {
		classification = domain.ClassificationExpense
	}

	return domain.NewTransactionRecord(
		ExternalID(accountID, fitID),
		date,
		resolveDescription(txn, classification),
		signed.Abs(),
		classification,
		currencyCode,
	)
}

// parseAmount types an OFX amount literal as a decimal. Floats would drift at
// the cent level over a statement's worth of additions.
func parseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, fmt.Errorf("missing TRNAMT amount")
	}
	s = strings.TrimPrefix(s, "+")

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid TRNAMT amount %q: %w", raw, err)
	}
	return amount, nil
}

// parseDate types an OFX date literal (YYYYMMDDHHMMSS[.mmm][offset]) as a
// day-granular YYYY-MM-DD date. Time of day and timezone offset are ignored;
// the ledger is day-granular.
func parseDate(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if len(s) < 8 {
		return "", fmt.Errorf("invalid DTPOSTED date %q: want at least YYYYMMDD", raw)
	}
	t, err := time.Parse("20060102", s[:8])
	if err != nil {
		return "", fmt.Errorf("invalid DTPOSTED date %q: %w", raw, err)
	}
	return t.Format("2006-01-02"), nil
}

// resolveDescription picks the display name, then the memo, then a
// synthesized fallback keyed by classification. SGML/HTML character escapes
// in the chosen text are unescaped before storage.
func resolveDescription(txn ofx.StatementTransaction, classification domain.Classification) string {
	description := strings.TrimSpace(txn.Name)
	if description == "" {
		description = strings.TrimSpace(txn.Memo)
	}
	if description == "" {
		if classification == domain.ClassificationExpense {
			return fallbackExpenseDescription
		}
		return fallbackIncomeDescription
	}
	return html.UnescapeString(description)
}
