package domain

import "github.com/shopspring/decimal"

// ParseSummary is the read-only aggregate shown to the user before commit.
// It has no lifecycle beyond the parse call that produced it.
type ParseSummary struct {
	Count int `json:"count"`
	// Date bounds are empty when Count is zero.
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
	// NetTotal is income minus expense, signed.
	NetTotal decimal.Decimal `json:"netTotal"`
}

// Summarize computes the pre-commit review statistics over a normalized
// record list. Pure function; an empty input yields a zero-count summary
// with undefined (empty) date bounds.
func Summarize(records []TransactionRecord) ParseSummary {
	summary := ParseSummary{
		Count:    len(records),
		NetTotal: decimal.Zero,
	}

	for _, r := range records {
		summary.NetTotal = summary.NetTotal.Add(r.Signed())

		// Dates are YYYY-MM-DD so lexicographic comparison is date order.
		if summary.StartDate == "" || r.Date < summary.StartDate {
			summary.StartDate = r.Date
		}
		if summary.EndDate == "" || r.Date > summary.EndDate {
			summary.EndDate = r.Date
		}
	}

	return summary
}
