package ofx

import (
	"fmt"
	"strings"
)

const (
	tranListOpen  = "<BANKTRANLIST>"
	tranListClose = "</BANKTRANLIST>"
)

// Span records where the transaction-list content sits inside the body, so
// re-splicing after repair is a single deterministic slice operation instead
// of a repeated string search. Start is the first byte after the opening tag,
// End the first byte of the closing tag.
type Span struct {
	Start int
	End   int
}

// Nesting paths from the statement-kind section down to the transaction
// list. Bank and credit-card responses wrap the same BANKTRANLIST element in
// different aggregates.
var (
	bankTranListPath = []string{bankSectionMarker, "<STMTRS>", tranListOpen}
	ccTranListPath   = []string{ccSectionMarker, "<CCSTMTRS>", tranListOpen}
)

// LocateTransactionList finds the transaction-list element for the detected
// statement kind and returns its content substring together with the span
// needed to splice the repaired version back in. This is the first point at
// which a structurally incompatible file is rejected, before any repair work
// is attempted; all failures are StageLocate.
func LocateTransactionList(body string, kind Kind) (Span, string, error) {
	var path []string
	switch kind {
	case KindBank:
		path = bankTranListPath
	case KindCreditCard:
		path = ccTranListPath
	default:
		return Span{}, "", &ParseError{
			Stage: StageLocate,
			Msg:   "document contains neither a bank nor a credit-card statement response",
		}
	}

	// Walk the nesting path with successive substring searches. Each marker
	// must appear after the previous one; the document outside the path is
	// left untouched.
	pos := 0
	for _, marker := range path {
		idx := strings.Index(body[pos:], marker)
		if idx < 0 {
			return Span{}, "", &ParseError{
				Stage: StageLocate,
				Msg:   fmt.Sprintf("%s statement is missing the %s element", kind, strings.Trim(marker, "<>")),
			}
		}
		pos += idx + len(marker)
	}

	closeIdx := strings.Index(body[pos:], tranListClose)
	if closeIdx < 0 {
		return Span{}, "", &ParseError{
			Stage: StageLocate,
			Msg:   fmt.Sprintf("transaction list opened at offset %d is never closed", pos-len(tranListOpen)),
		}
	}

	span := Span{Start: pos, End: pos + closeIdx}
	return span, body[span.Start:span.End], nil
}
