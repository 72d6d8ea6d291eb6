package ofx

import (
	"encoding/json"
	"log"
	"strings"
)

// tranListSentinel stands in for the transaction-list content while the rest
// of the body goes through the same rewrite engine. It survives the rewrite
// as an ordinary quoted leaf value and is swapped for the repaired JSON
// afterwards.
const tranListSentinel = "__ofximport_tranlist_7c41__"

// Assemble splices the repaired transaction-list JSON back into the body at
// the recorded span, rewrites the remaining document with the same repair
// engine, wraps everything in the OFX root object, and parses the result into
// a typed Document. Any failure outside the transaction list itself surfaces
// here as a StageAssemble error; the transaction list's own repair failures
// were already reported by Repair.
func Assemble(body string, span Span, repairedList string, detected Kind) (*Document, error) {
	outer := body[:span.Start] + tranListSentinel + body[span.End:]

	root, err := parseFragment(outer)
	if err != nil {
		return nil, &ParseError{
			Stage: StageAssemble,
			Msg:   "document body outside the transaction list could not be rewritten",
			Err:   err,
		}
	}
	var b strings.Builder
	if err := writeObject(&b, root.children); err != nil {
		return nil, &ParseError{
			Stage: StageAssemble,
			Msg:   "document body could not be serialized",
			Err:   err,
		}
	}

	docJSON := strings.Replace(b.String(), `"`+tranListSentinel+`"`, repairedList, 1)

	var env envelope
	if err := json.Unmarshal([]byte(docJSON), &env); err != nil {
		return nil, &ParseError{
			Stage:   StageAssemble,
			Msg:     "assembled document is not a parseable statement",
			Snippet: snippet(docJSON),
			Err:     err,
		}
	}

	doc, err := env.document()
	if err != nil {
		return nil, &ParseError{
			Stage: StageAssemble,
			Msg:   err.Error(),
		}
	}

	// The detector and the assembled tree must agree on the statement kind.
	// A mismatch is an internal defect in detection or location, not a
	// property of the input file: log it loudly, keep the assembled truth.
	if detected != KindUnknown && doc.Kind != detected {
		log.Printf("ERROR: internal: detected statement kind %q but assembled document is %q", detected, doc.Kind)
	}

	return doc, nil
}
