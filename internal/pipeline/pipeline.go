// Package pipeline chains the OFX parsing stages into a single statement
// import: decode, header extraction, kind detection, transaction list
// location, SGML repair, document assembly, and normalization.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rumor-ml/ofximport/internal/currency"
	"github.com/rumor-ml/ofximport/internal/domain"
	"github.com/rumor-ml/ofximport/internal/ofx"
	"github.com/rumor-ml/ofximport/internal/transform"
)

// Options configures a single statement parse.
type Options struct {
	// AccountID keys every produced transaction; required.
	AccountID string

	// GroupID tags the records with the batch they arrived in. Optional.
	GroupID string

	// Currencies resolves the statement's CURDEF. Required.
	Currencies *currency.Set

	// Filename is used in error messages only. Optional.
	Filename string
}

// Result is the outcome of one parsed statement.
type Result struct {
	Header  *ofx.Header
	Kind    ofx.Kind
	Records []domain.TransactionRecord
	Summary domain.ParseSummary
}

// CanParse reports whether the file looks like an OFX/QFX statement, based
// on its extension and the first bytes of its content.
func CanParse(path string, header []byte) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".ofx" && ext != ".qfx" {
		return false
	}

	headerUpper := strings.ToUpper(string(header))
	return strings.Contains(headerUpper, "OFXHEADER") ||
		strings.Contains(headerUpper, "<OFX>")
}

// ParseStatement runs the full import chain over one statement. Structural
// failures (undecodable bytes, missing transaction list, irreparable SGML)
// abort the whole file; per-transaction currency and description gaps are
// absorbed with fallbacks and never fail the parse.
func ParseStatement(ctx context.Context, r io.Reader, opts Options) (*Result, error) {
	if opts.AccountID == "" {
		return nil, fmt.Errorf("account ID cannot be empty")
	}
	if opts.Currencies == nil {
		return nil, fmt.Errorf("currency set cannot be nil")
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read statement%s: %w", fileInfo(opts), err)
	}

	// io.ReadAll does not take a context, so cancellation is only observed
	// between the read and the parse stages.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parsing cancelled: %w", err)
	}

	text, err := ofx.Decode(content)
	if err != nil {
		return nil, fmt.Errorf("failed to decode statement%s: %w", fileInfo(opts), err)
	}

	header, bodyStart := ofx.ExtractHeader(text)
	body := text[bodyStart:]

	kind := ofx.DetectKind(body)

	span, tranList, err := ofx.LocateTransactionList(body, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to locate transaction list%s: %w", fileInfo(opts), err)
	}

	repaired, err := ofx.Repair(tranList)
	if err != nil {
		return nil, fmt.Errorf("failed to repair transaction list%s: %w", fileInfo(opts), err)
	}

	doc, err := ofx.Assemble(body, span, repaired, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble document%s: %w", fileInfo(opts), err)
	}

	records, err := transform.Normalize(doc, opts.AccountID, opts.GroupID, opts.Currencies)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize transactions%s: %w", fileInfo(opts), err)
	}

	return &Result{
		Header:  header,
		Kind:    doc.Kind,
		Records: records,
		Summary: domain.Summarize(records),
	}, nil
}

// ParseFile opens path and parses it as a statement. The account ID is
// derived from the file's position under root ({institution}/{account}/file)
// unless opts.AccountID is already set.
func ParseFile(ctx context.Context, path string, opts Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if opts.Filename == "" {
		opts.Filename = filepath.Base(path)
	}
	return ParseStatement(ctx, f, opts)
}

func fileInfo(opts Options) string {
	if opts.Filename == "" {
		return ""
	}
	return fmt.Sprintf(" from %s", opts.Filename)
}
