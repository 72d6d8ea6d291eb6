// Package output writes parsed transactions and their summary to JSON, for
// review before anything is committed to a store.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/rumor-ml/ofximport/internal/domain"
)

// Export is the on-disk result of one import run.
type Export struct {
	GroupID      string                     `json:"groupId,omitempty"`
	Transactions []domain.TransactionRecord `json:"transactions"`
	Summary      domain.ParseSummary        `json:"summary"`
}

// NewExport bundles records with their computed summary.
func NewExport(groupID string, records []domain.TransactionRecord) *Export {
	return &Export{
		GroupID:      groupID,
		Transactions: records,
		Summary:      domain.Summarize(records),
	}
}

// WriteOptions configures how the export is written
type WriteOptions struct {
	MergeMode bool   // If true, load existing file and merge
	FilePath  string // Output path (empty = stdout)
}

// WriteExport serializes the export to JSON with 2-space indentation
func WriteExport(export *Export, w io.Writer) error {
	if export == nil {
		return fmt.Errorf("export cannot be nil")
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(export); err != nil {
		return fmt.Errorf("failed to encode export as JSON: %w", err)
	}

	return nil
}

// WriteExportToFile writes the export to file or stdout based on options
func WriteExportToFile(export *Export, opts WriteOptions) (err error) {
	if export == nil {
		return fmt.Errorf("export cannot be nil")
	}

	if opts.MergeMode && opts.FilePath != "" {
		existing, err := LoadExport(opts.FilePath)
		if err != nil {
			// If file doesn't exist, treat as fresh mode
			if !os.IsNotExist(err) {
				return fmt.Errorf("failed to load existing export for merge: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Warning: merge mode requested but %s does not exist, creating new file\n", opts.FilePath)
		} else {
			export = mergeExports(existing, export)
		}
	}

	if opts.FilePath == "" {
		return WriteExport(export, os.Stdout)
	}

	f, err := os.Create(opts.FilePath)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", opts.FilePath, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close output file %s: %w", opts.FilePath, closeErr)
		}
	}()

	if err = WriteExport(export, f); err != nil {
		return fmt.Errorf("failed to write export to %s: %w", opts.FilePath, err)
	}

	return nil
}

// LoadExport reads an existing export file for merge mode
func LoadExport(filePath string) (*Export, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	f, err := os.Open(filePath)
	if err != nil {
		// Return unwrapped error so caller can check os.IsNotExist
		return nil, err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close %s: %v\n", filePath, closeErr)
		}
	}()

	var export Export
	decoder := json.NewDecoder(f)
	if err := decoder.Decode(&export); err != nil {
		return nil, fmt.Errorf("failed to decode export JSON: %w", err)
	}

	return &export, nil
}

// mergeExports combines new records into an existing export. Records sharing
// an external ID are replaced by the newer parse, so replays converge; the
// summary is recomputed from the merged set.
func mergeExports(existing, incoming *Export) *Export {
	byID := make(map[string]domain.TransactionRecord, len(existing.Transactions)+len(incoming.Transactions))
	order := make([]string, 0, len(existing.Transactions)+len(incoming.Transactions))

	for _, r := range existing.Transactions {
		if _, seen := byID[r.ExternalID]; !seen {
			order = append(order, r.ExternalID)
		}
		byID[r.ExternalID] = r
	}
	for _, r := range incoming.Transactions {
		if _, seen := byID[r.ExternalID]; !seen {
			order = append(order, r.ExternalID)
		}
		byID[r.ExternalID] = r
	}

	merged := make([]domain.TransactionRecord, 0, len(order))
	for _, id := range order {
		merged = append(merged, byID[id])
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Date < merged[j].Date
	})

	groupID := incoming.GroupID
	if groupID == "" {
		groupID = existing.GroupID
	}

	return NewExport(groupID, merged)
}
