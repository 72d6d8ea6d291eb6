// Package scanner walks a statements directory tree and finds OFX/QFX
// exports, deriving account identity from the directory layout.
package scanner

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rumor-ml/ofximport/internal/pipeline"
	"github.com/rumor-ml/ofximport/internal/transform"
)

// sniffLen is how many bytes of each candidate file are read to confirm it
// actually contains OFX content, not just an OFX extension.
const sniffLen = 1024

// Metadata is what the directory layout says about a statement file.
// Path structure: {root}/{institution}/{account}/{period?}/file.ext
type Metadata struct {
	FilePath      string
	Institution   string
	AccountNumber string
	Period        string
	DetectedAt    time.Time
}

// AccountID derives the stable account identifier from the institution and
// account directories. It fails when the file sits too shallow in the tree
// for either to be known.
func (m Metadata) AccountID() (string, error) {
	if m.Institution == "" || m.AccountNumber == "" {
		return "", fmt.Errorf("file %s is not under an {institution}/{account} directory", m.FilePath)
	}
	return transform.AccountIDFromPath(m.Institution, m.AccountNumber)
}

// ScanResult is one discovered statement file.
type ScanResult struct {
	Path     string
	Metadata Metadata
}

// Scanner walks a directory tree and finds statement files.
type Scanner struct {
	rootDir string
}

// New creates a scanner rooted at rootDir. A leading ~/ is expanded.
func New(rootDir string) *Scanner {
	return &Scanner{rootDir: rootDir}
}

// Scan walks the tree and returns every file that looks like an OFX/QFX
// statement. Files with a matching extension but non-OFX content are
// skipped, not failed: export directories routinely hold renamed CSVs.
func (s *Scanner) Scan() ([]ScanResult, error) {
	rootDir := expandHome(s.rootDir)

	var results []ScanResult
	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		ok, err := isStatementFile(path)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		results = append(results, ScanResult{
			Path:     path,
			Metadata: extractMetadata(path, rootDir),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	return results, nil
}

// isStatementFile checks the extension, then sniffs the first bytes.
func isStatementFile(path string) (bool, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".qfx" && ext != ".ofx" {
		return false, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	header := make([]byte, sniffLen)
	n, err := f.Read(header)
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return pipeline.CanParse(path, header[:n]), nil
}

// extractMetadata reads institution and account identity off the path
// components under the scan root.
func extractMetadata(filePath, rootDir string) Metadata {
	relPath, err := filepath.Rel(rootDir, filePath)
	if err != nil {
		relPath = filePath
	}
	parts := strings.Split(filepath.ToSlash(relPath), "/")

	meta := Metadata{
		FilePath:   filePath,
		DetectedAt: time.Now(),
	}

	if len(parts) >= 2 {
		meta.Institution = normalizeInstitutionName(parts[0])
	}
	if len(parts) >= 3 {
		meta.AccountNumber = parts[1]
	}
	if len(parts) >= 4 && looksLikePeriod(parts[2]) {
		meta.Period = parts[2]
	}

	return meta
}

// normalizeInstitutionName converts a directory name to a readable name.
// "american_express" -> "American Express"
func normalizeInstitutionName(dirName string) string {
	name := strings.ReplaceAll(dirName, "_", " ")

	words := strings.Split(name, " ")
	for i, word := range words {
		if len(word) > 0 {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}

	return strings.Join(words, " ")
}

// looksLikePeriod checks if str looks like a date period (YYYY-MM).
func looksLikePeriod(str string) bool {
	return len(str) >= 7 && str[4] == '-'
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
