// Package dedup tracks which transactions have already been imported, via
// SHA256 fingerprinting and a persisted state file. It catches re-downloads
// where the bank reissued transaction IDs, which the external-ID key alone
// cannot.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rumor-ml/ofximport/internal/domain"
)

// State represents the deduplication state with fingerprint history.
type State struct {
	Version      int                           `json:"version"`
	Fingerprints map[string]*FingerprintRecord `json:"fingerprints"`
	Metadata     StateMetadata                 `json:"metadata"`
}

// FingerprintRecord tracks a transaction fingerprint across multiple observations.
type FingerprintRecord struct {
	FirstSeen  time.Time `json:"firstSeen"`
	LastSeen   time.Time `json:"lastSeen"`
	Count      int       `json:"count"`
	ExternalID string    `json:"externalId"`
}

// StateMetadata contains aggregate statistics about the state.
type StateMetadata struct {
	LastUpdated       time.Time `json:"lastUpdated"`
	TotalFingerprints int       `json:"totalFingerprints"`
}

// CurrentVersion is the current state file format version.
const CurrentVersion = 1

// NewState creates an empty deduplication state.
func NewState() *State {
	return &State{
		Version:      CurrentVersion,
		Fingerprints: make(map[string]*FingerprintRecord),
		Metadata: StateMetadata{
			LastUpdated:       time.Now(),
			TotalFingerprints: 0,
		},
	}
}

// Fingerprint hashes a record's observable content: date, absolute amount,
// and normalized description. Two exports of the same transaction produce
// the same fingerprint even when the bank assigned different FITIDs.
// Format: SHA256("{date}|{amount}|{lowercased trimmed description}").
func Fingerprint(record domain.TransactionRecord) string {
	normalizedDesc := strings.ToLower(strings.TrimSpace(record.Description))
	input := fmt.Sprintf("%s|%s|%s", record.Date, record.Amount.StringFixed(2), normalizedDesc)

	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}

// LoadState loads a state file from disk.
// Returns os.IsNotExist error if file doesn't exist (caller should handle).
func LoadState(filePath string) (*State, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err // Preserve os.IsNotExist for caller
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}

	if state.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported state file version %d (current version: %d)", state.Version, CurrentVersion)
	}

	if state.Fingerprints == nil {
		state.Fingerprints = make(map[string]*FingerprintRecord)
	}

	return &state, nil
}

// SaveState atomically writes the state to disk.
// Uses atomic write pattern: write to temp file, then rename.
// Ensures parent directory exists.
func SaveState(state *State, filePath string) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	state.Metadata.LastUpdated = time.Now()
	state.Metadata.TotalFingerprints = len(state.Fingerprints)

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tempFile := filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempFile, filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// IsDuplicate checks if a fingerprint exists in the state.
func (s *State) IsDuplicate(fingerprint string) bool {
	_, exists := s.Fingerprints[fingerprint]
	return exists
}

// Record stores a transaction fingerprint in the state.
// If new: creates record with firstSeen=timestamp, count=1.
// If exists: updates lastSeen=timestamp, increments count.
func (s *State) Record(fingerprint, externalID string, timestamp time.Time) error {
	if fingerprint == "" {
		return fmt.Errorf("fingerprint cannot be empty")
	}
	if externalID == "" {
		return fmt.Errorf("external ID cannot be empty")
	}

	if record, exists := s.Fingerprints[fingerprint]; exists {
		record.LastSeen = timestamp
		record.Count++
	} else {
		s.Fingerprints[fingerprint] = &FingerprintRecord{
			FirstSeen:  timestamp,
			LastSeen:   timestamp,
			Count:      1,
			ExternalID: externalID,
		}
	}

	return nil
}

// TotalFingerprints reports how many distinct fingerprints the state holds.
func (s *State) TotalFingerprints() int {
	return len(s.Fingerprints)
}

// Filter splits records into those never seen before and those whose
// fingerprints the state already holds. The state is not modified.
func (s *State) Filter(records []domain.TransactionRecord) (fresh, duplicates []domain.TransactionRecord) {
	for _, r := range records {
		if s.IsDuplicate(Fingerprint(r)) {
			duplicates = append(duplicates, r)
		} else {
			fresh = append(fresh, r)
		}
	}
	return fresh, duplicates
}
