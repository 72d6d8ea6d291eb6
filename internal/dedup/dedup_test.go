package dedup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/ofximport/internal/domain"
)

func record(date, amount, description string) domain.TransactionRecord {
	return domain.TransactionRecord{
		ExternalID:  "acc-1",
		Date:        date,
		Description: description,
		Amount:      decimal.RequireFromString(amount),
	}
}

func TestFingerprint(t *testing.T) {
	base := record("2025-01-15", "50.00", "Whole Foods")

	fp := Fingerprint(base)
	if len(fp) != 64 {
		t.Errorf("Fingerprint() length = %d, want 64 hex chars", len(fp))
	}
	if fp != Fingerprint(base) {
		t.Error("Fingerprint() is not deterministic")
	}
}

func TestFingerprintNormalization(t *testing.T) {
	base := record("2025-01-15", "50.00", "Whole Foods")

	tests := []struct {
		name          string
		other         domain.TransactionRecord
		shouldCollide bool
	}{
		{name: "case differences collide", other: record("2025-01-15", "50.00", "WHOLE FOODS"), shouldCollide: true},
		{name: "edge whitespace collides", other: record("2025-01-15", "50.00", "  Whole Foods  "), shouldCollide: true},
		{name: "trailing zeros collide", other: record("2025-01-15", "50", "Whole Foods"), shouldCollide: true},
		{name: "different date distinct", other: record("2025-01-16", "50.00", "Whole Foods"), shouldCollide: false},
		{name: "different amount distinct", other: record("2025-01-15", "51.00", "Whole Foods"), shouldCollide: false},
		{name: "different description distinct", other: record("2025-01-15", "50.00", "Target"), shouldCollide: false},
		{name: "internal whitespace preserved", other: record("2025-01-15", "50.00", "Whole  Foods"), shouldCollide: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collision := Fingerprint(base) == Fingerprint(tt.other)
			if collision != tt.shouldCollide {
				t.Errorf("collision = %v, want %v", collision, tt.shouldCollide)
			}
		})
	}
}

func TestFingerprintIgnoresExternalID(t *testing.T) {
	// Re-downloads where the bank reissued FITIDs must still collide.
	a := record("2025-01-15", "50.00", "Whole Foods")
	a.ExternalID = "acc-fit-1"
	b := record("2025-01-15", "50.00", "Whole Foods")
	b.ExternalID = "acc-fit-999"

	if Fingerprint(a) != Fingerprint(b) {
		t.Error("Fingerprint() should not depend on the external ID")
	}
}

func TestNewState(t *testing.T) {
	state := NewState()

	if state.Version != CurrentVersion {
		t.Errorf("NewState() version = %d, want %d", state.Version, CurrentVersion)
	}
	if state.Fingerprints == nil {
		t.Error("NewState() fingerprints map is nil")
	}
	if state.TotalFingerprints() != 0 {
		t.Errorf("NewState() TotalFingerprints() = %d, want 0", state.TotalFingerprints())
	}
}

func TestRecordAndIsDuplicate(t *testing.T) {
	state := NewState()
	fp := "abc123"
	ts := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)

	if state.IsDuplicate(fp) {
		t.Error("IsDuplicate() returned true for non-existent fingerprint")
	}

	if err := state.Record(fp, "acc-txn-1", ts); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if !state.IsDuplicate(fp) {
		t.Error("IsDuplicate() returned false for recorded fingerprint")
	}

	rec := state.Fingerprints[fp]
	if rec.Count != 1 || !rec.FirstSeen.Equal(ts) || !rec.LastSeen.Equal(ts) {
		t.Errorf("Record() initial record = %+v", rec)
	}
	if rec.ExternalID != "acc-txn-1" {
		t.Errorf("Record() externalID = %q", rec.ExternalID)
	}

	// Re-observation updates lastSeen and count but keeps firstSeen and the
	// original external ID.
	ts2 := ts.Add(24 * time.Hour)
	if err := state.Record(fp, "acc-txn-2", ts2); err != nil {
		t.Fatalf("Record() error on re-observation = %v", err)
	}

	rec = state.Fingerprints[fp]
	if rec.Count != 2 {
		t.Errorf("Count after re-observation = %d, want 2", rec.Count)
	}
	if !rec.FirstSeen.Equal(ts) {
		t.Errorf("FirstSeen changed to %v", rec.FirstSeen)
	}
	if !rec.LastSeen.Equal(ts2) {
		t.Errorf("LastSeen = %v, want %v", rec.LastSeen, ts2)
	}
	if rec.ExternalID != "acc-txn-1" {
		t.Errorf("ExternalID changed to %q", rec.ExternalID)
	}
}

func TestRecordErrors(t *testing.T) {
	state := NewState()
	ts := time.Now()

	if err := state.Record("", "acc-txn-1", ts); err == nil {
		t.Error("Record() accepted empty fingerprint")
	}
	if err := state.Record("abc123", "", ts); err == nil {
		t.Error("Record() accepted empty external ID")
	}
}

func TestFilter(t *testing.T) {
	state := NewState()
	seen := record("2025-01-15", "50.00", "Whole Foods")
	if err := state.Record(Fingerprint(seen), "acc-1", time.Now()); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	fresh, duplicates := state.Filter([]domain.TransactionRecord{
		seen,
		record("2025-01-16", "12.00", "Coffee"),
	})

	if len(fresh) != 1 || fresh[0].Description != "Coffee" {
		t.Errorf("Filter() fresh = %+v", fresh)
	}
	if len(duplicates) != 1 || duplicates[0].Description != "Whole Foods" {
		t.Errorf("Filter() duplicates = %+v", duplicates)
	}
}

func TestSaveAndLoadState(t *testing.T) {
	stateFile := filepath.Join(t.TempDir(), "state.json")

	original := NewState()
	ts := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)
	original.Record("abc123", "acc-txn-1", ts)
	original.Record("def456", "acc-txn-2", ts)

	if err := SaveState(original, stateFile); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}

	loaded, err := LoadState(stateFile)
	if err != nil {
		t.Fatalf("LoadState() error = %v", err)
	}

	if loaded.Version != CurrentVersion {
		t.Errorf("LoadState() version = %d", loaded.Version)
	}
	if loaded.TotalFingerprints() != 2 {
		t.Errorf("LoadState() TotalFingerprints() = %d, want 2", loaded.TotalFingerprints())
	}

	rec := loaded.Fingerprints["abc123"]
	if rec == nil {
		t.Fatal("LoadState() missing fingerprint abc123")
	}
	if rec.ExternalID != "acc-txn-1" || rec.Count != 1 {
		t.Errorf("LoadState() record = %+v", rec)
	}
}

func TestLoadStateFileNotExists(t *testing.T) {
	_, err := LoadState(filepath.Join(t.TempDir(), "nonexistent.json"))
	if !os.IsNotExist(err) {
		t.Errorf("LoadState() error = %v, want os.IsNotExist", err)
	}
}

func TestLoadStateCorruption(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "truncated JSON", content: `{"version":1,"fingerprints":{`, wantErr: "failed to parse state file"},
		{name: "not JSON at all", content: `not valid json`, wantErr: "failed to parse state file"},
		{name: "empty file", content: ``, wantErr: "failed to parse state file"},
		{name: "future version", content: `{"version":2,"fingerprints":{}}`, wantErr: "unsupported state file version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stateFile := filepath.Join(t.TempDir(), "state.json")
			if err := os.WriteFile(stateFile, []byte(tt.content), 0644); err != nil {
				t.Fatalf("write fixture: %v", err)
			}

			_, err := LoadState(stateFile)
			if err == nil {
				t.Fatal("LoadState() succeeded on corrupted file")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadState() error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadStateMissingFingerprintsField(t *testing.T) {
	stateFile := filepath.Join(t.TempDir(), "state.json")
	content := `{"version":1,"metadata":{"lastUpdated":"2025-01-15T10:30:00Z","totalFingerprints":0}}`
	if err := os.WriteFile(stateFile, []byte(content), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	state, err := LoadState(stateFile)
	if err != nil {
		t.Fatalf("LoadState() error = %v", err)
	}
	if state.Fingerprints == nil {
		t.Error("LoadState() did not initialize nil fingerprints map")
	}
}

func TestSaveStateCreatesDirectory(t *testing.T) {
	stateFile := filepath.Join(t.TempDir(), "nested", "dir", "state.json")

	if err := SaveState(NewState(), stateFile); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}
	if _, err := os.Stat(stateFile); os.IsNotExist(err) {
		t.Error("SaveState() did not create file")
	}
}

func TestSaveStateAtomic(t *testing.T) {
	dir := t.TempDir()
	stateFile := filepath.Join(dir, "state.json")

	state := NewState()
	state.Record("abc123", "acc-txn-1", time.Now())
	if err := SaveState(state, stateFile); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tmp") {
			t.Errorf("SaveState() left temp file behind: %s", entry.Name())
		}
	}
}
