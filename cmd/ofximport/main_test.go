package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rumor-ml/ofximport/internal/dedup"
	"github.com/rumor-ml/ofximport/internal/output"
	"github.com/rumor-ml/ofximport/internal/scanner"
	"github.com/rumor-ml/ofximport/internal/store"
)

// sampleQFX exercises the messy shapes real exports have: SGML header,
// unclosed leaf tags, HTML entities, and timezone-qualified timestamps.
const sampleQFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240301120000
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>021000021
<ACCTID>000111222
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240201
<DTEND>20240229
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240203120000[-5:EST]
<TRNAMT>-42.17
<FITID>2024020301
<NAME>GROCERY MART &amp; DELI
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240215
<TRNAMT>2500.00
<FITID>2024021501
<MEMO>PAYROLL DEPOSIT
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>2457.83
<DTASOF>20240229
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>
`

// setFlags points the package-level flag values at test locations and
// restores them when the test ends.
func setFlags(t *testing.T, overrides map[*string]string) {
	t.Helper()
	for ptr, value := range overrides {
		old := *ptr
		*ptr = value
		t.Cleanup(func() { *ptr = old })
	}
}

func setBoolFlags(t *testing.T, overrides map[*bool]bool) {
	t.Helper()
	for ptr, value := range overrides {
		old := *ptr
		*ptr = value
		t.Cleanup(func() { *ptr = old })
	}
}

func writeStatementTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "first_bank", "000111222")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "feb.qfx"), []byte(sampleQFX), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestRunImportEndToEnd(t *testing.T) {
	root := writeStatementTree(t)
	workDir := t.TempDir()
	outPath := filepath.Join(workDir, "export.json")
	statePath := filepath.Join(workDir, "state.json")
	dbPath := filepath.Join(workDir, "transactions.db")

	setFlags(t, map[*string]string{
		input:      root,
		outputFile: outPath,
		stateFile:  statePath,
		dbFile:     dbPath,
		groupID:    "batch-1",
	})
	setBoolFlags(t, map[*bool]bool{verbose: true})

	if err := runImport(context.Background()); err != nil {
		t.Fatalf("runImport: %v", err)
	}

	export, err := output.LoadExport(outPath)
	if err != nil {
		t.Fatalf("LoadExport: %v", err)
	}
	if export.GroupID != "batch-1" {
		t.Errorf("GroupID = %q; want batch-1", export.GroupID)
	}
	if len(export.Transactions) != 2 {
		t.Fatalf("len(Transactions) = %d; want 2", len(export.Transactions))
	}

	first := export.Transactions[0]
	if first.ExternalID != "first-bank-000111222-2024020301" {
		t.Errorf("ExternalID = %q", first.ExternalID)
	}
	if first.Description != "GROCERY MART & DELI" {
		t.Errorf("Description = %q; want entities unescaped", first.Description)
	}
	if first.Date != "2024-02-03" {
		t.Errorf("Date = %q; want 2024-02-03", first.Date)
	}
	if first.Category != "groceries" {
		t.Errorf("Category = %q; want groceries from embedded rules", first.Category)
	}
	if export.Summary.NetTotal.String() != "2457.83" {
		t.Errorf("NetTotal = %s; want 2457.83", export.Summary.NetTotal)
	}

	state, err := dedup.LoadState(statePath)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if state.TotalFingerprints() != 2 {
		t.Errorf("TotalFingerprints = %d; want 2", state.TotalFingerprints())
	}

	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer db.Close()
	count, err := db.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Errorf("database rows = %d; want 2", count)
	}
}

func TestRunImportSecondRunDeduplicates(t *testing.T) {
	root := writeStatementTree(t)
	workDir := t.TempDir()
	outPath := filepath.Join(workDir, "export.json")
	statePath := filepath.Join(workDir, "state.json")

	setFlags(t, map[*string]string{
		input:      root,
		outputFile: outPath,
		stateFile:  statePath,
		groupID:    "batch-1",
	})

	if err := runImport(context.Background()); err != nil {
		t.Fatalf("first runImport: %v", err)
	}
	if err := runImport(context.Background()); err != nil {
		t.Fatalf("second runImport: %v", err)
	}

	export, err := output.LoadExport(outPath)
	if err != nil {
		t.Fatalf("LoadExport: %v", err)
	}
	// every transaction was already fingerprinted, so the second run
	// writes an empty batch
	if len(export.Transactions) != 0 {
		t.Errorf("len(Transactions) = %d after replay; want 0", len(export.Transactions))
	}
}

func TestRunImportDryRunWritesNothing(t *testing.T) {
	root := writeStatementTree(t)
	workDir := t.TempDir()
	outPath := filepath.Join(workDir, "export.json")

	setFlags(t, map[*string]string{
		input:      root,
		outputFile: outPath,
	})
	setBoolFlags(t, map[*bool]bool{dryRun: true})

	if err := runImport(context.Background()); err != nil {
		t.Fatalf("runImport: %v", err)
	}
	if _, err := os.Stat(outPath); !os.IsNotExist(err) {
		t.Errorf("dry run wrote %s", outPath)
	}
}

func TestRunImportEmptyDirectory(t *testing.T) {
	setFlags(t, map[*string]string{input: t.TempDir()})

	if err := runImport(context.Background()); err == nil {
		t.Fatal("expected error for directory with no statements")
	}
}

func TestDiscoverSingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "standalone.qfx")
	if err := os.WriteFile(path, []byte(sampleQFX), 0o644); err != nil {
		t.Fatal(err)
	}

	files, err := discover(path)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(files) != 1 || files[0].Path != path {
		t.Fatalf("files = %+v; want the single input file", files)
	}
}

func TestDiscoverMissingPath(t *testing.T) {
	if _, err := discover("/nonexistent/statements"); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestAccountIDForFallsBackToFilename(t *testing.T) {
	path := filepath.Join(t.TempDir(), "My Checking 1234.qfx")
	if err := os.WriteFile(path, []byte(sampleQFX), 0o644); err != nil {
		t.Fatal(err)
	}

	files, err := discover(path)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	id, err := accountIDFor(files[0])
	if err != nil {
		t.Fatalf("accountIDFor: %v", err)
	}
	if id != "my-checking-1234" {
		t.Errorf("accountID = %q; want my-checking-1234", id)
	}
}

func TestAccountIDForHonorsOverride(t *testing.T) {
	setFlags(t, map[*string]string{account: "override-acct"})

	id, err := accountIDFor(scanner.ScanResult{Path: "/tmp/whatever.qfx"})
	if err != nil {
		t.Fatalf("accountIDFor: %v", err)
	}
	if id != "override-acct" {
		t.Errorf("accountID = %q; want override-acct", id)
	}
}
