package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/rumor-ml/ofximport/internal/currency"
	"github.com/rumor-ml/ofximport/internal/dedup"
	"github.com/rumor-ml/ofximport/internal/domain"
	"github.com/rumor-ml/ofximport/internal/output"
	"github.com/rumor-ml/ofximport/internal/pipeline"
	"github.com/rumor-ml/ofximport/internal/rules"
	"github.com/rumor-ml/ofximport/internal/scanner"
	"github.com/rumor-ml/ofximport/internal/server"
	"github.com/rumor-ml/ofximport/internal/store"
	"github.com/rumor-ml/ofximport/internal/transform"
	"github.com/rumor-ml/ofximport/internal/ui"
	"github.com/rumor-ml/ofximport/internal/validate"
)

const version = "0.1.0"

var (
	versionFlag = flag.Bool("version", false, "Show version")

	// Import flags
	input   = flag.String("input", "", "Statement file or directory of statements (required unless -serve)")
	account = flag.String("account", "", "Account ID override (default: derived from directory layout or filename)")
	groupID = flag.String("group", "", "Import group ID (default: a new UUID per run)")
	dryRun  = flag.Bool("dry-run", false, "Show what would be parsed without writing")
	verbose = flag.Bool("verbose", false, "Show detailed parsing logs")

	// Currency flags
	fallbackCurrency = flag.String("currency", "USD", "Fallback currency for unknown CURDEF codes")
	currencyFile     = flag.String("currencies", "", "Currency table file (default: embedded ISO 4217 table)")

	// Output flags
	outputFile = flag.String("output", "", "Output JSON file (default: stdout)")
	mergeMode  = flag.Bool("merge", false, "Merge with existing output file")
	dbFile     = flag.String("db", "", "SQLite database to upsert transactions into")
	stateFile  = flag.String("state", "", "Deduplication state file")
	rulesFile  = flag.String("rules", "", "Category rules file (default: embedded rule table)")
	noRules    = flag.Bool("no-rules", false, "Skip categorization entirely")

	// Server flags
	serve     = flag.Bool("serve", false, "Run the import API server instead of a one-shot import")
	addr      = flag.String("addr", ":8080", "Server listen address")
	projectID = flag.String("project", "", "Firebase project ID (required with -serve)")
	credsFile = flag.String("creds", "", "Service account credentials file (default: application default credentials)")
)

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `ofximport - OFX/QFX statement importer

Usage:
  ofximport [flags]

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprint(os.Stderr, `
Examples:
  # Parse one statement to stdout
  ofximport -input statement.qfx

  # Parse a statement tree with dedup state and merge into an export
  ofximport -input ~/statements -state state.json -output budget.json -merge

  # Load transactions into a local database
  ofximport -input ~/statements -db transactions.db

  # Run the upload API
  ofximport -serve -project my-project

`)
	}

	flag.Parse()

	if *versionFlag {
		fmt.Printf("ofximport version %s\n", version)
		os.Exit(0)
	}

	if *serve {
		if *projectID == "" {
			fmt.Fprintf(os.Stderr, "Error: -project flag is required with -serve\n\n")
			flag.Usage()
			os.Exit(1)
		}
	} else if *input == "" {
		fmt.Fprintf(os.Stderr, "Error: -input flag is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serve {
		return runServer(ctx)
	}
	return runImport(ctx)
}

func runServer(ctx context.Context) error {
	srv, err := server.New(ctx, server.Config{
		ProjectID:        *projectID,
		CredentialsFile:  *credsFile,
		CurrencyFile:     *currencyFile,
		FallbackCurrency: *fallbackCurrency,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "Listening on %s\n", *addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}

func runImport(ctx context.Context) error {
	if !*verbose {
		ui.Header("Importing Financial Statements")
		ui.Step(1, 4, "Discovering statement files")
	}

	files, err := discover(*input)
	if err != nil {
		return err
	}

	if *verbose {
		fmt.Fprintf(os.Stderr, "Found %d statement files\n", len(files))
		for _, f := range files {
			fmt.Fprintf(os.Stderr, "  - %s (institution: %s, account: %s)\n",
				f.Path, f.Metadata.Institution, f.Metadata.AccountNumber)
		}
	} else {
		ui.Success("Found %d statement files", len(files))
	}

	if *dryRun {
		for _, f := range files {
			ui.Info("would parse %s", f.Path)
		}
		fmt.Printf("Dry run complete. Would process %d files.\n", len(files))
		return nil
	}

	if len(files) == 0 {
		return fmt.Errorf("no statement files found in %s\n\nPlease check:\n  - The path is correct\n  - Files have .qfx or .ofx extensions\n  - You have read permissions on the directory and files\n\nRun with -verbose to see file discovery details", *input)
	}

	currencies, err := loadCurrencies()
	if err != nil {
		return err
	}

	group := *groupID
	if group == "" {
		group = uuid.New().String()
	}

	if !*verbose {
		ui.Step(2, 4, "Parsing statements")
	}

	var records []domain.TransactionRecord
	for i, f := range files {
		accountID, err := accountIDFor(f)
		if err != nil {
			return fmt.Errorf("cannot derive account for %s (use -account to override): %w", f.Path, err)
		}

		if *verbose {
			fmt.Fprintf(os.Stderr, "  Parsing %s as account %s\n", f.Path, accountID)
		} else {
			fmt.Fprintf(os.Stderr, "\r  Progress: %d/%d files...", i+1, len(files))
		}

		result, err := pipeline.ParseFile(ctx, f.Path, pipeline.Options{
			AccountID:  accountID,
			GroupID:    group,
			Currencies: currencies,
		})
		if err != nil {
			return fmt.Errorf("parse failed for file %d of %d: %w", i+1, len(files), err)
		}

		if *verbose {
			fmt.Fprintf(os.Stderr, "    %d transactions, %s to %s, net %s\n",
				result.Summary.Count, result.Summary.StartDate, result.Summary.EndDate,
				result.Summary.NetTotal)
		}
		records = append(records, result.Records...)
	}
	if !*verbose {
		fmt.Fprintf(os.Stderr, "\r  Progress: %d/%d files - Complete!\n", len(files), len(files))
	}

	if !*verbose {
		ui.Step(3, 4, "Deduplicating and validating")
	}

	records, err = deduplicate(records)
	if err != nil {
		return err
	}

	if err := categorize(records); err != nil {
		return err
	}

	validation := validate.ValidateRecords(records)
	if !validation.Valid() {
		for i, e := range validation.Errors {
			if !*verbose && i >= 5 {
				ui.Error("... and %d more errors (run with -verbose to see all)", len(validation.Errors)-5)
				break
			}
			ui.Error("%s [%s]: %s", e.ID, e.Field, e.Message)
		}
		return fmt.Errorf("validation failed with %d errors", len(validation.Errors))
	}
	for _, w := range validation.Warnings {
		if *verbose {
			fmt.Fprintf(os.Stderr, "  warning: %s [%s]: %s\n", w.ID, w.Field, w.Message)
		}
	}

	if !*verbose {
		ui.Step(4, 4, "Writing output")
	}

	if *dbFile != "" {
		if err := writeDatabase(ctx, records); err != nil {
			return err
		}
	}

	export := output.NewExport(group, records)
	if err := output.WriteExportToFile(export, output.WriteOptions{
		MergeMode: *mergeMode,
		FilePath:  *outputFile,
	}); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if *outputFile != "" {
		fmt.Fprintf(os.Stderr, "\n")
		ui.Success("Wrote %d transactions to %s", len(records), *outputFile)
	}

	return nil
}

// discover resolves -input to statement files: a single file is taken as-is,
// a directory is scanned for parseable statements.
func discover(path string) ([]scanner.ScanResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read input %s: %w", path, err)
	}

	if !info.IsDir() {
		return []scanner.ScanResult{{
			Path:     path,
			Metadata: scanner.Metadata{FilePath: path, DetectedAt: time.Now()},
		}}, nil
	}

	files, err := scanner.New(path).Scan()
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory %s: %w", path, err)
	}
	return files, nil
}

func loadCurrencies() (*currency.Set, error) {
	if *currencyFile != "" {
		set, err := currency.LoadFromFile(*currencyFile, *fallbackCurrency)
		if err != nil {
			return nil, fmt.Errorf("failed to load currency table: %w", err)
		}
		return set, nil
	}
	set, err := currency.LoadEmbedded(*fallbackCurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded currency table: %w", err)
	}
	return set, nil
}

// accountIDFor picks the account identity: explicit -account flag first,
// then the {institution}/{account} directory layout, then the filename stem.
func accountIDFor(f scanner.ScanResult) (string, error) {
	if *account != "" {
		return *account, nil
	}
	if id, err := f.Metadata.AccountID(); err == nil {
		return id, nil
	}
	base := filepath.Base(f.Path)
	stem := base[:len(base)-len(filepath.Ext(base))]
	return transform.SlugifyAccount(stem)
}

// deduplicate filters records already recorded in the state file and records
// the fresh ones. State is saved before the caller writes output, so a failed
// write never reprocesses transactions as new on retry.
func deduplicate(records []domain.TransactionRecord) ([]domain.TransactionRecord, error) {
	if *stateFile == "" {
		return records, nil
	}

	state, err := dedup.LoadState(*stateFile)
	if err != nil {
		if !os.IsNotExist(err) {
			// A present but unreadable state file must not be clobbered:
			// losing it reprocesses every transaction as new.
			return nil, fmt.Errorf("failed to load state file %q (fix or remove it before retrying): %w", *stateFile, err)
		}
		state = dedup.NewState()
		if *verbose {
			fmt.Fprintf(os.Stderr, "State file not found, starting fresh\n")
		}
	}

	fresh, duplicates := state.Filter(records)
	now := time.Now()
	for _, record := range fresh {
		if err := state.Record(dedup.Fingerprint(record), record.ExternalID, now); err != nil {
			return nil, fmt.Errorf("failed to record fingerprint for %s: %w", record.ExternalID, err)
		}
	}

	if len(duplicates) > 0 {
		fmt.Fprintf(os.Stderr, "  Skipped %d duplicate transactions\n", len(duplicates))
		if *verbose {
			for i, d := range duplicates {
				if i >= 5 {
					fmt.Fprintf(os.Stderr, "    ... and %d more\n", len(duplicates)-5)
					break
				}
				fmt.Fprintf(os.Stderr, "    - %s %s %s\n", d.Date, d.Amount, d.Description)
			}
		}
	}

	if err := dedup.SaveState(state, *stateFile); err != nil {
		return nil, fmt.Errorf("failed to save state file before writing output: %w", err)
	}
	if *verbose {
		fmt.Fprintf(os.Stderr, "Saved state with %d fingerprints to %s\n", state.TotalFingerprints(), *stateFile)
	}

	return fresh, nil
}

// categorize assigns categories from the rule table and reports coverage.
// Low coverage is a hint to add rules, not a failure.
func categorize(records []domain.TransactionRecord) error {
	if *noRules || len(records) == 0 {
		return nil
	}

	var engine *rules.Engine
	var err error
	if *rulesFile != "" {
		engine, err = rules.LoadFromFile(*rulesFile)
	} else {
		engine, err = rules.LoadEmbedded()
	}
	if err != nil {
		return err
	}

	stats := engine.Apply(records)
	total := stats.Matched + stats.Unmatched
	if total == 0 {
		return nil
	}

	coverage := float64(stats.Matched) / float64(total) * 100
	if *verbose {
		fmt.Fprintf(os.Stderr, "Rule coverage: %.1f%% (%d/%d matched)\n", coverage, stats.Matched, total)
		for _, example := range stats.UnmatchedExamples {
			fmt.Fprintf(os.Stderr, "  unmatched: %s\n", example)
		}
	} else if coverage < 80.0 {
		ui.Warning("Rule coverage %.1f%% (%d uncategorized, run with -verbose for examples)", coverage, stats.Unmatched)
	}

	return nil
}

func writeDatabase(ctx context.Context, records []domain.TransactionRecord) error {
	db, err := store.Open(*dbFile)
	if err != nil {
		return fmt.Errorf("failed to open database %s: %w", *dbFile, err)
	}

	upsertErr := db.UpsertAll(ctx, records)
	closeErr := db.Close()
	if upsertErr != nil {
		return fmt.Errorf("failed to write transactions to %s: %w", *dbFile, upsertErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close database %s: %w", *dbFile, closeErr)
	}

	if *verbose {
		fmt.Fprintf(os.Stderr, "Upserted %d transactions into %s\n", len(records), *dbFile)
	}
	return nil
}
