package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/finum/finum/internal/analytics"
	"github.com/finum/finum/internal/archive"
	"github.com/finum/finum/internal/fx"
	"github.com/finum/finum/internal/importer"
	infraBQ "github.com/finum/finum/internal/infra/bigquery"
	"github.com/finum/finum/internal/ledger"
	"github.com/finum/finum/internal/logger"
	"github.com/finum/finum/internal/notionsync"
	"github.com/finum/finum/internal/patterns"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "import":
		runImport(log)
	case "reconcile":
		runReconcile(log)
	case "refresh":
		runRefresh(log)
	case "patterns":
		runPatterns(log)
	case "runrate":
		runRunRate(log)
	case "notion":
		runNotion(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Finum CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  import     Import a CSV bank export")
	fmt.Println("  reconcile  Recompute bucket spent aggregates")
	fmt.Println("  refresh    Re-run recurring pattern detection")
	fmt.Println("  patterns   Show stored patterns and blind spots")
	fmt.Println("  runrate    Show current month run-rate metrics")
	fmt.Println("  notion     Mirror budgets and subscriptions to Notion")
	fmt.Println("  help       Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func newRepo(ctx context.Context, log zerolog.Logger) *infraBQ.Repository {
	repo, err := infraBQ.NewRepository(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create repository")
	}
	return repo
}

func runImport(log zerolog.Logger) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	userID := fs.String("user", "", "user ID to import for")
	filePath := fs.String("file", "", "path to CSV export (date,amount,currency,merchant,category)")
	archiveBucket := fs.String("archive-bucket", os.Getenv("ARCHIVE_BUCKET"), "GCS bucket for raw import archiving (optional)")
	fs.Parse(os.Args[2:])

	if *userID == "" || *filePath == "" {
		log.Fatal().Msg("Usage: cli import -user ID -file PATH")
	}

	rows, raw, err := readCSV(*filePath)
	if err != nil {
		log.Fatal().Err(err).Str("file", *filePath).Msg("Failed to read CSV")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	if *archiveBucket != "" {
		objectName := archive.ObjectName(*userID, filepath.Base(*filePath), time.Now().UTC())
		if uri, err := archive.StoreImport(ctx, *archiveBucket, objectName, raw); err != nil {
			log.Warn().Err(err).Msg("Failed to archive import file")
		} else {
			log.Info().Str("gcs_uri", uri).Msg("Archived import file")
		}
	}

	repo := newRepo(ctx, log)
	defer repo.Close()

	ledgerSvc := ledger.NewService(repo, log)
	imp := importer.NewService(repo, fx.NewStaticConverter(fx.DefaultRates()), ledgerSvc, log)

	result, err := imp.Import(ctx, *userID, rows)
	if err != nil {
		log.Fatal().Err(err).Msg("Import failed")
	}

	fmt.Printf("Imported %d rows (%d duplicates skipped, %d errors)\n",
		result.Created, result.Duplicates, len(result.Errors))
	for _, rowErr := range result.Errors {
		fmt.Printf("  row %d: %s\n", rowErr.Index, rowErr.Reason)
	}
}

// readCSV parses a bank export. Expected columns:
// date (2006-01-02), amount, currency, merchant, category (optional).
// A header line is detected and skipped.
func readCSV(path string) ([]importer.Row, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	reader := csv.NewReader(bytes.NewReader(raw))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parsing CSV: %w", err)
	}

	var rows []importer.Row
	for i, record := range records {
		if len(record) < 4 {
			continue
		}
		date, err := time.Parse("2006-01-02", record[0])
		if err != nil {
			if i == 0 {
				// Header line.
				continue
			}
			// Keep the row; the importer reports the zero date.
		}
		amount, err := decimal.NewFromString(record[1])
		if err != nil {
			amount = decimal.Zero
		}
		row := importer.Row{
			Date:     date,
			Amount:   amount,
			Currency: record[2],
			Merchant: record[3],
		}
		if len(record) > 4 {
			row.Category = record[4]
		}
		rows = append(rows, row)
	}
	return rows, raw, nil
}

func runReconcile(log zerolog.Logger) {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	userID := fs.String("user", "", "user ID to reconcile")
	fs.Parse(os.Args[2:])

	if *userID == "" {
		log.Fatal().Msg("Error: -user is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo := newRepo(ctx, log)
	defer repo.Close()

	drifts, err := ledger.NewService(repo, log).Reconcile(ctx, *userID)
	if err != nil {
		log.Fatal().Err(err).Msg("Reconcile failed")
	}

	if len(drifts) == 0 {
		fmt.Println("All buckets consistent.")
		return
	}
	fmt.Printf("Repaired %d drifted buckets:\n", len(drifts))
	for _, d := range drifts {
		fmt.Printf("  %s: cached %s, actual %s\n", d.BucketID, d.Cached, d.Actual)
	}
}

func runRefresh(log zerolog.Logger) {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	userID := fs.String("user", "", "user ID to refresh")
	lookback := fs.Int("lookback", 0, "detection window in months (default 12)")
	fs.Parse(os.Args[2:])

	if *userID == "" {
		log.Fatal().Msg("Error: -user is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo := newRepo(ctx, log)
	defer repo.Close()

	detected, err := patterns.NewService(repo, log).Refresh(ctx, *userID, *lookback)
	if err != nil {
		log.Fatal().Err(err).Msg("Refresh failed")
	}

	fmt.Printf("Detected %d recurring patterns.\n", len(detected))
	for _, p := range detected {
		fmt.Printf("  %-30s %-10s avg %8s projected %10s/yr [%s]\n",
			p.MerchantNorm, p.Frequency, p.AvgAmount, p.ProjectedAnnual, p.Status)
	}
}

func runPatterns(log zerolog.Logger) {
	fs := flag.NewFlagSet("patterns", flag.ExitOnError)
	userID := fs.String("user", "", "user ID")
	lookback := fs.Int("lookback", 0, "blind-spot window in months (default 12)")
	fs.Parse(os.Args[2:])

	if *userID == "" {
		log.Fatal().Msg("Error: -user is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo := newRepo(ctx, log)
	defer repo.Close()

	result, err := patterns.NewService(repo, log).GetPatterns(ctx, *userID, *lookback)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get patterns")
	}

	fmt.Printf("=== Patterns (%d) ===\n", len(result.Patterns))
	for _, p := range result.Patterns {
		fmt.Printf("  %-30s %-10s avg %8s projected %10s/yr [%s]\n",
			p.MerchantNorm, p.Frequency, p.AvgAmount, p.ProjectedAnnual, p.Status)
	}

	if len(result.BlindSpots) > 0 {
		fmt.Printf("\n=== Blind spots (%d) ===\n", len(result.BlindSpots))
		for _, bs := range result.BlindSpots {
			fmt.Printf("  %-30s %d unassigned recurring transactions\n",
				bs.Pattern.MerchantNorm, bs.UnassignedCount)
		}
	}
}

func runRunRate(log zerolog.Logger) {
	fs := flag.NewFlagSet("runrate", flag.ExitOnError)
	userID := fs.String("user", "", "user ID")
	cash := fs.String("cash", "0", "current cash balance in EUR")
	fs.Parse(os.Args[2:])

	if *userID == "" {
		log.Fatal().Msg("Error: -user is required")
	}

	currentCash, err := decimal.NewFromString(*cash)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -cash value")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo := newRepo(ctx, log)
	defer repo.Close()

	metrics, err := analytics.NewService(repo).RunRate(ctx, *userID, currentCash)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to compute run rate")
	}

	fmt.Println("=== Current month ===")
	fmt.Printf("Day:            %d of %d\n", metrics.DayOfMonth, metrics.DaysInMonth)
	fmt.Printf("Spent MTD:      %s\n", metrics.SpentMTD)
	fmt.Printf("Daily run rate: %s\n", metrics.DailyRunRate)
	fmt.Printf("Projected EOM:  %s\n", metrics.ProjectedEOM)
	fmt.Printf("Monthly budget: %s (%.1f%% used)\n", metrics.TotalMonthlyBudget, metrics.PercentUsed)
	fmt.Printf("Runway:         %.1f months\n", float64(metrics.RunwayMonths))
	fmt.Printf("Health score:   %d\n", metrics.HealthScore)

	if len(metrics.TopCategories) > 0 {
		fmt.Println("\n=== Top categories ===")
		for _, c := range metrics.TopCategories {
			fmt.Printf("  %-20s %10s (%.1f%%)\n", c.Category, c.Spent, c.PercentOfTotal)
		}
	}

	if len(metrics.Buckets) > 0 {
		fmt.Println("\n=== Buckets ===")
		for _, b := range metrics.Buckets {
			fmt.Printf("  %-20s %s / %s [%s]\n", b.Name, b.Spent, b.Allocated, b.Status)
		}
	}
}

func runNotion(log zerolog.Logger) {
	fs := flag.NewFlagSet("notion", flag.ExitOnError)
	userID := fs.String("user", "", "user ID to sync")
	patternsDB := fs.String("patterns-db", os.Getenv("NOTION_PATTERNS_DB"), "Notion database ID for subscriptions")
	budgetsDB := fs.String("budgets-db", os.Getenv("NOTION_BUDGETS_DB"), "Notion database ID for budgets")
	dryRun := fs.Bool("dry-run", false, "log what would change without writing to Notion")
	fs.Parse(os.Args[2:])

	if *userID == "" {
		log.Fatal().Msg("Error: -user is required")
	}
	token := os.Getenv("NOTION_TOKEN")
	if token == "" {
		log.Fatal().Msg("Error: NOTION_TOKEN is required")
	}
	if *patternsDB == "" && *budgetsDB == "" {
		log.Fatal().Msg("Error: at least one of -patterns-db or -budgets-db is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo := newRepo(ctx, log)
	defer repo.Close()

	client := notionsync.NewNotionClient(token)

	if *patternsDB != "" {
		if err := notionsync.SyncPatterns(ctx, repo, client, *patternsDB, *userID, *dryRun); err != nil {
			log.Fatal().Err(err).Msg("Pattern sync failed")
		}
	}
	if *budgetsDB != "" {
		if err := notionsync.SyncBuckets(ctx, repo, client, *budgetsDB, *userID, *dryRun); err != nil {
			log.Fatal().Err(err).Msg("Bucket sync failed")
		}
	}

	fmt.Println("Notion sync completed.")
}
