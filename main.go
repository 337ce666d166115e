package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"iris-scraper/browser"
	"iris-scraper/config"
	"iris-scraper/downloader"
	"iris-scraper/scraper/iris"
	"iris-scraper/services"
	"iris-scraper/storage"
	"iris-scraper/utils"
)

func main() {
	logger := utils.NewLogger()
	cfg := config.Load()
	if cfg.Debug {
		logger.EnableDebug()
	}

	logger.Info("=== Iris Catalog Scraper starting ===")
	logger.Info("Config — catalog: %s | sink: %s | max cycles: %d | concurrency: %d | rate: %dms",
		cfg.CatalogURL, cfg.SinkDriver, cfg.MaxCycles, cfg.MaxConcurrency, cfg.RateLimitMs)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.RunDeadlineMin > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.RunDeadlineMin)*time.Minute)
		defer cancel()
	}

	sink, err := openSink(cfg, logger)
	if err != nil {
		logger.Error("Failed to open %s sink: %v", cfg.SinkDriver, err)
		os.Exit(1)
	}
	defer sink.Close()

	csvWriter, err := storage.NewCSVWriter(cfg.CSVOutputPath)
	if err != nil {
		logger.Error("Failed to create CSV writer: %v", err)
		os.Exit(1)
	}
	defer csvWriter.Close()

	session, err := browser.NewSession(cfg, logger)
	if err != nil {
		logger.Error("Failed to launch browser: %v", err)
		os.Exit(1)
	}
	defer session.Close()

	page, closePage := session.NewPage()
	defer closePage()

	auth := iris.NewAuthenticator(cfg, logger)
	creds := iris.Credentials{Email: cfg.Email, Password: cfg.Password}
	if err := auth.Login(ctx, page, creds); err != nil {
		logger.Error("Authentication failed: %v", err)
		os.Exit(1)
	}

	orch, err := services.NewOrchestrator(cfg, logger, sink)
	if err != nil {
		logger.Error("Failed to build orchestrator: %v", err)
		os.Exit(1)
	}
	logger.Info("Run %s", orch.RunID())

	records, err := orch.CollectCatalog(ctx, page)
	if err != nil {
		logger.Error("Catalog traversal interrupted: %v", err)
	}
	if len(records) == 0 {
		logger.Error("No catalog records were collected. Exiting.")
		os.Exit(1)
	}
	logger.Info("Catalog phase finished with %d records — exporting CSV...", len(records))

	if err := csvWriter.Export(records); err != nil {
		logger.Error("CSV export failed: %v", err)
	} else {
		logger.Info("Catalog exported to %s", cfg.CSVOutputPath)
	}

	pages := []iris.Accessor{page}
	for i := 1; i < cfg.MaxConcurrency; i++ {
		extra, closeExtra := session.NewPage()
		defer closeExtra()
		pages = append(pages, extra)
	}

	summary := orch.EnrichDetails(ctx, pages, records)
	logger.Info("Detail phase done in %s — %d succeeded, %d failed, %d skipped, %d abandoned",
		summary.Elapsed.Round(time.Second), summary.Succeeded, summary.Failed,
		summary.Skipped, summary.Abandoned)
	for _, f := range summary.Failures {
		logger.Warn("  failed %s: %s", f.IdentityKey, f.Reason)
	}

	if cfg.DownloadAssets {
		dl := downloader.New(cfg, logger)
		saved := dl.FetchAll(ctx, orch.Details())
		logger.Info("Downloaded %d asset files to %s", saved, cfg.DownloadDir)
	}

	stored, err := sink.FetchRecords(ctx)
	if err != nil {
		logger.Error("Failed to fetch records from sink for the report: %v", err)
		stored = records
	}

	reportSvc := services.NewReportService(logger)
	report := reportSvc.Generate(stored, orch.Details())
	reportSvc.Print(report)

	fmt.Printf("  Done. Catalog CSV → %s | records → %s sink\n\n",
		cfg.CSVOutputPath, cfg.SinkDriver)
}

// openSink picks the persistence backend from config. SQLite is the default
// because it needs nothing running; Postgres is for shared databases.
func openSink(cfg *config.Config, logger *utils.Logger) (storage.RecordSink, error) {
	switch cfg.SinkDriver {
	case "postgres":
		logger.Info("[storage] Using PostgreSQL at %s:%s/%s", cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDB)
		return storage.NewPostgresWriter(cfg.DSN())
	default:
		logger.Info("[storage] Using SQLite at %s", cfg.SQLitePath)
		return storage.NewSQLiteWriter(cfg.SQLitePath)
	}
}
