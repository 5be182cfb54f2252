package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"leakwatch/internal/amqp"
	"leakwatch/internal/cache"
	"leakwatch/internal/config"
	"leakwatch/internal/engine"
	gexport "leakwatch/internal/export/google"
	"leakwatch/internal/log"
	"leakwatch/internal/reasoner"
	"leakwatch/internal/service"
	"leakwatch/internal/storage"
	"leakwatch/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig()).WithComponent(log.ComponentWorker)
	log.SetDefault(logger)

	logger.Info("Starting leakwatch-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The worker shares the SQLite database with the API server; a memory
	// backend would analyze an empty store.
	if err := storage.RunMigrations(cfg.SQLiteDBPath); err != nil {
		logger.Error("Database migration failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to open SQLite repository", log.FieldError, err.Error(), "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var explainer engine.Explainer
	if cfg.GeminiAPIKey != "" {
		gem, err := reasoner.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModels, cfg.ReasonTimeout,
			logger.WithComponent(log.ComponentReasoner))
		if err != nil {
			logger.Error("Failed to initialize Gemini reasoner", log.FieldError, err.Error())
			os.Exit(1)
		}
		explainer = gem
	} else {
		explainer = reasoner.Noop{}
		logger.Info("Gemini disabled - leaks carry heuristic explanations only")
	}

	var exporter service.ReportExporter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gexport.NewClient(ctx, gexport.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			OAuthClientFile: cfg.GoogleOAuthClientFile,
			OAuthTokenFile:  cfg.GoogleOAuthTokenFile,
			OAuthClientJSON: cfg.GoogleOAuthClientJSON,
			OAuthTokenJSON:  cfg.GoogleOAuthTokenJSON,
		}, logger.WithComponent(log.ComponentExport))
		if err != nil {
			logger.Error("Failed to initialize Google Sheets exporter", log.FieldError, err.Error())
			os.Exit(1)
		}
		exporter = client
		logger.Info("Google Sheets exporter initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	reports := cache.NewLRUCache[engine.Result](cfg.ReportCacheSize, cfg.ReportCacheTTL)
	cacheManager := cache.NewManager()
	cacheManager.Register(reports)
	cacheManager.StartCleanup(10 * time.Minute)
	defer cacheManager.Stop()

	analyzer := engine.NewAnalyzer(
		engine.NewClassifier(cfg.Thresholds()),
		explainer,
		cfg.ExplainLimit,
		logger.WithComponent(log.ComponentEngine))
	svc := service.NewAnalysisService(repo, analyzer, reports, exporter, logger)

	analysisWorker := worker.NewAnalysisWorker(svc, cfg.AnalysisInterval, cfg.AnalysisConcurrency, logger)

	// Consume on-demand analysis requests when a broker is configured.
	if cfg.AMQPURL != "" {
		go func() {
			err := amqp.ConsumeWithReconnect(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue,
				func(msg *amqp.AnalysisRequestMessage) error {
					return analysisWorker.HandleRequest(ctx, msg)
				})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", log.FieldError, err.Error())
				cancel()
			}
		}()
		logger.Info("Consuming analysis requests", "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - running periodic analysis only")
	}

	// Sweep all known users once on startup, then on the configured interval.
	logger.Info("Running initial analysis sweep...")
	if err := analysisWorker.AnalyzeAll(ctx); err != nil {
		logger.Error("Initial analysis sweep failed", log.FieldError, err.Error())
	}

	go func() {
		if err := analysisWorker.RunPeriodic(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Periodic analysis stopped", log.FieldError, err.Error())
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	cancel()
	logger.Info("Leakwatch-worker shutdown complete")
}
