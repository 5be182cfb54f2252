package main

import (
	"context"
	"net/http"
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
	apphttp "leakwatch/internal/http"
	"leakwatch/internal/log"
	"leakwatch/internal/reasoner"
	"leakwatch/internal/service"
	"leakwatch/internal/storage"
	"leakwatch/internal/storage/memory"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig()).WithComponent(log.ComponentApp)
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Choose data backend (default: memory).
	var store service.Store
	switch cfg.DataBackend {
	case "sqlite":
		if err := storage.RunMigrations(cfg.SQLiteDBPath); err != nil {
			logger.Error("Database migration failed", log.FieldError, err.Error())
			os.Exit(1)
		}
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			logger.Error("Failed to open SQLite repository", log.FieldError, err.Error(), "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		store = repo
		logger.Info("Initialized sqlite backend", "path", cfg.SQLiteDBPath)
	default:
		store = memory.NewStore()
		logger.Info("Initialized memory backend")
	}
	defer store.Close()

	// The Gemini reasoner is optional; without a key leaks keep their
	// heuristic explanations.
	var explainer engine.Explainer
	if cfg.GeminiAPIKey != "" {
		gem, err := reasoner.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModels, cfg.ReasonTimeout,
			logger.WithComponent(log.ComponentReasoner))
		if err != nil {
			logger.Error("Failed to initialize Gemini reasoner", log.FieldError, err.Error())
			os.Exit(1)
		}
		explainer = gem
		logger.Info("Gemini reasoner initialized", log.FieldModel, cfg.GeminiModels[0])
	} else {
		explainer = reasoner.Noop{}
		logger.Info("Gemini disabled - leaks carry heuristic explanations only")
	}

	// Sheets export is optional and best effort.
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

	// When a broker is configured the API enqueues analysis requests and the
	// worker binary consumes them; otherwise analysis runs inline.
	var publisher apphttp.AnalysisPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, analyzing inline", log.FieldError, err.Error())
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
			logger.Info("AMQP publisher initialized", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled - analysis runs inline")
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
	svc := service.NewAnalysisService(store, analyzer, reports, exporter, logger)

	srv := apphttp.NewServer(":"+cfg.Port, svc, publisher, logger.WithComponent(log.ComponentHTTP))
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		cancel()
	}()

	logger.Info("Starting leakwatch server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
