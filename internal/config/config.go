package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"leakwatch/internal/engine"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Gemini reasoner
	GeminiAPIKey  string
	GeminiModels  []string
	ExplainLimit  int
	ReasonTimeout time.Duration

	// Google Sheets export
	GoogleSpreadsheetID   string
	GoogleSheetName       string
	GoogleOAuthClientFile string
	GoogleOAuthTokenFile  string
	GoogleOAuthClientJSON string
	GoogleOAuthTokenJSON  string

	// Worker
	AnalysisInterval    time.Duration
	AnalysisConcurrency int

	// Report cache
	ReportCacheSize int
	ReportCacheTTL  time.Duration

	// Backend selection
	DataBackend string

	// Classifier thresholds
	IntervalTolerancePct   float64
	IntervalToleranceDays  float64
	MaxGapCV               float64
	MaxAmountCV            float64
	PriceCreepMinRisePct   float64
	SmallTicketMaxCents    int64
	HighFrequencyPer30Days float64
	MaterialityMinCents    int64
	IrregularSavingFactor  float64
}

func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "8081"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/leakwatch.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "leakwatch"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "analysis_requests"),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModels:  getEnvList("GEMINI_MODELS", []string{"gemini-2.0-flash", "gemini-2.0-flash-lite"}),
		ExplainLimit:  getEnvInt("EXPLAIN_CONCURRENCY", 4),
		ReasonTimeout: getEnvDuration("REASON_TIMEOUT", 20*time.Second),

		GoogleSpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:       getEnv("GOOGLE_SHEET_NAME", ""),
		GoogleOAuthClientFile: getEnv("GOOGLE_OAUTH_CLIENT_FILE", ""),
		GoogleOAuthTokenFile:  getEnv("GOOGLE_OAUTH_TOKEN_FILE", ""),
		GoogleOAuthClientJSON: getEnv("GOOGLE_OAUTH_CLIENT_JSON", ""),
		GoogleOAuthTokenJSON:  getEnv("GOOGLE_OAUTH_TOKEN_JSON", ""),

		AnalysisInterval:    getEnvDuration("ANALYSIS_INTERVAL", 6*time.Hour),
		AnalysisConcurrency: getEnvInt("ANALYSIS_CONCURRENCY", 4),

		ReportCacheSize: getEnvInt("REPORT_CACHE_SIZE", 256),
		ReportCacheTTL:  getEnvDuration("REPORT_CACHE_TTL", 15*time.Minute),

		DataBackend: getEnv("DATA_BACKEND", "memory"),

		IntervalTolerancePct:   getEnvFloat("INTERVAL_TOLERANCE_PCT", 0.15),
		IntervalToleranceDays:  getEnvFloat("INTERVAL_TOLERANCE_DAYS", 3),
		MaxGapCV:               getEnvFloat("MAX_GAP_CV", 0.25),
		MaxAmountCV:            getEnvFloat("MAX_AMOUNT_CV", 0.10),
		PriceCreepMinRisePct:   getEnvFloat("PRICE_CREEP_MIN_RISE_PCT", 0.10),
		SmallTicketMaxCents:    getEnvInt64("SMALL_TICKET_MAX_CENTS", 500),
		HighFrequencyPer30Days: getEnvFloat("HIGH_FREQUENCY_PER_30_DAYS", 8),
		MaterialityMinCents:    getEnvInt64("MATERIALITY_MIN_CENTS", 5000),
		IrregularSavingFactor:  getEnvFloat("IRREGULAR_SAVING_FACTOR", 0.5),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GeminiAPIKey != "" && len(c.GeminiModels) == 0 {
		errors = append(errors, "GEMINI_MODELS cannot be empty when GEMINI_API_KEY is provided")
	}
	if c.ExplainLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid explain concurrency %d: must be at least 1", c.ExplainLimit))
	}

	if c.GoogleSpreadsheetID != "" {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when a spreadsheet ID is provided")
		}
		hasClient := c.GoogleOAuthClientFile != "" || c.GoogleOAuthClientJSON != ""
		hasToken := c.GoogleOAuthTokenFile != "" || c.GoogleOAuthTokenJSON != ""
		if !hasClient {
			errors = append(errors, "either GOOGLE_OAUTH_CLIENT_FILE or GOOGLE_OAUTH_CLIENT_JSON must be provided for sheets export")
		}
		if !hasToken {
			errors = append(errors, "either GOOGLE_OAUTH_TOKEN_FILE or GOOGLE_OAUTH_TOKEN_JSON must be provided for sheets export")
		}
		if c.GoogleOAuthClientFile != "" {
			if _, err := os.Stat(c.GoogleOAuthClientFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google OAuth client file does not exist: %s", c.GoogleOAuthClientFile))
			}
		}
		if c.GoogleOAuthTokenFile != "" {
			if _, err := os.Stat(c.GoogleOAuthTokenFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google OAuth token file does not exist: %s", c.GoogleOAuthTokenFile))
			}
		}
	}

	if c.AnalysisInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid analysis interval %v: must be at least 1 minute", c.AnalysisInterval))
	} else if c.AnalysisInterval > 7*24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid analysis interval %v: must be at most 7 days", c.AnalysisInterval))
	}
	if c.AnalysisConcurrency < 1 {
		errors = append(errors, fmt.Sprintf("invalid analysis concurrency %d: must be at least 1", c.AnalysisConcurrency))
	} else if c.AnalysisConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid analysis concurrency %d: must be at most 64", c.AnalysisConcurrency))
	}

	if c.ReportCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid report cache size %d: must be at least 1", c.ReportCacheSize))
	}

	if c.IntervalTolerancePct <= 0 || c.IntervalTolerancePct >= 1 {
		errors = append(errors, fmt.Sprintf("invalid interval tolerance pct %f: must be in (0, 1)", c.IntervalTolerancePct))
	}
	if c.IntervalToleranceDays < 0 {
		errors = append(errors, fmt.Sprintf("invalid interval tolerance days %f: must be non-negative", c.IntervalToleranceDays))
	}
	if c.MaxGapCV <= 0 {
		errors = append(errors, fmt.Sprintf("invalid max gap cv %f: must be positive", c.MaxGapCV))
	}
	if c.MaxAmountCV <= 0 {
		errors = append(errors, fmt.Sprintf("invalid max amount cv %f: must be positive", c.MaxAmountCV))
	}
	if c.PriceCreepMinRisePct <= 0 {
		errors = append(errors, fmt.Sprintf("invalid price creep min rise pct %f: must be positive", c.PriceCreepMinRisePct))
	}
	if c.SmallTicketMaxCents < 1 {
		errors = append(errors, fmt.Sprintf("invalid small ticket max cents %d: must be at least 1", c.SmallTicketMaxCents))
	}
	if c.HighFrequencyPer30Days <= 0 {
		errors = append(errors, fmt.Sprintf("invalid high frequency threshold %f: must be positive", c.HighFrequencyPer30Days))
	}
	if c.MaterialityMinCents < 0 {
		errors = append(errors, fmt.Sprintf("invalid materiality min cents %d: must be non-negative", c.MaterialityMinCents))
	}
	if c.IrregularSavingFactor <= 0 || c.IrregularSavingFactor > 1 {
		errors = append(errors, fmt.Sprintf("invalid irregular saving factor %f: must be in (0, 1]", c.IrregularSavingFactor))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Thresholds extracts the classifier cutoffs from the loaded configuration.
func (c *Config) Thresholds() engine.Thresholds {
	return engine.Thresholds{
		IntervalTolerancePct:   c.IntervalTolerancePct,
		IntervalToleranceDays:  c.IntervalToleranceDays,
		MaxGapCV:               c.MaxGapCV,
		MaxAmountCV:            c.MaxAmountCV,
		PriceCreepMinRisePct:   c.PriceCreepMinRisePct,
		SmallTicketMaxCents:    c.SmallTicketMaxCents,
		HighFrequencyPer30Days: c.HighFrequencyPer30Days,
		MaterialityMinCents:    c.MaterialityMinCents,
		IrregularSavingFactor:  c.IrregularSavingFactor,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
