package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"finanzas/internal/core"
)

type Config struct {
	// HTTP Server
	Port         string
	RateLimitRPM int

	// Backend selection
	DataBackend  string
	DataDir      string
	APIBaseURL   string
	APIToken     string
	APITimeout   time.Duration
	HistoryLimit int

	// Exchange rates
	RatesBaseURL string
	RatesTTL     time.Duration
	RatesTimeout time.Duration

	DisplayCurrency string

	// Database
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets summary export
	GoogleSpreadsheetID      string
	GoogleSummarySheet       string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Worker
	RefreshInterval time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "8081"),
		RateLimitRPM: getEnvInt("RATE_LIMIT_RPM", 120),

		DataBackend:  getEnv("DATA_BACKEND", "memory"),
		DataDir:      getEnv("DATA_DIR", "./data"),
		APIBaseURL:   getEnv("API_BASE_URL", ""),
		APIToken:     getEnv("API_TOKEN", ""),
		APITimeout:   getEnvDuration("API_TIMEOUT", 10*time.Second),
		HistoryLimit: getEnvInt("HISTORY_LIMIT", 200),

		RatesBaseURL: getEnv("RATES_BASE_URL", "https://open.er-api.com/v6"),
		RatesTTL:     getEnvDuration("RATES_TTL", time.Hour),
		RatesTimeout: getEnvDuration("RATES_TIMEOUT", 10*time.Second),

		DisplayCurrency: core.NormalizeCurrency(getEnv("DISPLAY_CURRENCY", core.BaseCurrency)),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/finanzas.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "finanzas"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "finanzas.input"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSummarySheet:       getEnv("GOOGLE_SUMMARY_SHEET", "Resumen"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),

		RefreshInterval: getEnvDuration("REFRESH_INTERVAL", 15*time.Minute),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitRPM < 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must not be negative", c.RateLimitRPM))
	}

	validBackends := []string{"memory", "api"}
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

	if c.DataBackend == "api" {
		if c.APIBaseURL == "" {
			errors = append(errors, "API base URL is required when using api backend")
		} else if err := validateHTTPURL(c.APIBaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid API base URL '%s': %v", c.APIBaseURL, err))
		}
	}

	if c.HistoryLimit < 1 || c.HistoryLimit > 5000 {
		errors = append(errors, fmt.Sprintf("invalid history limit %d: must be between 1 and 5000", c.HistoryLimit))
	}

	if err := validateHTTPURL(c.RatesBaseURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid rates base URL '%s': %v", c.RatesBaseURL, err))
	}
	if c.RatesTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid rates TTL %v: must be at least 1 minute", c.RatesTTL))
	}
	if c.RatesTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid rates timeout %v: must be positive", c.RatesTimeout))
	}

	if !core.ValidCurrency(c.DisplayCurrency) {
		errors = append(errors, fmt.Sprintf("invalid display currency '%s': must be a 3-letter ISO code", c.DisplayCurrency))
	}

	if c.SQLiteDBPath != "" {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
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

	if c.GoogleSpreadsheetID != "" && c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}

	if c.RefreshInterval < time.Minute || c.RefreshInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid refresh interval %v: must be between 1 minute and 24 hours", c.RefreshInterval))
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ExportEnabled reports whether summaries should be exported to Google Sheets.
func (c *Config) ExportEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// AMQPEnabled reports whether an AMQP broker is configured.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
