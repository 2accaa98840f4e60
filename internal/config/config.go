// Package config loads runtime settings from the environment and an optional
// config file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

// Data backends.
const (
	BackendMemory = "memory"
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
	BackendSheets = "sheets"
)

var validBackends = []string{BackendMemory, BackendCSV, BackendSQLite, BackendSheets}

type Config struct {
	// HTTP Server
	Port     string
	LogLevel string

	// Backend selection
	DataBackend string
	DataDir     string

	// Database
	SQLiteDBPath string

	// Google Sheets
	GoogleSpreadsheet     string
	GoogleCredentialsFile string
	GoogleCredentialsJSON string
	MovementsSheetName    string
	CategoriesSheetName   string

	// Cache
	MovementsCacheTTL    time.Duration
	CategoriesCacheTTL   time.Duration
	CacheCleanupInterval time.Duration

	DefaultCategories []string

	// Display
	CurrencySymbol string
	DisplayLocale  string

	// AMQP change events, disabled when AMQPURL is empty
	AMQPURL      string
	AMQPExchange string

	// User is the CLI default user.
	User string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8081")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATA_BACKEND", BackendCSV)
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("SQLITE_DB_PATH", "./data/gastos.db")
	v.SetDefault("GOOGLE_SPREADSHEET", "")
	v.SetDefault("SHEETS_URL", "")
	v.SetDefault("GOOGLE_CREDENTIALS_FILE", "")
	v.SetDefault("GOOGLE_CREDENTIALS_JSON", "")
	v.SetDefault("MOVEMENTS_SHEET_NAME", "gastos")
	v.SetDefault("CATEGORIES_SHEET_NAME", "categorias")
	v.SetDefault("MOVEMENTS_CACHE_TTL", "30s")
	v.SetDefault("CATEGORIES_CACHE_TTL", "5m")
	v.SetDefault("CACHE_CLEANUP_INTERVAL", "1m")
	v.SetDefault("DEFAULT_CATEGORIES", "Comida,Transporte,Ocio,Otros")
	v.SetDefault("CURRENCY_SYMBOL", "$")
	v.SetDefault("DISPLAY_LOCALE", "es")
	v.SetDefault("AMQP_URL", "")
	v.SetDefault("AMQP_EXCHANGE", "gastos.changes")
	v.SetDefault("GASTOS_USER", "")
}

// Load reads the configuration. Environment variables win over the file
// named by GASTOS_CONFIG, which wins over the defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := strings.TrimSpace(os.Getenv("GASTOS_CONFIG")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		Port:                  strings.TrimSpace(v.GetString("PORT")),
		LogLevel:              strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
		DataBackend:           strings.ToLower(strings.TrimSpace(v.GetString("DATA_BACKEND"))),
		DataDir:               strings.TrimSpace(v.GetString("DATA_DIR")),
		SQLiteDBPath:          strings.TrimSpace(v.GetString("SQLITE_DB_PATH")),
		GoogleSpreadsheet:     strings.TrimSpace(v.GetString("GOOGLE_SPREADSHEET")),
		GoogleCredentialsFile: strings.TrimSpace(v.GetString("GOOGLE_CREDENTIALS_FILE")),
		GoogleCredentialsJSON: strings.TrimSpace(v.GetString("GOOGLE_CREDENTIALS_JSON")),
		MovementsSheetName:    strings.TrimSpace(v.GetString("MOVEMENTS_SHEET_NAME")),
		CategoriesSheetName:   strings.TrimSpace(v.GetString("CATEGORIES_SHEET_NAME")),
		DefaultCategories:     splitList(v.GetString("DEFAULT_CATEGORIES")),
		CurrencySymbol:        v.GetString("CURRENCY_SYMBOL"),
		DisplayLocale:         strings.TrimSpace(v.GetString("DISPLAY_LOCALE")),
		AMQPURL:               strings.TrimSpace(v.GetString("AMQP_URL")),
		AMQPExchange:          strings.TrimSpace(v.GetString("AMQP_EXCHANGE")),
		User:                  strings.TrimSpace(v.GetString("GASTOS_USER")),
	}
	if cfg.GoogleSpreadsheet == "" {
		cfg.GoogleSpreadsheet = strings.TrimSpace(v.GetString("SHEETS_URL"))
	}

	var errs []string
	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"MOVEMENTS_CACHE_TTL", &cfg.MovementsCacheTTL},
		{"CATEGORIES_CACHE_TTL", &cfg.CategoriesCacheTTL},
		{"CACHE_CLEANUP_INTERVAL", &cfg.CacheCleanupInterval},
	} {
		val, err := parseDuration(v.GetString(d.key))
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", d.key, err))
			continue
		}
		*d.dst = val
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration load failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return cfg, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

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

	switch c.DataBackend {
	case BackendCSV:
		if c.DataDir == "" {
			errors = append(errors, "data directory cannot be empty when using csv backend")
		}
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		}
	case BackendSheets:
		if c.GoogleSpreadsheet == "" {
			errors = append(errors, "GOOGLE_SPREADSHEET (URL or ID) is required when using sheets backend")
		}
		if c.GoogleCredentialsFile == "" && c.GoogleCredentialsJSON == "" {
			errors = append(errors, "either GOOGLE_CREDENTIALS_FILE or GOOGLE_CREDENTIALS_JSON must be provided for sheets backend")
		}
		if c.GoogleCredentialsFile != "" && c.GoogleCredentialsJSON == "" {
			if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", c.GoogleCredentialsFile))
			}
		}
		if c.MovementsSheetName == "" || c.CategoriesSheetName == "" {
			errors = append(errors, "worksheet names cannot be empty when using sheets backend")
		}
	}

	if c.MovementsCacheTTL < 0 || c.CategoriesCacheTTL < 0 {
		errors = append(errors, "cache TTLs cannot be negative")
	}
	if c.CacheCleanupInterval < 0 {
		errors = append(errors, fmt.Sprintf("invalid cache cleanup interval %v: cannot be negative", c.CacheCleanupInterval))
	}

	if len(c.DefaultCategories) == 0 {
		errors = append(errors, "DEFAULT_CATEGORIES must name at least one category")
	}

	if _, err := language.Parse(c.DisplayLocale); err != nil {
		errors = append(errors, fmt.Sprintf("invalid display locale '%s': %v", c.DisplayLocale, err))
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
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string { return ":" + c.Port }

// parseDuration accepts Go durations ("30s") and bare integers as seconds.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
