package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Revert strategies applied when a save fails.
const (
	RevertRollback = "rollback"
	RevertRefetch  = "refetch"
)

// Config represents the full application configuration surface.
type Config struct {
	Server    ServerConfig
	Backend   BackendConfig
	AutoSave  AutoSaveConfig
	Scheduler SchedulerConfig
	Sheets    SheetsConfig
	MongoDB   MongoDBConfig
	Log       LogConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// BackendConfig points at the production REST backend.
type BackendConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// AutoSaveConfig tunes the field auto-save coordinator.
type AutoSaveConfig struct {
	Timeout        time.Duration
	RevertStrategy string
	Timezone       string
}

// SchedulerConfig holds cron expressions for background jobs.
type SchedulerConfig struct {
	ListingRefresh string
	ShiftReport    string
	Timezone       string
}

// SheetsConfig contains configuration required to interact with Google Sheets.
// Export is disabled when CredentialsPath is empty.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
	ReportRange     string
}

// MongoDBConfig holds settings for the audit archive. Disabled when URI is empty.
type MongoDBConfig struct {
	URI        string
	DBName     string
	Collection string
}

// LogConfig holds logging options.
type LogConfig struct {
	Level string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Ignore the returned error here; missing .env files are acceptable when
		// configuration comes from the environment directly.
		_ = godotenv.Load()
	}

	backendTimeout, err := getDuration("BACKEND_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	saveTimeout, err := getDuration("AUTOSAVE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	timezone := getenvWithDefault("TIMEZONE", "UTC")

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		Backend: BackendConfig{
			BaseURL: os.Getenv("BACKEND_BASE_URL"),
			Token:   os.Getenv("BACKEND_TOKEN"),
			Timeout: backendTimeout,
		},
		AutoSave: AutoSaveConfig{
			Timeout:        saveTimeout,
			RevertStrategy: strings.ToLower(getenvWithDefault("AUTOSAVE_REVERT_STRATEGY", RevertRollback)),
			Timezone:       timezone,
		},
		Scheduler: SchedulerConfig{
			ListingRefresh: getenvWithDefault("LISTING_REFRESH_SCHEDULE", "*/5 * * * *"),
			ShiftReport:    getenvWithDefault("REPORT_CRON_SCHEDULE", "0 6,14,22 * * *"),
			Timezone:       timezone,
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_REPORT_ID"),
			ReportRange:     getenvWithDefault("GOOGLE_SHEET_REPORT_RANGE", "Shifts!A:J"),
		},
		MongoDB: MongoDBConfig{
			URI:        os.Getenv("MONGODB_URI"),
			DBName:     getenvWithDefault("MONGODB_DB_NAME", "mouldtrack"),
			Collection: getenvWithDefault("MONGODB_AUDIT_COLLECTION", "batch_snapshots"),
		},
		Log: LogConfig{
			Level: getenvWithDefault("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	if c.Backend.BaseURL == "" {
		return errors.New("BACKEND_BASE_URL must be provided")
	}

	if c.AutoSave.Timeout <= 0 {
		return errors.New("AUTOSAVE_TIMEOUT must be positive")
	}

	switch c.AutoSave.RevertStrategy {
	case RevertRollback, RevertRefetch:
	default:
		return fmt.Errorf("AUTOSAVE_REVERT_STRATEGY must be %q or %q", RevertRollback, RevertRefetch)
	}

	if _, err := time.LoadLocation(c.AutoSave.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE is invalid: %w", err)
	}

	if c.Sheets.CredentialsPath != "" && c.Sheets.SpreadsheetID == "" {
		return errors.New("GOOGLE_SHEET_REPORT_ID must be provided when sheets export is enabled")
	}

	if c.MongoDB.URI != "" && c.MongoDB.DBName == "" {
		return errors.New("MONGODB_DB_NAME must not be empty")
	}

	return nil
}

// SheetsEnabled reports whether shift reports should be exported to Google Sheets.
func (c *Config) SheetsEnabled() bool {
	return c.Sheets.CredentialsPath != ""
}

// AuditEnabled reports whether batch snapshots should be archived.
func (c *Config) AuditEnabled() bool {
	return c.MongoDB.URI != ""
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s is not a duration: %w", key, err)
	}
	return d, nil
}
