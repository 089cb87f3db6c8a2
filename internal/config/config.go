// Package config loads server configuration from command-line flags, environment variables, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Metadata  MetadataConfig
	Server    ServerConfig
	ComicVine ComicVineConfig
	MangaDex  MangaDexConfig
	Approval  ApprovalConfig
	Archive   ArchiveConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// MetadataConfig holds the base path for the catalog database, caches and search index.
type MetadataConfig struct {
	BasePath string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// CORSOrigins lists allowed browser origins (default: *).
	CORSOrigins []string
	// RateLimitRPS bounds per-client requests to endpoints that reach metadata sources (default: 5).
	RateLimitRPS float64
	// RateLimitBurst is the per-client burst allowance (default: 20).
	RateLimitBurst int
}

// ComicVineConfig configures the western metadata source.
type ComicVineConfig struct {
	APIKey  string
	BaseURL string
}

// MangaDexConfig configures the manga metadata source.
type MangaDexConfig struct {
	BaseURL string
}

// ApprovalConfig tunes the metadata approval pipeline.
type ApprovalConfig struct {
	// SessionTTL evicts sessions idle for longer than this (default: 30m).
	SessionTTL time.Duration
	// CompletedRetention keeps finished sessions around for client polling (default: 5m).
	CompletedRetention time.Duration
	// AutoSelectThreshold pre-selects the top series result at or above this confidence (default: 0.8).
	AutoSelectThreshold float64
	// AcceptThreshold accepts an issue match at or above this confidence (default: 0.5).
	AcceptThreshold float64
	// BestGuess records an exact-number issue for display on rejected matches (default: true).
	BestGuess bool
	// CreditBatchSize is the concurrent window for credit backfill (default: 10).
	CreditBatchSize int
	// CreditBatchDelay is the pause between credit backfill windows (default: 300ms).
	CreditBatchDelay time.Duration
	// IssueCacheTTL bounds how long fetched issue lists are reused (default: 24h).
	IssueCacheTTL time.Duration
}

// ArchiveConfig configures archive conversion.
type ArchiveConfig struct {
	// ExtractorPath overrides auto-detection of 7z/unar (default: auto-detect).
	ExtractorPath string
}

// LoadConfig loads configuration from os.Args with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load is LoadConfig over an explicit argument list.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("inkwell", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	metadataPath := fs.String("metadata-path", "", "Base path for database, caches and search index")
	serverPort := fs.String("port", "", "Server port (default: 8080)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 60s)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	comicVineKey := fs.String("comicvine-api-key", "", "ComicVine API key")
	sessionTTL := fs.String("approval-session-ttl", "", "Idle TTL for approval sessions (default: 30m)")
	acceptThreshold := fs.String("approval-accept-threshold", "", "Issue match accept threshold (default: 0.5)")
	extractorPath := fs.String("extractor-path", "", "Path to 7z/unar used for archive conversion")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Metadata: MetadataConfig{
			BasePath: getConfigValue(*metadataPath, "METADATA_PATH", ""),
		},
		Server: ServerConfig{
			Port:           getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			CORSOrigins:    splitList(getConfigValue("", "SERVER_CORS_ORIGINS", "*")),
			RateLimitRPS:   getFloatConfigValue("", "SERVER_RATE_LIMIT_RPS", 5),
			RateLimitBurst: getIntConfigValue("", "SERVER_RATE_LIMIT_BURST", 20),
		},
		ComicVine: ComicVineConfig{
			APIKey:  getConfigValue(*comicVineKey, "COMICVINE_API_KEY", ""),
			BaseURL: getConfigValue("", "COMICVINE_BASE_URL", "https://comicvine.gamespot.com/api"),
		},
		MangaDex: MangaDexConfig{
			BaseURL: getConfigValue("", "MANGADEX_BASE_URL", "https://api.mangadex.org"),
		},
		Approval: ApprovalConfig{
			AutoSelectThreshold: getFloatConfigValue("", "APPROVAL_AUTO_SELECT_THRESHOLD", 0.8),
			AcceptThreshold:     getFloatConfigValue(*acceptThreshold, "APPROVAL_ACCEPT_THRESHOLD", 0.5),
			BestGuess:           getBoolConfigValue("", "APPROVAL_BEST_GUESS", true),
			CreditBatchSize:     getIntConfigValue("", "APPROVAL_CREDIT_BATCH_SIZE", 10),
		},
		Archive: ArchiveConfig{
			ExtractorPath: getConfigValue(*extractorPath, "ARCHIVE_EXTRACTOR_PATH", ""),
		},
	}

	durations := []struct {
		dst      *time.Duration
		flagVal  string
		envKey   string
		fallback string
	}{
		{&cfg.Server.ReadTimeout, *readTimeout, "SERVER_READ_TIMEOUT", "15s"},
		{&cfg.Server.WriteTimeout, *writeTimeout, "SERVER_WRITE_TIMEOUT", "60s"},
		{&cfg.Server.IdleTimeout, *idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"},
		{&cfg.Approval.SessionTTL, *sessionTTL, "APPROVAL_SESSION_TTL", "30m"},
		{&cfg.Approval.CompletedRetention, "", "APPROVAL_COMPLETED_RETENTION", "5m"},
		{&cfg.Approval.CreditBatchDelay, "", "APPROVAL_CREDIT_BATCH_DELAY", "300ms"},
		{&cfg.Approval.IssueCacheTTL, "", "ISSUE_CACHE_TTL", "24h"},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flagVal, d.envKey, d.fallback)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", strings.ToLower(d.envKey), raw, err)
		}
		*d.dst = parsed
	}

	if err := cfg.expandMetadataPath(); err != nil {
		return nil, fmt.Errorf("invalid metadata path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %q (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Metadata.BasePath == "" {
		return errors.New("metadata base path cannot be empty after expansion")
	}

	if err := c.Approval.Validate(); err != nil {
		return err
	}

	return nil
}

// Validate checks the pipeline's policy constants.
func (a ApprovalConfig) Validate() error {
	if a.AcceptThreshold < 0 || a.AcceptThreshold > 1 {
		return fmt.Errorf("approval accept threshold %.2f outside [0,1]", a.AcceptThreshold)
	}
	if a.AutoSelectThreshold < 0 || a.AutoSelectThreshold > 1 {
		return fmt.Errorf("approval auto-select threshold %.2f outside [0,1]", a.AutoSelectThreshold)
	}
	if a.CreditBatchSize < 1 {
		return errors.New("approval credit batch size must be at least 1")
	}
	if a.CreditBatchDelay < 0 {
		return errors.New("approval credit batch delay cannot be negative")
	}
	if a.SessionTTL <= 0 {
		return errors.New("approval session TTL must be positive")
	}
	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty, defaultPath is returned unchanged.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandMetadataPath defaults to ~/Inkwell/metadata.
func (c *Config) expandMetadataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "Inkwell", "metadata")

	expanded, err := expandPath(c.Metadata.BasePath, defaultPath)
	if err != nil {
		return err
	}
	c.Metadata.BasePath = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue accepts "true", "1", "yes" (case-insensitive) as true.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return v
}

func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(strValue, 64)
	if err != nil {
		return defaultValue
	}
	return v
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile loads KEY=value lines from a .env file. Existing env vars win.
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
