// Package config loads listsync configuration from the environment with an
// optional YAML overlay file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Marketplace enrichment API
	MarketplaceURL     string
	MarketplaceTimeout time.Duration

	// HTTP server
	ServerPort string

	// Scan / repair behavior
	ScanLimit       int // default record limit for gap scans
	RepairBatchSize int // maximum snapshot size per repair job

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// fileConfig mirrors the YAML overlay file. All fields are optional; unset
// fields keep their defaults and environment variables always win.
type fileConfig struct {
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"`
	MarketplaceURL     string `yaml:"marketplace_url"`
	MarketplaceTimeout string `yaml:"marketplace_timeout"`
	ServerPort         string `yaml:"server_port"`
	ScanLimit          int    `yaml:"scan_limit"`
	RepairBatchSize    int    `yaml:"repair_batch_size"`
	LogFile            string `yaml:"log_file"`
	LogLevel           string `yaml:"log_level"`
}

// Load reads configuration: defaults, then the optional YAML file named by
// LISTSYNC_CONFIG, then environment variables.
func Load() Config {
	cfg := Config{
		SurrealDBURL:       "ws://localhost:8000/rpc",
		SurrealDBNamespace: "inventory",
		SurrealDBDatabase:  "listings",
		SurrealDBUser:      "root",
		SurrealDBPass:      "root",
		SurrealDBAuthLevel: "root",

		MarketplaceURL:     "http://localhost:9480",
		MarketplaceTimeout: 30 * time.Second,

		ServerPort: "8486",

		ScanLimit:       500,
		RepairBatchSize: 100,

		LogFile:  "/tmp/listsync.log",
		LogLevel: slog.LevelInfo,
	}

	if path := os.Getenv("LISTSYNC_CONFIG"); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			// A broken config file should not kill the process; defaults
			// and env vars still apply.
			slog.Warn("ignoring config file", "path", path, "error", err)
		}
	}

	applyEnv(&cfg)
	return cfg
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setString(&cfg.SurrealDBURL, fc.SurrealDBURL)
	setString(&cfg.SurrealDBNamespace, fc.SurrealDBNamespace)
	setString(&cfg.SurrealDBDatabase, fc.SurrealDBDatabase)
	setString(&cfg.SurrealDBUser, fc.SurrealDBUser)
	setString(&cfg.SurrealDBPass, fc.SurrealDBPass)
	setString(&cfg.SurrealDBAuthLevel, fc.SurrealDBAuthLevel)
	setString(&cfg.MarketplaceURL, fc.MarketplaceURL)
	setString(&cfg.ServerPort, fc.ServerPort)
	setString(&cfg.LogFile, fc.LogFile)

	if fc.MarketplaceTimeout != "" {
		if d, err := time.ParseDuration(fc.MarketplaceTimeout); err == nil {
			cfg.MarketplaceTimeout = d
		}
	}
	if fc.ScanLimit > 0 {
		cfg.ScanLimit = fc.ScanLimit
	}
	if fc.RepairBatchSize > 0 {
		cfg.RepairBatchSize = fc.RepairBatchSize
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = parseLogLevel(fc.LogLevel)
	}

	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.SurrealDBURL, os.Getenv("SURREALDB_URL"))
	setString(&cfg.SurrealDBNamespace, os.Getenv("SURREALDB_NAMESPACE"))
	setString(&cfg.SurrealDBDatabase, os.Getenv("SURREALDB_DATABASE"))
	setString(&cfg.SurrealDBUser, os.Getenv("SURREALDB_USER"))
	setString(&cfg.SurrealDBPass, os.Getenv("SURREALDB_PASS"))
	setString(&cfg.SurrealDBAuthLevel, os.Getenv("SURREALDB_AUTH_LEVEL"))
	setString(&cfg.MarketplaceURL, os.Getenv("LISTSYNC_MARKETPLACE_URL"))
	setString(&cfg.ServerPort, os.Getenv("LISTSYNC_SERVER_PORT"))
	setString(&cfg.LogFile, os.Getenv("LISTSYNC_LOG_FILE"))

	if v := os.Getenv("LISTSYNC_MARKETPLACE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.MarketplaceTimeout = d
		}
	}
	if v := os.Getenv("LISTSYNC_SCAN_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ScanLimit = n
		}
	}
	if v := os.Getenv("LISTSYNC_REPAIR_BATCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RepairBatchSize = n
		}
	}
	if v := os.Getenv("LISTSYNC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
}

func setString(dst *string, val string) {
	if val != "" {
		*dst = val
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
