// Package config loads epubreplace settings from an optional YAML file and
// EPUBREPLACE_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all epubreplace settings.
type Config struct {
	Rewrite RewriteConfig `yaml:"rewrite"`
	Log     LogConfig     `yaml:"log"`
	S3      S3Config      `yaml:"s3"`
}

// RewriteConfig controls how packages are rewritten.
type RewriteConfig struct {
	Mode             string `yaml:"mode"`
	NormalizeNFC     bool   `yaml:"normalize_nfc"`
	CompressionLevel int    `yaml:"compression_level"`
	MaxEntryBytes    int64  `yaml:"max_entry_bytes"`
	TempDir          string `yaml:"temp_dir"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// S3Config is used for s3:// sources and destinations. Empty credentials
// fall back to the default AWS credential chain.
type S3Config struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// Load reads the configuration file at configPath, applies environment
// overrides and validates the result. An empty configPath loads defaults.
func Load(configPath string) (*Config, error) {
	cfg := GetDefault()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func Validate(cfg *Config) error {
	switch strings.ToLower(cfg.Rewrite.Mode) {
	case "", "sequential", "simultaneous":
	default:
		return fmt.Errorf("invalid rewrite mode: %s (must be 'sequential' or 'simultaneous')", cfg.Rewrite.Mode)
	}
	if cfg.Rewrite.CompressionLevel < -2 || cfg.Rewrite.CompressionLevel > 9 {
		return fmt.Errorf("invalid compression level: %d (must be between -2 and 9)", cfg.Rewrite.CompressionLevel)
	}
	if cfg.Rewrite.MaxEntryBytes < 0 {
		return fmt.Errorf("invalid max_entry_bytes: %d", cfg.Rewrite.MaxEntryBytes)
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", cfg.Log.Level)
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s (must be 'text' or 'json')", cfg.Log.Format)
	}

	if (cfg.S3.AccessKeyID == "") != (cfg.S3.SecretAccessKey == "") {
		return fmt.Errorf("s3 access_key_id and secret_access_key must be set together")
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
// Environment variables are prefixed with EPUBREPLACE_.
func applyEnvOverrides(cfg *Config) {
	cfg.Rewrite.Mode = envOr("EPUBREPLACE_MODE", cfg.Rewrite.Mode)
	cfg.Rewrite.NormalizeNFC = envBool("EPUBREPLACE_NORMALIZE_NFC", cfg.Rewrite.NormalizeNFC)
	cfg.Rewrite.CompressionLevel = envInt("EPUBREPLACE_COMPRESSION_LEVEL", cfg.Rewrite.CompressionLevel)
	cfg.Rewrite.MaxEntryBytes = envInt64("EPUBREPLACE_MAX_ENTRY_BYTES", cfg.Rewrite.MaxEntryBytes)
	cfg.Rewrite.TempDir = envOr("EPUBREPLACE_TEMP_DIR", cfg.Rewrite.TempDir)

	cfg.Log.Level = envOr("EPUBREPLACE_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envOr("EPUBREPLACE_LOG_FORMAT", cfg.Log.Format)

	cfg.S3.Endpoint = envOr("EPUBREPLACE_S3_ENDPOINT", cfg.S3.Endpoint)
	cfg.S3.Region = envOr("EPUBREPLACE_S3_REGION", cfg.S3.Region)
	cfg.S3.AccessKeyID = envOr("EPUBREPLACE_S3_ACCESS_KEY_ID", cfg.S3.AccessKeyID)
	cfg.S3.SecretAccessKey = envOr("EPUBREPLACE_S3_SECRET_ACCESS_KEY", cfg.S3.SecretAccessKey)
}

// GetDefault returns a default configuration
func GetDefault() *Config {
	return &Config{
		Rewrite: RewriteConfig{
			Mode:             "sequential",
			CompressionLevel: 0,
			MaxEntryBytes:    256 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		S3: S3Config{
			Region: "us-east-1",
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
