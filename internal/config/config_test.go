package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test.yaml")

	configContent := `
rewrite:
  mode: "simultaneous"
  normalize_nfc: true
  compression_level: 9
  max_entry_bytes: 1048576
  temp_dir: "/tmp/epubreplace"

log:
  level: "debug"
  format: "json"

s3:
  endpoint: "http://localhost:9000"
  region: "eu-west-1"
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Rewrite.Mode != "simultaneous" {
		t.Errorf("Expected mode 'simultaneous', got '%s'", cfg.Rewrite.Mode)
	}
	if !cfg.Rewrite.NormalizeNFC {
		t.Error("Expected normalize_nfc to be true")
	}
	if cfg.Rewrite.CompressionLevel != 9 {
		t.Errorf("Expected compression level 9, got %d", cfg.Rewrite.CompressionLevel)
	}
	if cfg.Rewrite.MaxEntryBytes != 1048576 {
		t.Errorf("Expected max_entry_bytes 1048576, got %d", cfg.Rewrite.MaxEntryBytes)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Expected log format 'json', got '%s'", cfg.Log.Format)
	}
	if cfg.S3.Region != "eu-west-1" {
		t.Errorf("Expected region 'eu-west-1', got '%s'", cfg.S3.Region)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}
	if cfg.Rewrite.Mode != "sequential" {
		t.Errorf("Expected default mode 'sequential', got '%s'", cfg.Rewrite.Mode)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "invalid mode",
			modify: func(c *Config) {
				c.Rewrite.Mode = "parallel"
			},
			wantErr: true,
		},
		{
			name: "compression level too high",
			modify: func(c *Config) {
				c.Rewrite.CompressionLevel = 10
			},
			wantErr: true,
		},
		{
			name: "huffman only level",
			modify: func(c *Config) {
				c.Rewrite.CompressionLevel = -2
			},
			wantErr: false,
		},
		{
			name: "negative max entry bytes",
			modify: func(c *Config) {
				c.Rewrite.MaxEntryBytes = -1
			},
			wantErr: true,
		},
		{
			name: "invalid log format",
			modify: func(c *Config) {
				c.Log.Format = "xml"
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			modify: func(c *Config) {
				c.Log.Level = "verbose"
			},
			wantErr: true,
		},
		{
			name: "access key without secret",
			modify: func(c *Config) {
				c.S3.AccessKeyID = "AKIA"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefault()
			tt.modify(cfg)
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test.yaml")

	configContent := `
rewrite:
  mode: "sequential"
  compression_level: 1
log:
  level: "info"
  format: "text"
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	t.Setenv("EPUBREPLACE_MODE", "simultaneous")
	t.Setenv("EPUBREPLACE_COMPRESSION_LEVEL", "6")
	t.Setenv("EPUBREPLACE_NORMALIZE_NFC", "true")
	t.Setenv("EPUBREPLACE_LOG_FORMAT", "json")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Rewrite.Mode != "simultaneous" {
		t.Errorf("Expected mode 'simultaneous' from env override, got '%s'", cfg.Rewrite.Mode)
	}
	if cfg.Rewrite.CompressionLevel != 6 {
		t.Errorf("Expected compression level 6 from env override, got %d", cfg.Rewrite.CompressionLevel)
	}
	if !cfg.Rewrite.NormalizeNFC {
		t.Error("Expected normalize_nfc from env override")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Expected log format 'json' from env override, got '%s'", cfg.Log.Format)
	}
}

func TestEnvOverrideIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("EPUBREPLACE_COMPRESSION_LEVEL", "fast")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Rewrite.CompressionLevel != 0 {
		t.Errorf("Expected default compression level 0, got %d", cfg.Rewrite.CompressionLevel)
	}
}

func TestGetDefault(t *testing.T) {
	cfg := GetDefault()
	if cfg == nil {
		t.Fatal("GetDefault() returned nil")
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Default config is invalid: %v", err)
	}
}
