// Package config provides configuration loading and structs for the Miru server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Oracle  OracleConfig  `yaml:"oracle"`
	Rocchio RocchioConfig `yaml:"rocchio"`
	Compose ComposeConfig `yaml:"compose"`
	Search  SearchConfig  `yaml:"search"`
	Session SessionConfig `yaml:"session"`
	Ingest  IngestConfig  `yaml:"ingest"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the item database and indices.
type StorageConfig struct {
	DatabasePath      string `yaml:"database_path"`
	VectorIndexPath   string `yaml:"vector_index_path"`
	MetadataIndexPath string `yaml:"metadata_index_path"`
}

// OracleConfig holds embedding oracle settings. Provider "remote" talks to an
// HTTP encoder service; "mock" is a deterministic hash embedder for local
// development and tests.
type OracleConfig struct {
	Provider       string `yaml:"provider"`
	Endpoint       string `yaml:"endpoint"`
	Dimensions     int    `yaml:"dimensions"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	CacheSize      int    `yaml:"cache_size"`
}

// RocchioConfig holds relevance feedback refinement weights. Pointers
// distinguish "unset" (nil, defaulted) from an explicit zero: gamma: 0 in
// the config file disables the negative-feedback pull.
type RocchioConfig struct {
	Alpha *float64 `yaml:"alpha"`
	Beta  *float64 `yaml:"beta"`
	Gamma *float64 `yaml:"gamma"`
}

// ComposeConfig holds query and text composition parameters. Pointers
// distinguish "unset" from an explicit zero, as in RocchioConfig.
type ComposeConfig struct {
	AdditiveLambda       *float64 `yaml:"additive_lambda"`
	InterpolationAlpha   *float64 `yaml:"interpolation_alpha"`
	ResidualStrength     *float64 `yaml:"residual_strength"`
	AttentionTemperature *float64 `yaml:"attention_temperature"`
}

// SearchConfig holds result count limits.
type SearchConfig struct {
	DefaultTopK int `yaml:"default_top_k"`
	MaxTopK     int `yaml:"max_top_k"`
	PseudoTopM  int `yaml:"pseudo_top_m"`
	SampleSize  int `yaml:"sample_size"`
}

// SessionConfig holds session lifecycle settings.
type SessionConfig struct {
	MaxAgeHours         int `yaml:"max_age_hours"`
	ReapIntervalMinutes int `yaml:"reap_interval_minutes"`
}

// IngestConfig holds batch ingestion settings. WatchDir, when set, enables a
// drop directory for .jsonl batch files.
type IngestConfig struct {
	WatchDir string `yaml:"watch_dir"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	cfg.Storage.MetadataIndexPath = expandPath(cfg.Storage.MetadataIndexPath, configDir)
	if cfg.Ingest.WatchDir != "" {
		cfg.Ingest.WatchDir = expandPath(cfg.Ingest.WatchDir, configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
