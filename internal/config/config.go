// Package config provides unified configuration for the Gametrics pipeline.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Storage backend types for the publish step.
const (
	StorageTypeLocal = "local"
	StorageTypeS3    = "s3"
)

// Config holds the configuration for a pipeline run. It is loaded once at
// startup and never mutated during a run.
type Config struct {
	// OutputDir is the directory the three output tables are published to
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// Quality gate thresholds
	Quality QualityConfig `json:"quality_checks" yaml:"quality_checks"`

	// Ingest configuration
	Ingest IngestConfig `json:"ingest" yaml:"ingest"`

	// Storage configuration for the publish step
	Storage StorageConfig `json:"storage" yaml:"storage"`
}

// QualityConfig holds the validator thresholds.
type QualityConfig struct {
	// MinEvents is the minimum acceptable row count after ingest
	MinEvents int `json:"min_events" yaml:"min_events"`

	// MaxNullPercentage is the per-column null fraction ceiling (0 to 1)
	MaxNullPercentage float64 `json:"max_null_percentage" yaml:"max_null_percentage"`

	// RequiredEventTypes must all be present in the ingested table
	RequiredEventTypes []string `json:"required_event_types" yaml:"required_event_types"`

	// MaxFutureDays is the grace period for event dates past now
	MaxFutureDays int `json:"max_future_days" yaml:"max_future_days"`

	// StrictMode turns quality issues from warnings into a terminating error
	StrictMode bool `json:"strict_mode" yaml:"strict_mode"`
}

// IngestConfig holds ingest tuning parameters.
type IngestConfig struct {
	// ChunkSize is the number of lines handed to one parse worker
	ChunkSize int `json:"chunk_size" yaml:"chunk_size"`

	// Workers is the number of parallel parse workers (0 = GOMAXPROCS)
	Workers int `json:"workers" yaml:"workers"`

	// MaxParseFailures is the hard ceiling on malformed lines before the
	// whole ingest fails
	MaxParseFailures int `json:"max_parse_failures" yaml:"max_parse_failures"`
}

// StorageConfig holds object storage configuration. When Type is "local" the
// published tables stay on the local filesystem; "s3" additionally uploads
// them after publish.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local mirror path (for local type; empty disables mirroring)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Prefix is the object key prefix for published tables
	Prefix string `json:"prefix" yaml:"prefix"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		OutputDir: "data/processed",
		Quality: QualityConfig{
			MinEvents:          1000,
			MaxNullPercentage:  0.1,
			RequiredEventTypes: []string{"session_start", "session_end"},
			MaxFutureDays:      1,
			StrictMode:         false,
		},
		Ingest: IngestConfig{
			ChunkSize:        4096,
			Workers:          0,
			MaxParseFailures: 100,
		},
		Storage: StorageConfig{
			Type: StorageTypeLocal,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}

	if c.Quality.MinEvents < 0 {
		return fmt.Errorf("quality_checks.min_events must be >= 0, got %d", c.Quality.MinEvents)
	}

	if c.Quality.MaxNullPercentage < 0 || c.Quality.MaxNullPercentage > 1 {
		return fmt.Errorf("quality_checks.max_null_percentage must be between 0 and 1, got %g", c.Quality.MaxNullPercentage)
	}

	if c.Quality.MaxFutureDays < 0 {
		return fmt.Errorf("quality_checks.max_future_days must be >= 0, got %d", c.Quality.MaxFutureDays)
	}

	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("ingest.chunk_size must be positive, got %d", c.Ingest.ChunkSize)
	}

	if c.Ingest.MaxParseFailures <= 0 {
		return fmt.Errorf("ingest.max_parse_failures must be positive, got %d", c.Ingest.MaxParseFailures)
	}

	if c.Storage.Type != StorageTypeLocal && c.Storage.Type != StorageTypeS3 {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}

	if c.Storage.Type == StorageTypeS3 && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file, layered over the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the GAMETRICS_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("GAMETRICS_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}

	// Quality configuration
	if v := os.Getenv("GAMETRICS_MIN_EVENTS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Quality.MinEvents)
	}
	if v := os.Getenv("GAMETRICS_MAX_NULL_PERCENTAGE"); v != "" {
		fmt.Sscanf(v, "%g", &cfg.Quality.MaxNullPercentage)
	}
	if v := os.Getenv("GAMETRICS_REQUIRED_EVENT_TYPES"); v != "" {
		cfg.Quality.RequiredEventTypes = strings.Split(v, ",")
	}
	if v := os.Getenv("GAMETRICS_MAX_FUTURE_DAYS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Quality.MaxFutureDays)
	}
	if v := os.Getenv("GAMETRICS_STRICT_MODE"); v != "" {
		cfg.Quality.StrictMode = v == "true" || v == "1"
	}

	// Ingest configuration
	if v := os.Getenv("GAMETRICS_INGEST_CHUNK_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Ingest.ChunkSize)
	}
	if v := os.Getenv("GAMETRICS_INGEST_WORKERS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Ingest.Workers)
	}

	// Storage configuration
	if v := os.Getenv("GAMETRICS_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("GAMETRICS_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("GAMETRICS_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("GAMETRICS_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("GAMETRICS_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	if v := os.Getenv("GAMETRICS_S3_PREFIX"); v != "" {
		cfg.Storage.S3.Prefix = v
	}
}
