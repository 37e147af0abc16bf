package config

import (
	"fmt"
	"os"

	"go-election-merge/internal/model"
	"go-election-merge/internal/pipeline"
	"go-election-merge/pkg/utils"

	"gopkg.in/yaml.v3"
)

// Config holds all service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Output   OutputConfig   `yaml:"output"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Retry    RetryConfig    `yaml:"retry"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MaxBodySize int64  `yaml:"max_body_size"` // bytes
}

// DatabaseConfig selects the persistence backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, memory, none
	Path   string `yaml:"path"`
}

// OutputConfig configures file exports.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// IngestConfig configures CSV ingestion.
type IngestConfig struct {
	Delimiter string                 `yaml:"delimiter"`
	Encoding  string                 `yaml:"encoding"`
	Columns   pipeline.ColumnAliases `yaml:"columns"`
}

// PipelineConfig sets run defaults.
type PipelineConfig struct {
	Topology      string `yaml:"topology"`
	Round1        string `yaml:"round1"`
	Round2        string `yaml:"round2"`
	RetainRaw     bool   `yaml:"retain_raw"`
	RetainDerived bool   `yaml:"retain_derived"`
	Externalize   bool   `yaml:"externalize"`
	Parallelism   int    `yaml:"parallelism"` // topologies in flight during compare
}

// RetryConfig configures retries of store calls. Durations use Go syntax ("50ms").
type RetryConfig struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialDelay      string  `yaml:"initial_delay"`
	MaxDelay          string  `yaml:"max_delay"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":8080", MaxBodySize: 32 << 20},
		Database: DatabaseConfig{Driver: "sqlite", Path: "pipeline.db"},
		Output:   OutputConfig{Dir: "exports"},
		Ingest: IngestConfig{
			Delimiter: ",",
			Encoding:  "utf-8",
			Columns:   pipeline.DefaultColumnAliases,
		},
		Pipeline: PipelineConfig{
			Topology:    model.TopologySeparate,
			Round1:      "1",
			Round2:      "2",
			Parallelism: 1,
		},
		Retry: RetryConfig{
			MaxAttempts:       model.DefaultRetryConfig.MaxAttempts,
			InitialDelay:      model.DefaultRetryConfig.InitialDelay.String(),
			MaxDelay:          model.DefaultRetryConfig.MaxDelay.String(),
			BackoffMultiplier: model.DefaultRetryConfig.BackoffMultiplier,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "memory", "none":
	default:
		return fmt.Errorf("unknown database driver: %q", c.Database.Driver)
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		return fmt.Errorf("database.path is required for sqlite")
	}
	if len([]rune(c.Ingest.Delimiter)) != 1 {
		return fmt.Errorf("ingest.delimiter must be a single character, got %q", c.Ingest.Delimiter)
	}
	known := false
	for _, t := range model.Topologies {
		if c.Pipeline.Topology == t {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("unknown pipeline.topology: %q", c.Pipeline.Topology)
	}
	if c.Pipeline.Round1 == c.Pipeline.Round2 {
		return fmt.Errorf("pipeline.round1 and pipeline.round2 must differ")
	}
	return nil
}

// IngestOptions converts the ingest section for the pipeline package.
func (c *Config) IngestOptions() pipeline.IngestOptions {
	opts := pipeline.IngestOptions{
		Encoding: c.Ingest.Encoding,
		Columns:  c.Ingest.Columns,
	}
	if r := []rune(c.Ingest.Delimiter); len(r) == 1 {
		opts.Delimiter = r[0]
	}
	return opts
}

// RetryPolicy converts the retry section, keeping defaults for unparsable durations.
func (c *Config) RetryPolicy() model.RetryConfig {
	return model.RetryConfig{
		MaxAttempts:       c.Retry.MaxAttempts,
		InitialDelay:      utils.ParseDuration(c.Retry.InitialDelay, model.DefaultRetryConfig.InitialDelay),
		MaxDelay:          utils.ParseDuration(c.Retry.MaxDelay, model.DefaultRetryConfig.MaxDelay),
		BackoffMultiplier: c.Retry.BackoffMultiplier,
	}
}
