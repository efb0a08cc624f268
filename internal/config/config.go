// Package config loads the YAML configuration that wires the execution
// layer together at startup. Every component receives its settings from
// here; nothing reads the environment or files on its own.
package config

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"
)

// BackendConfig selects and addresses the primary relational backend.
type BackendConfig struct {
	// Driver is one of sqlserver, postgres, mysql.
	Driver string `yaml:"driver"`

	// DSN is the full data source name / connection string.
	DSN string `yaml:"dsn"`
}

// PoolConfig tunes the fixed connection pool. Fixed for the pool's lifetime.
type PoolConfig struct {
	// Size is the pooled capacity.
	Size int `yaml:"size"`

	// AcquireTimeoutSeconds bounds the wait for an idle connection before
	// the pool degrades to an overflow connection.
	AcquireTimeoutSeconds int `yaml:"acquire_timeout_seconds"`

	// SkipProbe disables the liveness probe on lease.
	SkipProbe bool `yaml:"skip_probe"`
}

// ExecutorConfig tunes query execution.
type ExecutorConfig struct {
	// DefaultTimeoutSeconds applies when a query carries no budget.
	DefaultTimeoutSeconds int `yaml:"default_timeout_seconds"`

	// MaxTimeoutSeconds is the hard ceiling no caller can exceed.
	MaxTimeoutSeconds int `yaml:"max_timeout_seconds"`

	// BatchSize is the materialization chunk size.
	BatchSize int `yaml:"batch_size"`

	// WarnRows triggers a logged advisory once accumulated rows pass it.
	WarnRows int `yaml:"warn_rows"`

	// CacheMaxRows is the largest result eligible for caching.
	CacheMaxRows int `yaml:"cache_max_rows"`
}

// CacheConfig tunes the tiered TTL caches.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`

	// Result-cache TTLs by query shape.
	ResultTTLSeconds    int `yaml:"result_ttl_seconds"`
	AggregateTTLSeconds int `yaml:"aggregate_ttl_seconds"`
	DistinctTTLSeconds  int `yaml:"distinct_ttl_seconds"`

	SchemaTTLSeconds    int `yaml:"schema_ttl_seconds"`
	TableListTTLSeconds int `yaml:"table_list_ttl_seconds"`
}

// MetadataConfig tunes table and schema discovery.
type MetadataConfig struct {
	// DefaultSchema qualifies bare table names.
	DefaultSchema string `yaml:"default_schema"`

	// TimeoutSeconds is the shorter budget used for metadata queries.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// LocalStoreConfig addresses the SQLite store backing uploaded tables and
// query history.
type LocalStoreConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig mirrors logger.Config minus the output writer.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the root document.
type Config struct {
	Backend    BackendConfig    `yaml:"backend"`
	Pool       PoolConfig       `yaml:"pool"`
	Executor   ExecutorConfig   `yaml:"executor"`
	Cache      CacheConfig      `yaml:"cache"`
	Metadata   MetadataConfig   `yaml:"metadata"`
	LocalStore LocalStoreConfig `yaml:"local_store"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// Default returns production-ready settings for everything except the
// backend DSN, which has no sane default.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{Driver: "sqlserver"},
		Pool: PoolConfig{
			Size:                  5,
			AcquireTimeoutSeconds: 10,
		},
		Executor: ExecutorConfig{
			DefaultTimeoutSeconds: 60,
			MaxTimeoutSeconds:     300,
			BatchSize:             1000,
			WarnRows:              10000,
			CacheMaxRows:          5000,
		},
		Cache: CacheConfig{
			Enabled:             true,
			ResultTTLSeconds:    300,
			AggregateTTLSeconds: 600,
			DistinctTTLSeconds:  900,
			SchemaTTLSeconds:    900,
			TableListTTLSeconds: 600,
		},
		Metadata: MetadataConfig{
			DefaultSchema:  "dbo",
			TimeoutSeconds: 15,
		},
		LocalStore: LocalStoreConfig{Path: "data.db"},
		Logging:    LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads path over Default and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot possibly work.
func (c *Config) Validate() error {
	switch c.Backend.Driver {
	case "sqlserver", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported backend driver %q", c.Backend.Driver)
	}
	if c.Backend.DSN == "" {
		return fmt.Errorf("backend.dsn is required")
	}
	if c.Pool.Size <= 0 {
		return fmt.Errorf("pool.size must be positive")
	}
	if c.Executor.MaxTimeoutSeconds < c.Executor.DefaultTimeoutSeconds {
		return fmt.Errorf("executor.max_timeout_seconds must be at least the default timeout")
	}
	return nil
}

// Convenience duration accessors.

func (c *Config) AcquireTimeout() time.Duration {
	return time.Duration(c.Pool.AcquireTimeoutSeconds) * time.Second
}

func (c *Config) DefaultTimeout() time.Duration {
	return time.Duration(c.Executor.DefaultTimeoutSeconds) * time.Second
}

func (c *Config) MaxTimeout() time.Duration {
	return time.Duration(c.Executor.MaxTimeoutSeconds) * time.Second
}

func (c *Config) MetadataTimeout() time.Duration {
	return time.Duration(c.Metadata.TimeoutSeconds) * time.Second
}

func (c *Config) ResultTTL() time.Duration {
	return time.Duration(c.Cache.ResultTTLSeconds) * time.Second
}

func (c *Config) AggregateTTL() time.Duration {
	return time.Duration(c.Cache.AggregateTTLSeconds) * time.Second
}

func (c *Config) DistinctTTL() time.Duration {
	return time.Duration(c.Cache.DistinctTTLSeconds) * time.Second
}

func (c *Config) SchemaTTL() time.Duration {
	return time.Duration(c.Cache.SchemaTTLSeconds) * time.Second
}

func (c *Config) TableListTTL() time.Duration {
	return time.Duration(c.Cache.TableListTTLSeconds) * time.Second
}
