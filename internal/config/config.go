// Package config loads and validates normalizer configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/weblog-normalizer/internal/planner"
	"github.com/JakeFAU/weblog-normalizer/internal/weblog"
)

// Output drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Input     InputConfig     `mapstructure:"input"`
	Output    OutputConfig    `mapstructure:"output"`
	Reference ReferenceConfig `mapstructure:"reference"`
	Planner   PlannerConfig   `mapstructure:"planner"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// InputConfig locates candidate input stores.
type InputConfig struct {
	Dir            string `mapstructure:"dir"`
	Extension      string `mapstructure:"extension"`
	Table          string `mapstructure:"table"`
	DeleteConsumed bool   `mapstructure:"delete_consumed"`
}

// OutputConfig selects and addresses the normalized store.
type OutputConfig struct {
	Driver string `mapstructure:"driver"`
	// Path is the SQLite output file.
	Path  string `mapstructure:"path"`
	Table string `mapstructure:"table"`
	// DSN is the Postgres connection string.
	DSN string `mapstructure:"dsn"`
}

// ReferenceConfig points at the geo reference file, a local path or gs:// URI.
type ReferenceConfig struct {
	GeoPath string `mapstructure:"geo_path"`
}

// PlannerConfig mirrors planner.Policy.
type PlannerConfig struct {
	MemoryFraction        float64 `mapstructure:"memory_fraction"`
	CPUFraction           float64 `mapstructure:"cpu_fraction"`
	EstimatedRowSizeBytes int64   `mapstructure:"estimated_row_size_bytes"`
	MinBatchSize          int     `mapstructure:"min_batch_size"`
	MaxBatchSize          int     `mapstructure:"max_batch_size"`
	Workers               int     `mapstructure:"workers"`
}

// Policy converts the section into a planner policy.
func (p PlannerConfig) Policy() planner.Policy {
	return planner.Policy{
		MemoryFraction:        p.MemoryFraction,
		CPUFraction:           p.CPUFraction,
		EstimatedRowSizeBytes: p.EstimatedRowSizeBytes,
		MinBatchSize:          p.MinBatchSize,
		MaxBatchSize:          p.MaxBatchSize,
		Workers:               p.Workers,
	}
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	Every         int           `mapstructure:"every"`
	BufferSize    int           `mapstructure:"buffer_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// MetricsConfig controls the Pushgateway push after a run.
type MetricsConfig struct {
	PushURL string `mapstructure:"push_url"`
	JobName string `mapstructure:"job_name"`
}

// PubSubConfig holds metadata for run notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LedgerConfig points at the Postgres run ledger.
type LedgerConfig struct {
	DSN string `mapstructure:"dsn"`
}

// ServerConfig controls the read API.
type ServerConfig struct {
	Port int `mapstructure:"port"`
	// ReadChunkSize bounds rows per read; zero derives it from the planner.
	ReadChunkSize int `mapstructure:"read_chunk_size"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LOGNORM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("input.dir", ".")
	v.SetDefault("input.extension", ".db")
	v.SetDefault("input.table", "logs")
	v.SetDefault("input.delete_consumed", true)
	v.SetDefault("output.driver", DriverSQLite)
	v.SetDefault("output.path", "normalized_logs.db")
	v.SetDefault("output.table", "logs")
	v.SetDefault("output.dsn", "")
	v.SetDefault("reference.geo_path", "ip_locations.csv")
	v.SetDefault("planner.memory_fraction", planner.DefaultMemoryFraction)
	v.SetDefault("planner.cpu_fraction", planner.DefaultCPUFraction)
	v.SetDefault("planner.estimated_row_size_bytes", planner.DefaultRowSizeBytes)
	v.SetDefault("planner.min_batch_size", planner.DefaultMinBatchSize)
	v.SetDefault("planner.max_batch_size", 0)
	v.SetDefault("planner.workers", 0)
	v.SetDefault("progress.every", 1000)
	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.flush_interval", 500*time.Millisecond)
	v.SetDefault("metrics.push_url", "")
	v.SetDefault("metrics.job_name", "weblog_normalizer")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("ledger.dsn", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_chunk_size", 0)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := c.Planner.Policy().Validate(); err != nil {
		return fmt.Errorf("planner: %w", err)
	}
	switch c.Output.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Output.Path) == "" {
			return fmt.Errorf("output.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Output.DSN == "" {
			return fmt.Errorf("output.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("output.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Output.Driver)
	}
	if !weblog.ValidTableName(c.Input.Table) {
		return fmt.Errorf("input.table %q is not a valid table name", c.Input.Table)
	}
	if !weblog.ValidTableName(c.Output.Table) {
		return fmt.Errorf("output.table %q is not a valid table name", c.Output.Table)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.ReadChunkSize < 0 {
		return fmt.Errorf("server.read_chunk_size must be >= 0")
	}
	if c.Progress.Every <= 0 {
		return fmt.Errorf("progress.every must be > 0")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is")
	}
	return nil
}
