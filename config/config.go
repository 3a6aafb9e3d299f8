// Package config loads engine configuration (pool sizing, timeouts, audit
// backend selection) from a YAML file and the environment using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// PoolConfig controls the runner pool's size bounds.
type PoolConfig struct {
	Min int `mapstructure:"min"`
	Max int `mapstructure:"max"`
}

// TimeoutConfig holds the engine's timeout settings. Only AbortGrace is
// passed to the engine (as the scheduler's abort grace period);
// TaskTimeout and BackpressureWait are loaded and defaulted but no engine
// component reads them.
type TimeoutConfig struct {
	TaskTimeout      time.Duration `mapstructure:"task_timeout"`
	BackpressureWait time.Duration `mapstructure:"backpressure_wait"`
	AbortGrace       time.Duration `mapstructure:"abort_grace"`
}

// AuditConfig selects and configures the run-history backend.
type AuditConfig struct {
	Backend string `mapstructure:"backend"` // "memory", "sqlite", "mysql"
	DSN     string `mapstructure:"dsn"`     // sqlite file path or mysql DSN
}

// MetricsConfig controls Prometheus metrics registration.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Config is the top-level engine configuration.
type Config struct {
	Pool       PoolConfig    `mapstructure:"pool"`
	Timeouts   TimeoutConfig `mapstructure:"timeouts"`
	QueueDepth int           `mapstructure:"queue_depth"`
	Audit      AuditConfig   `mapstructure:"audit"`
	Metrics    MetricsConfig `mapstructure:"metrics"`
}

// Load reads configuration from path (YAML), overridable by WFENGINE_-
// prefixed environment variables (e.g. WFENGINE_POOL_MAX=8), applying
// defaults for anything left unset. An empty path skips the file read and
// relies on defaults and the environment alone.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("wfengine")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pool.min", 1)
	v.SetDefault("pool.max", 4)
	v.SetDefault("timeouts.task_timeout", "30s")
	v.SetDefault("timeouts.backpressure_wait", "5s")
	v.SetDefault("timeouts.abort_grace", "5s")
	v.SetDefault("queue_depth", 64)
	v.SetDefault("audit.backend", "memory")
	v.SetDefault("metrics.enabled", true)
}

func (c *Config) validate() error {
	if c.Pool.Min <= 0 {
		return fmt.Errorf("config: pool.min must be positive, got %d", c.Pool.Min)
	}
	if c.Pool.Max < c.Pool.Min {
		return fmt.Errorf("config: pool.max (%d) must be >= pool.min (%d)", c.Pool.Max, c.Pool.Min)
	}
	switch c.Audit.Backend {
	case "memory", "sqlite", "mysql":
	default:
		return fmt.Errorf("config: unknown audit.backend %q (want memory, sqlite, or mysql)", c.Audit.Backend)
	}
	if c.Audit.Backend != "memory" && c.Audit.DSN == "" {
		return fmt.Errorf("config: audit.dsn is required for backend %q", c.Audit.Backend)
	}
	if c.QueueDepth <= 0 {
		return fmt.Errorf("config: queue_depth must be positive, got %d", c.QueueDepth)
	}
	return nil
}
