// Package config loads layered configuration for topolane: built-in
// defaults, an optional YAML file, and finally environment variables
// prefixed TOPOLANE_, in that order of precedence. Load reads no
// command-line flags.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// StoreConfig selects and parameterizes the Graph Store backend.
type StoreConfig struct {
	// Backend is one of "memory", "embedded", "postgres", "falkordb".
	Backend string `koanf:"backend"`
	DSN     string `koanf:"dsn"`
	// Path is the data directory used by the embedded backend.
	Path string `koanf:"path"`
	// SchemaPrefix isolates tenants sharing one postgres database.
	SchemaPrefix string `koanf:"schema_prefix"`
}

// AdapterConfig enables and parameterizes one registered cloud Adapter.
type AdapterConfig struct {
	Provider string            `koanf:"provider"`
	Enabled  bool              `koanf:"enabled"`
	Options  map[string]string `koanf:"options"`
}

// MonitorConfig controls the monitoring loop's scheduling and alerting.
type MonitorConfig struct {
	SyncInterval        time.Duration `koanf:"sync_interval"`
	CostAnomalyWindow   time.Duration `koanf:"cost_anomaly_window"`
	CostAnomalyPct      float64       `koanf:"cost_anomaly_pct"`
	AlertCooldown       time.Duration `koanf:"alert_cooldown"`
	DisappearanceMisses int           `koanf:"disappearance_misses"`
}

// GovernorConfig controls the change governor's approval workflow.
type GovernorConfig struct {
	ConfirmationTTL  time.Duration `koanf:"confirmation_ttl"`
	AutoApproveBelow int           `koanf:"auto_approve_below"`
	PolicyDir        string        `koanf:"policy_dir"`
}

// ReconcileConfig controls the reconciliation engine's schedule and
// auto-remediation gate.
type ReconcileConfig struct {
	Interval                time.Duration `koanf:"interval"`
	AutoRemediationEnabled  bool          `koanf:"auto_remediation_enabled"`
	CostAnomalyPct          float64       `koanf:"cost_anomaly_pct"`
}

// TracingConfig controls OTel trace export.
type TracingConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint"`
	TLSCAPath   string `koanf:"tls_ca_path"`
	TLSInsecure bool   `koanf:"tls_insecure"`
}

// Config holds all configuration for topolane.
type Config struct {
	// LogLevels holds per-package log level overrides.
	// Format: ["debug"], or ["default=info", "engine.sync=debug"].
	LogLevels []string `koanf:"log_levels"`

	MetricsAddr string `koanf:"metrics_addr"`

	Store     StoreConfig     `koanf:"store"`
	Adapters  []AdapterConfig `koanf:"adapters"`
	Monitor   MonitorConfig   `koanf:"monitor"`
	Governor  GovernorConfig  `koanf:"governor"`
	Reconcile ReconcileConfig `koanf:"reconcile"`
	Tracing   TracingConfig   `koanf:"tracing"`
}

func defaults() map[string]any {
	return map[string]any{
		"log_levels":   []string{"info"},
		"metrics_addr": ":9090",
		"store": map[string]any{
			"backend":       "memory",
			"schema_prefix": "public",
		},
		"monitor": map[string]any{
			"sync_interval":        "5m",
			"cost_anomaly_window":  "24h",
			"cost_anomaly_pct":     20.0,
			"alert_cooldown":       "15m",
			"disappearance_misses": 2,
		},
		"governor": map[string]any{
			"confirmation_ttl":   "30m",
			"auto_approve_below": 20,
			"policy_dir":         "",
		},
		"reconcile": map[string]any{
			"interval":                  "15m",
			"auto_remediation_enabled":  false,
			"cost_anomaly_pct":          20.0,
		},
	}
}

// Load builds a Config by layering defaults, an optional YAML file at
// path (skipped if empty or missing), TOPOLANE_-prefixed environment
// variables, and then validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("config: load %q: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: stat %q: %w", path, err)
		}
	}

	envProvider := env.Provider("TOPOLANE_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "TOPOLANE_")
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory":
	case "embedded":
		if c.Store.Path == "" {
			return NewConfigError("store.path must be set for the embedded backend")
		}
	case "postgres", "falkordb":
		if c.Store.DSN == "" {
			return NewConfigError(fmt.Sprintf("store.dsn must be set for the %s backend", c.Store.Backend))
		}
	default:
		return NewConfigError(fmt.Sprintf("unknown store.backend %q", c.Store.Backend))
	}

	if c.Monitor.SyncInterval <= 0 {
		return NewConfigError("monitor.sync_interval must be positive")
	}
	if c.Monitor.DisappearanceMisses < 1 {
		return NewConfigError("monitor.disappearance_misses must be at least 1")
	}
	if c.Governor.AutoApproveBelow < 0 {
		return NewConfigError("governor.auto_approve_below must not be negative")
	}
	if c.Reconcile.Interval <= 0 {
		return NewConfigError("reconcile.interval must be positive")
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return NewConfigError("tracing.endpoint must be set when tracing is enabled")
	}

	return nil
}

// ConfigError represents a configuration error.
type ConfigError struct {
	message string
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string) *ConfigError {
	return &ConfigError{message: message}
}

// Error returns the error message.
func (e *ConfigError) Error() string {
	return e.message
}
