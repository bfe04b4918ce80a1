package config

import (
	"strings"
	"time"

	"github.com/CmMarin/PR-Labs/internal/counter"
	"github.com/CmMarin/PR-Labs/internal/resolver"
	"github.com/CmMarin/PR-Labs/internal/server"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields.
//
// Called after loading configuration from file and environment variables
// to fill in missing values. Zero values are replaced with defaults;
// explicit values are preserved. The one exception is server.rate_limit,
// whose 0 means "disabled" - its default of 10 is supplied by viper so an
// explicit 0 survives.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyCounterDefaults(&cfg.Counter)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal
	// representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets listener defaults.
func applyServerDefaults(cfg *server.Config) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.RateLimit > 0 && cfg.RateWindow == 0 {
		cfg.RateWindow = time.Second
	}
}

// applyCounterDefaults sets counter store defaults.
func applyCounterDefaults(cfg *CounterConfig) {
	if cfg.Mode == "" {
		cfg.Mode = string(counter.ModeSerialized)
	}
	if cfg.Options == nil {
		cfg.Options = make(map[string]any)
	}
}

// applyMetricsDefaults sets metrics endpoint defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// Useful for generating sample configuration files, testing, and
// documentation. The root is left empty and must be supplied by the user.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Server: server.Config{
			RateLimit:  10,
			RateWindow: time.Second,
		},
		MIME: MIMEConfig{
			Types: resolver.DefaultMIMETypes(),
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
