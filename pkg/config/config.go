package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/CmMarin/PR-Labs/internal/server"
	"github.com/spf13/viper"
)

// Config represents the complete file server configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (FILESERVER_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains the listener, rate-limit, and timeout settings.
	// Uses the server.Config type directly to avoid duplication.
	Server server.Config `mapstructure:"server"`

	// Counter specifies the visit-counter mode and mode-specific options
	Counter CounterConfig `mapstructure:"counter"`

	// MIME optionally replaces the built-in extension table
	MIME MIMEConfig `mapstructure:"mime"`

	// Metrics controls the optional Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// CounterConfig specifies the visit-counter store configuration.
//
// The Mode field selects the increment strategy. Only the Options section
// matching the selected mode is consulted; today both modes share the same
// option set.
type CounterConfig struct {
	// Mode selects the increment strategy
	// Valid values: serialized, unserialized
	// "unserialized" deliberately skips the store mutex so concurrent
	// increments can lose updates - it exists to demonstrate the race.
	Mode string `mapstructure:"mode" validate:"required,oneof=serialized unserialized"`

	// Options contains mode-specific settings, decoded by the counter
	// store factory. Currently: delay (duration) widens the critical
	// section to make races reproducible.
	Options map[string]any `mapstructure:"options"`
}

// MIMEConfig configures the extension-to-content-type table.
type MIMEConfig struct {
	// Types replaces the default table when non-empty. Keys are lowercase
	// extensions including the dot (".html": "text/html").
	Types map[string]string `mapstructure:"types"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	// Enabled turns on metrics collection and the /metrics endpoint
	Enabled bool `mapstructure:"enabled"`

	// Port for the metrics HTTP server. Default: 9090
	Port int `mapstructure:"port" validate:"min=0,max=65535"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns the loaded and validated configuration.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file
// settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the FILESERVER_ prefix with underscores,
	// e.g. FILESERVER_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("FILESERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// rate_limit 0 is a meaningful value (limiting disabled), so its
	// default must come from viper, which only applies it when the key is
	// absent from every source
	v.SetDefault("server.rate_limit", 10)
	v.SetDefault("server.rate_window", "1s")

	// Register the root key so FILESERVER_SERVER_ROOT is honored even
	// without a config file
	v.SetDefault("server.root", "")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "fileserver")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "fileserver")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the
// init command).
func GetConfigDir() string {
	return getConfigDir()
}
