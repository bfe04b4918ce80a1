package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// defaultConfigTemplate is the commented sample configuration written by
// InitConfig. It mirrors GetDefaultConfig() values.
const defaultConfigTemplate = `# File Server Configuration File
#
# Values may also be supplied as environment variables with the FILESERVER_
# prefix, e.g. FILESERVER_LOGGING_LEVEL=DEBUG, and overridden by CLI flags.

logging:
  # Minimum log level: DEBUG, INFO, WARN, ERROR
  level: INFO
  # Log format: text or json
  format: text
  # Log destination: stdout, stderr, or a file path
  output: stdout

server:
  # Interface to bind
  host: 0.0.0.0
  # TCP port to listen on
  port: 8080
  # Directory tree to serve (required)
  root: ./content
  # Artificial per-request processing delay (e.g. 500ms); 0 disables
  handler_delay: 0s
  # Requests allowed per client IP within rate_window; 0 disables limiting
  rate_limit: 10
  # Sliding window for rate_limit; whole seconds, minimum 1s
  rate_window: 1s
  # Maximum concurrent connections; 0 means unlimited
  max_connections: 0
  # Accepted connections per second across all clients; 0 disables
  accept_rate: 0
  # Maximum wait for in-flight requests during shutdown
  shutdown_timeout: 30s

counter:
  # Visit counter mode: serialized (accurate) or unserialized (demonstrates
  # lost updates under concurrent load)
  mode: serialized
  options:
    # Artificial critical-section delay widening the race window
    delay: 0s

mime:
  # Extension to content-type table; replaces the built-in table when set
  types:
    .html: text/html
    .htm: text/html
    .png: image/png
    .pdf: application/pdf
    .txt: text/plain

metrics:
  # Prometheus metrics endpoint
  enabled: false
  port: 9090
`

// InitConfig writes a commented default configuration file to the default
// location and returns its path.
//
// Fails if the file already exists unless force is true.
func InitConfig(force bool) (string, error) {
	configPath := GetDefaultConfigPath()

	if !force {
		if _, err := os.Stat(configPath); err == nil {
			return "", fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
		}
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(defaultConfigTemplate), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return configPath, nil
}
