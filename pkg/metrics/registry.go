// Package metrics provides Prometheus metrics collection for the file
// server.
//
// All metrics are optional - if the registry is not initialized, components
// use no-op implementations with zero overhead. This allows the server to
// run with or without metrics collection enabled.
//
// Usage:
//
//	// Initialize global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Create a collector for the server
//	httpMetrics := metrics.NewHTTPMetrics()
//
//	// Or use the no-op implementation
//	httpMetrics := metrics.NewNoopHTTPMetrics()
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// registry is the global Prometheus registry for all server metrics.
	// Protected by registryOnce for write-once, read-many access.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry.
//
// This must be called before creating any metrics instances. It's safe to
// call multiple times - subsequent calls are ignored.
//
// If not called, GetRegistry() returns nil and NewHTTPMetrics falls back to
// the default registerer.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the global Prometheus registry, or nil if
// InitRegistry has not been called.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether the global registry has been initialized.
func IsEnabled() bool {
	return registry != nil
}
