package config

import (
	"fmt"
	"time"

	"github.com/CmMarin/PR-Labs/internal/counter"
	"github.com/CmMarin/PR-Labs/internal/logger"
	"github.com/CmMarin/PR-Labs/internal/resolver"
	"github.com/CmMarin/PR-Labs/internal/server"
	"github.com/CmMarin/PR-Labs/pkg/metrics"
	"github.com/mitchellh/mapstructure"
)

// CreateCounterStore creates a visit-counter store based on configuration.
//
// The Mode field selects the increment strategy and the mode-specific
// options are decoded from the Options map.
//
// Supported modes:
//   - "serialized": increments are guarded by a store mutex (accurate)
//   - "unserialized": increments bypass the mutex (demonstrates lost
//     updates under concurrency)
func CreateCounterStore(cfg *CounterConfig) (*counter.Store, error) {
	var mode counter.Mode
	switch cfg.Mode {
	case string(counter.ModeSerialized):
		mode = counter.ModeSerialized
	case string(counter.ModeUnserialized):
		mode = counter.ModeUnserialized
		logger.Warn("Counter store running in unserialized mode: concurrent visits may be lost")
	default:
		return nil, fmt.Errorf("unknown counter mode: %q", cfg.Mode)
	}

	// Decode the mode options into the option struct
	type counterOptions struct {
		Delay time.Duration `mapstructure:"delay"`
	}

	var opts counterOptions
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
		Result:     &opts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build counter options decoder: %w", err)
	}
	if err := decoder.Decode(cfg.Options); err != nil {
		return nil, fmt.Errorf("failed to decode counter options: %w", err)
	}
	if opts.Delay < 0 {
		return nil, fmt.Errorf("counter options: delay must be >= 0, got %v", opts.Delay)
	}

	return counter.NewStore(mode, opts.Delay), nil
}

// CreateResolver creates the path resolver from the server root and the
// configured MIME table. An empty table selects the built-in defaults.
func CreateResolver(cfg *Config) (*resolver.Resolver, error) {
	types := cfg.MIME.Types
	if len(types) == 0 {
		types = resolver.DefaultMIMETypes()
	}

	res, err := resolver.New(cfg.Server.Root, types)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver: %w", err)
	}
	return res, nil
}

// CreateServer wires the resolver and counter store into a ready-to-serve
// Server.
func CreateServer(cfg *Config, httpMetrics metrics.HTTPMetrics) (*server.Server, error) {
	res, err := CreateResolver(cfg)
	if err != nil {
		return nil, err
	}

	counts, err := CreateCounterStore(&cfg.Counter)
	if err != nil {
		return nil, err
	}

	srv := server.New(cfg.Server, httpMetrics)
	srv.SetStores(res, counts)
	return srv, nil
}
