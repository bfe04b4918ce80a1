package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CmMarin/PR-Labs/internal/logger"
	"github.com/CmMarin/PR-Labs/pkg/config"
)

func main() {
	// Configuration source flags
	configPath := flag.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	initConfig := flag.Bool("init-config", false, "Write a default config file and exit")
	force := flag.Bool("force", false, "Overwrite an existing config file with --init-config")

	// Override flags: applied on top of file/env values only when
	// explicitly set
	host := flag.String("host", "0.0.0.0", "Interface address to bind")
	port := flag.Int("port", 8080, "TCP port to listen on")
	root := flag.String("root", "", "Directory tree to serve")
	logLevel := flag.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	rateLimit := flag.Int("rate-limit", 10, "Requests per client IP within the rate window (0 = disabled)")
	rateWindow := flag.Duration("rate-window", time.Second, "Sliding rate-limit window (whole seconds)")
	handlerDelay := flag.Duration("handler-delay", 0, "Artificial per-request delay (0 = disabled)")
	maxConnections := flag.Int("max-connections", 0, "Maximum concurrent connections (0 = unlimited)")
	counterMode := flag.String("counter-mode", "serialized", "Visit counter mode (serialized, unserialized)")

	flag.Parse()

	if *initConfig {
		path, err := config.InitConfig(*force)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config file written to %s\n", path)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		// The root override can satisfy a config that is only missing
		// the root, so retry with overrides applied before giving up
		cfg = retryLoadWithOverrides(*configPath, *root)
		if cfg == nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
	}

	// CLI flags take precedence over file and environment values, but
	// only when passed explicitly
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Server.Host = *host
		case "port":
			cfg.Server.Port = *port
		case "root":
			cfg.Server.Root = *root
		case "log-level":
			cfg.Logging.Level = *logLevel
		case "rate-limit":
			cfg.Server.RateLimit = *rateLimit
		case "rate-window":
			cfg.Server.RateWindow = *rateWindow
		case "handler-delay":
			cfg.Server.HandlerDelay = *handlerDelay
		case "max-connections":
			cfg.Server.MaxConnections = *maxConnections
		case "counter-mode":
			cfg.Counter.Mode = *counterMode
		}
	})

	// Re-validate after overrides
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Configure logger
	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring log output: %v\n", err)
		os.Exit(1)
	}

	logger.Info("Starting file server")
	logger.Info("  Root: %s", cfg.Server.Root)
	logger.Info("  Address: %s:%d", cfg.Server.Host, cfg.Server.Port)
	if cfg.Server.RateLimit > 0 {
		logger.Info("  Rate limit: %d requests per %v per client", cfg.Server.RateLimit, cfg.Server.RateWindow)
	} else {
		logger.Info("  Rate limit: disabled")
	}
	if cfg.Server.MaxConnections > 0 {
		logger.Info("  Max connections: %d", cfg.Server.MaxConnections)
	} else {
		logger.Info("  Max connections: unlimited")
	}
	logger.Info("  Counter mode: %s", cfg.Counter.Mode)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics (no-op collector when disabled)
	metricsResult := config.InitializeMetrics(cfg)
	if metricsResult.Server != nil {
		go func() {
			if err := metricsResult.Server.Start(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	srv, err := config.CreateServer(cfg, metricsResult.HTTPMetrics)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating server: %v\n", err)
		os.Exit(1)
	}

	// Start server in background
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running on %s:%d. Press Ctrl+C to stop.", cfg.Server.Host, cfg.Server.Port)

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error: %v", err)
			os.Exit(1)
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		if err != nil {
			logger.Error("Server error: %v", err)
			os.Exit(1)
		}
		logger.Info("Server stopped")
	}
}

// retryLoadWithOverrides reloads the configuration with the root flag
// pre-applied, covering the common case of running with no config file and
// only a --root flag.
func retryLoadWithOverrides(configPath, root string) *config.Config {
	if root == "" {
		return nil
	}

	t := os.Getenv("FILESERVER_SERVER_ROOT")
	_ = os.Setenv("FILESERVER_SERVER_ROOT", root)
	defer func() {
		if t == "" {
			_ = os.Unsetenv("FILESERVER_SERVER_ROOT")
		} else {
			_ = os.Setenv("FILESERVER_SERVER_ROOT", t)
		}
	}()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil
	}
	return cfg
}
