package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/CmMarin/PR-Labs/internal/counter"
	"github.com/CmMarin/PR-Labs/internal/logger"
	"github.com/CmMarin/PR-Labs/internal/ratelimiter"
	"github.com/CmMarin/PR-Labs/internal/resolver"
	"github.com/CmMarin/PR-Labs/pkg/metrics"
)

// Server is a concurrent HTTP/1.1 file server over raw TCP.
//
// Each accepted connection is served by its own goroutine, which reads a
// single request, writes a single response, and closes the connection
// (Connection: close semantics). The server provides:
//   - Per-client-IP sliding-window rate limiting at admission
//   - Per-resource visit counting (serialized or deliberately racy)
//   - Graceful shutdown with configurable timeout
//   - Optional connection limiting and accept throttling
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. shutdownCtx cancelled (signals in-flight requests to abort)
//  4. Wait for active connections to complete (up to ShutdownTimeout)
//  5. Force-close any remaining connections after timeout
//
// Thread safety:
// All methods are safe for concurrent use. The shutdown mechanism uses
// sync.Once so Stop() is idempotent.
type Server struct {
	// config holds the server configuration (address, timeouts, limits)
	config Config

	// listener is the TCP listener for accepting client connections
	// Closed during shutdown to stop accepting new connections
	// Guarded by listenerMu: Serve sets it after binding while Addr and
	// initiateShutdown may read it from other goroutines
	listener   net.Listener
	listenerMu sync.Mutex

	// resolver maps request paths to filesystem targets within the root
	resolver *resolver.Resolver

	// counts tracks per-resource visit counts
	counts *counter.Store

	// limiter gates admission per client IP (disabled when RateLimit is 0)
	limiter *ratelimiter.ClientLimiter

	// accept optionally throttles the global accept rate
	accept *ratelimiter.GlobalLimiter

	// metrics provides optional Prometheus metrics collection
	metrics metrics.HTTPMetrics

	// activeConns tracks all currently active connections for graceful
	// shutdown
	activeConns sync.WaitGroup

	// shutdownOnce ensures shutdown is only initiated once
	shutdownOnce sync.Once

	// shutdown signals that graceful shutdown has been initiated
	shutdown chan struct{}

	// connCount tracks the current number of active connections
	connCount atomic.Int32

	// connSemaphore limits concurrent connections if MaxConnections > 0
	// nil if MaxConnections is 0 (unlimited)
	connSemaphore chan struct{}

	// shutdownCtx is cancelled during shutdown to abort in-flight requests
	shutdownCtx context.Context

	// cancelRequests cancels shutdownCtx during shutdown
	cancelRequests context.CancelFunc

	// activeConnections maps remote address to net.Conn for forced closure
	activeConnections sync.Map
}

// Config holds configuration parameters for the file server.
//
// All timeout values are optional - zero means no timeout, matching the
// unbounded baseline behavior. MaxConnections and AcceptRate default to 0
// (unlimited / unthrottled) so concurrency is bounded only when explicitly
// configured.
type Config struct {
	// Host is the interface address to bind. Defaults to 0.0.0.0.
	Host string `mapstructure:"host"`

	// Port is the TCP port to listen on. 0 binds an ephemeral port.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// Root is the directory tree exposed by the server. Required.
	Root string `mapstructure:"root" validate:"required"`

	// HandlerDelay is an artificial per-request processing delay, used to
	// make concurrent handling observable. 0 disables it.
	HandlerDelay time.Duration `mapstructure:"handler_delay" validate:"min=0"`

	// ReadTimeout is the maximum duration for reading a request.
	// 0 means no timeout.
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"min=0"`

	// WriteTimeout is the maximum duration for writing a response.
	// 0 means no timeout.
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=0"`

	// MaxConnections limits the number of concurrent client connections.
	// 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`

	// AcceptRate throttles accepted connections per second across all
	// clients. 0 disables the throttle.
	AcceptRate uint `mapstructure:"accept_rate"`

	// ShutdownTimeout is the maximum duration to wait for active
	// connections to complete during graceful shutdown. Defaults to 30s.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`

	// RateLimit is the maximum number of requests a single client IP may
	// make within RateWindow. 0 disables rate limiting entirely and omits
	// the X-RateLimit-* headers.
	RateLimit int `mapstructure:"rate_limit" validate:"min=0"`

	// RateWindow is the sliding window over which RateLimit applies.
	// Must be whole seconds >= 1s when RateLimit > 0. Defaults to 1s.
	RateWindow time.Duration `mapstructure:"rate_window" validate:"min=0"`
}

// applyDefaults fills in zero values with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.RateLimit > 0 && c.RateWindow == 0 {
		c.RateWindow = time.Second
	}
}

// validate checks that the configuration is valid.
func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.Root == "" {
		return fmt.Errorf("root directory is required")
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid MaxConnections %d: must be >= 0", c.MaxConnections)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("invalid RateLimit %d: must be >= 0", c.RateLimit)
	}
	if c.RateLimit > 0 {
		if c.RateWindow < time.Second {
			return fmt.Errorf("invalid RateWindow %v: must be >= 1s when rate limiting is enabled", c.RateWindow)
		}
		if c.RateWindow%time.Second != 0 {
			return fmt.Errorf("invalid RateWindow %v: must be whole seconds", c.RateWindow)
		}
	}
	return nil
}

// New creates a new Server with the specified configuration.
//
// The server is created in a stopped state. Call SetStores() to inject the
// resolver and counter store, then call Serve() to start accepting
// connections.
//
// Zero values in config are replaced with defaults. Invalid configurations
// cause a panic (indicates programmer error).
func New(config Config, httpMetrics metrics.HTTPMetrics) *Server {
	config.applyDefaults()

	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid server config: %v", err))
	}

	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
		logger.Debug("Connection limit: %d", config.MaxConnections)
	} else {
		logger.Debug("Connection limit: unlimited")
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	if httpMetrics == nil {
		httpMetrics = metrics.NewNoopHTTPMetrics()
	}

	return &Server{
		config:         config,
		limiter:        ratelimiter.NewClientLimiter(config.RateLimit, config.RateWindow),
		accept:         ratelimiter.NewGlobalLimiter(config.AcceptRate),
		metrics:        httpMetrics,
		shutdown:       make(chan struct{}),
		connSemaphore:  connSemaphore,
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}
}

// SetStores injects the path resolver and visit-counter store.
//
// Called exactly once before Serve(), no synchronization needed.
func (s *Server) SetStores(res *resolver.Resolver, counts *counter.Store) {
	s.resolver = res
	s.counts = counts
	logger.Debug("Server stores configured")
}

// Serve starts the file server and blocks until the context is cancelled
// or an unrecoverable error occurs.
//
// Serve accepts incoming TCP connections on the configured address and
// spawns a goroutine for each connection. Concurrency is unbounded unless
// MaxConnections or AcceptRate is set.
//
// When the context is cancelled, Serve initiates graceful shutdown:
//  1. Stops accepting new connections (listener closed)
//  2. Cancels all in-flight request contexts
//  3. Waits for active connections to complete (up to ShutdownTimeout)
//  4. Forcibly closes any remaining connections after timeout
//
// Serve should only be called once per Server instance.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create listener on %s: %w", addr, err)
	}

	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()
	logger.Info("File server listening on %s (root: %s)", listener.Addr(), s.config.Root)
	logger.Debug("Server config: rate_limit=%d rate_window=%v max_connections=%d handler_delay=%v",
		s.config.RateLimit, s.config.RateWindow, s.config.MaxConnections, s.config.HandlerDelay)

	// Monitor context cancellation in a separate goroutine so the accept
	// loop can focus on accepting connections
	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received: %v", ctx.Err())
		s.initiateShutdown()
	}()

	// Accept connections until shutdown.
	// listener.Accept() fails immediately after shutdown (listener closed),
	// and s.shutdown is checked in the error handling path, so no select is
	// needed at the top of the loop.
	for {
		// Acquire connection semaphore if connection limiting is enabled
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.gracefulShutdown()
			}
		}

		// Apply the optional global accept throttle
		if s.accept.Enabled() {
			if err := s.accept.Wait(s.shutdownCtx); err != nil {
				if s.connSemaphore != nil {
					<-s.connSemaphore
				}
				return s.gracefulShutdown()
			}
		}

		tcpConn, err := listener.Accept()
		if err != nil {
			// Release semaphore on accept error
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}

			select {
			case <-s.shutdown:
				// Expected error during shutdown (listener was closed)
				return s.gracefulShutdown()
			default:
				logger.Debug("Error accepting connection: %v", err)
				continue
			}
		}

		// Track connection for graceful shutdown
		s.activeConns.Add(1)
		s.connCount.Add(1)

		// Register connection for forced closure capability
		connAddr := tcpConn.RemoteAddr().String()
		s.activeConnections.Store(connAddr, tcpConn)

		s.metrics.RecordConnectionAccepted()
		currentConns := s.connCount.Load()
		s.metrics.SetActiveConnections(currentConns)

		logger.Debug("Connection accepted from %s (active: %d)",
			tcpConn.RemoteAddr(), currentConns)

		// Handle connection in its own goroutine.
		// Capture connAddr and tcpConn in the closure to avoid races.
		c := newConn(s, tcpConn)
		go func(addr string, tcp net.Conn) {
			defer func() {
				s.activeConnections.Delete(addr)

				s.activeConns.Done()
				s.connCount.Add(-1)
				if s.connSemaphore != nil {
					<-s.connSemaphore
				}

				s.metrics.RecordConnectionClosed()
				currentConns := s.connCount.Load()
				s.metrics.SetActiveConnections(currentConns)

				logger.Debug("Connection closed from %s (active: %d)",
					tcp.RemoteAddr(), currentConns)
			}()

			c.serve(s.shutdownCtx)
		}(connAddr, tcpConn)
	}
}

// initiateShutdown signals the server to begin graceful shutdown.
//
// Safe to call multiple times and from multiple goroutines.
func (s *Server) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("Shutdown initiated")

		// Close shutdown channel (signals accept loop)
		close(s.shutdown)

		// Close listener (stops accepting new connections)
		s.listenerMu.Lock()
		listener := s.listener
		s.listenerMu.Unlock()
		if listener != nil {
			if err := listener.Close(); err != nil {
				logger.Debug("Error closing listener: %v", err)
			}
		}

		// Cancel all in-flight request contexts
		s.cancelRequests()
	})
}

// gracefulShutdown waits for active connections to complete or timeout.
//
// Blocks until either all active connections complete naturally or
// ShutdownTimeout expires, at which point remaining connections are
// force-closed.
func (s *Server) gracefulShutdown() error {
	activeCount := s.connCount.Load()
	logger.Info("Graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		activeCount, s.config.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Graceful shutdown complete: all connections closed")
		return nil

	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("Shutdown timeout exceeded: %d connection(s) still active after %v - forcing closure",
			remaining, s.config.ShutdownTimeout)

		s.forceCloseConnections()

		return fmt.Errorf("shutdown timeout: %d connections force-closed", remaining)
	}
}

// forceCloseConnections closes all active TCP connections to accelerate
// shutdown. Called after the graceful shutdown timeout expires.
func (s *Server) forceCloseConnections() {
	closedCount := 0
	s.activeConnections.Range(func(key, value any) bool {
		addr := key.(string)
		conn := value.(net.Conn)

		if err := conn.Close(); err != nil {
			logger.Debug("Error force-closing connection to %s: %v", addr, err)
		} else {
			closedCount++
		}
		return true
	})

	if closedCount > 0 {
		logger.Info("Force-closed %d connection(s)", closedCount)
	}
}

// Stop initiates graceful shutdown of the server.
//
// Stop is safe to call multiple times and safe to call concurrently with
// Serve(). The context parameter allows the caller to bound the shutdown
// wait; if ctx is nil the configured ShutdownTimeout applies.
func (s *Server) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if ctx == nil {
		return s.gracefulShutdown()
	}

	activeCount := s.connCount.Load()
	logger.Info("Graceful shutdown: waiting for %d active connection(s) (context timeout)",
		activeCount)

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Graceful shutdown complete: all connections closed")
		return nil

	case <-ctx.Done():
		remaining := s.connCount.Load()
		logger.Warn("Shutdown context cancelled: %d connection(s) still active: %v",
			remaining, ctx.Err())
		return ctx.Err()
	}
}

// GetActiveConnections returns the current number of active connections.
//
// Primarily used for testing and monitoring.
func (s *Server) GetActiveConnections() int32 {
	return s.connCount.Load()
}

// Addr returns the listener's address, or nil if the server is not
// listening. Useful for tests that bind port 0.
func (s *Server) Addr() net.Addr {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the configured TCP port.
func (s *Server) Port() int {
	return s.config.Port
}
