package server

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/CmMarin/PR-Labs/internal/logger"
	"github.com/google/uuid"
)

// maxRequestSize bounds the single request read. GET requests for this
// server fit comfortably in one segment; anything larger is truncated and
// parsed from what arrived.
const maxRequestSize = 1024

// conn handles a single client connection: one request, one response,
// then close.
type conn struct {
	server *Server
	rw     net.Conn

	// id correlates log lines for this connection
	id string
}

func newConn(server *Server, rw net.Conn) *conn {
	return &conn{
		server: server,
		rw:     rw,
		id:     uuid.NewString(),
	}
}

// serve reads one request from the connection, dispatches it, and closes.
//
// It implements panic recovery so a single misbehaving request cannot
// crash the server. The connection is closed on every exit path.
//
// An empty read or blank request line closes the connection silently
// without a response.
func (c *conn) serve(ctx context.Context) {
	clientAddr := c.rw.RemoteAddr().String()

	defer func() {
		// Panic recovery - prevents a single connection from crashing the
		// server
		if r := recover(); r != nil {
			logger.Error("Panic in connection handler from %s (conn %s): %v",
				clientAddr, c.id, r)
		}
		_ = c.rw.Close()
	}()

	// Bail out early if shutdown already started
	select {
	case <-ctx.Done():
		logger.Debug("Connection from %s closed due to shutdown (conn %s)", clientAddr, c.id)
		return
	default:
	}

	// Apply read timeout if configured
	if c.server.config.ReadTimeout > 0 {
		deadline := time.Now().Add(c.server.config.ReadTimeout)
		if err := c.rw.SetReadDeadline(deadline); err != nil {
			logger.Warn("Failed to set read deadline for %s: %v", clientAddr, err)
		}
	}

	// Single read: the request line and headers of a GET fit in one
	// segment, and the body is never read
	buf := make([]byte, maxRequestSize)
	n, err := c.rw.Read(buf)
	if err != nil && n == 0 {
		if err == io.EOF {
			logger.Debug("Connection from %s closed by client (conn %s)", clientAddr, c.id)
		} else if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			logger.Debug("Connection from %s timed out: %v (conn %s)", clientAddr, err, c.id)
		} else {
			logger.Debug("Error reading from %s: %v (conn %s)", clientAddr, err, c.id)
		}
		return
	}
	if n == 0 {
		return
	}

	c.server.handleRequest(ctx, c, buf[:n])
}

// write sends raw response bytes, applying the write timeout if configured.
func (c *conn) write(data []byte) error {
	if c.server.config.WriteTimeout > 0 {
		deadline := time.Now().Add(c.server.config.WriteTimeout)
		if err := c.rw.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}
	_, err := c.rw.Write(data)
	return err
}

// clientIP extracts the client IP (without port) used as the rate-limit
// key. Falls back to the full remote address if it cannot be split.
func (c *conn) clientIP() string {
	host, _, err := net.SplitHostPort(c.rw.RemoteAddr().String())
	if err != nil {
		return c.rw.RemoteAddr().String()
	}
	return host
}
