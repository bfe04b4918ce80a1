package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/CmMarin/PR-Labs/internal/counter"
	"github.com/CmMarin/PR-Labs/internal/logger"
	"github.com/CmMarin/PR-Labs/internal/resolver"
)

// handleRequest processes a single HTTP request.
//
// The request moves through four stages: admission (rate limiting before
// any parsing), parsing (request line only), resolution (path to
// filesystem target), and serving (file bytes or directory listing). Any
// stage can short-circuit to an error response; the connection is always
// closed by the caller afterwards.
func (s *Server) handleRequest(ctx context.Context, c *conn, raw []byte) {
	start := time.Now()

	// Admission gate: rejected requests are never parsed
	rl := rateLimitInfo{
		enabled:   s.limiter.Enabled(),
		limit:     s.limiter.Limit(),
		window:    s.limiter.Window(),
		remaining: -1,
	}
	if rl.enabled {
		decision := s.limiter.Admit(c.clientIP(), time.Now())
		if !decision.Allowed {
			rl.retryAfter = decision.RetryAfter
			if rl.retryAfter <= 0 {
				rl.retryAfter = time.Second
			}
			s.metrics.RecordRateLimited()
			logger.Debug("Rate limited %s: retry after %v (conn %s)",
				c.clientIP(), decision.RetryAfter, c.id)
			s.respondError(c, http.StatusTooManyRequests, rl, start)
			return
		}
		rl.remaining = decision.Remaining
	}

	// Blank request line: close silently, no response
	requestLine, _, _ := strings.Cut(string(raw), "\n")
	requestLine = strings.TrimSpace(requestLine)
	if requestLine == "" {
		return
	}

	fields := strings.Fields(requestLine)
	if len(fields) != 3 {
		logger.Debug("Malformed request line from %s: %q (conn %s)",
			c.clientIP(), requestLine, c.id)
		s.respondError(c, http.StatusBadRequest, rl, start)
		return
	}
	method, rawPath := fields[0], fields[1]

	if method != "GET" {
		s.respondError(c, http.StatusMethodNotAllowed, rl, start)
		return
	}

	logger.Info("Request: %s %s from %s", method, rawPath, c.clientIP())

	// Artificial processing delay, makes concurrent handling observable
	if s.config.HandlerDelay > 0 {
		time.Sleep(s.config.HandlerDelay)
	}

	target, err := s.resolver.Resolve(rawPath)
	if err != nil {
		s.respondError(c, statusForResolveError(err), rl, start)
		return
	}

	// Count the visit exactly once per admitted, resolved request
	key := counter.Key(s.resolver.Root(), target.Path, target.Kind == resolver.KindDirectory)
	s.counts.Increment(key)

	if target.Kind == resolver.KindDirectory {
		body, err := s.buildListing(target)
		if err != nil {
			logger.Error("Error listing directory %s: %v", target.Path, err)
			s.respondError(c, http.StatusInternalServerError, rl, start)
			return
		}
		s.respond(c, http.StatusOK, "text/html", body, rl, start)
		return
	}

	data, err := os.ReadFile(target.Path)
	if err != nil {
		logger.Error("Error reading file %s: %v", target.Path, err)
		s.respondError(c, http.StatusInternalServerError, rl, start)
		return
	}

	// Text resources must be valid UTF-8
	if strings.HasPrefix(target.MIMEType, "text/") && !utf8.Valid(data) {
		logger.Error("File %s is not valid UTF-8", target.Path)
		s.respondError(c, http.StatusInternalServerError, rl, start)
		return
	}

	s.respond(c, http.StatusOK, target.MIMEType, data, rl, start)
}

// statusForResolveError maps resolver sentinels to HTTP status codes.
func statusForResolveError(err error) int {
	switch {
	case errors.Is(err, resolver.ErrBadPath):
		return http.StatusBadRequest
	case errors.Is(err, resolver.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, resolver.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, resolver.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

// respond frames and writes a response, then records metrics.
func (s *Server) respond(c *conn, status int, contentType string, body []byte, rl rateLimitInfo, start time.Time) {
	data := buildResponse(time.Now(), status, contentType, body, rl)
	if err := c.write(data); err != nil {
		logger.Debug("Error writing response to %s: %v (conn %s)",
			c.clientIP(), err, c.id)
	}
	s.metrics.RecordRequest(status, time.Since(start))
}

// respondError writes the standard HTML error page for a status code.
func (s *Server) respondError(c *conn, status int, rl rateLimitInfo, start time.Time) {
	s.respond(c, status, "text/html", errorPage(status), rl, start)
	logger.Debug("Sent error response: %d %s", status, http.StatusText(status))
}
