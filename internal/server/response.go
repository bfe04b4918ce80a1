package server

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/CmMarin/PR-Labs/internal/ratelimiter"
)

// serverName is the Server header value sent on every response.
const serverName = "HTTPServer/1.0"

// rateLimitInfo carries the rate-limiter state to stamp onto a response.
//
// When enabled, every response carries X-RateLimit-Limit and
// X-RateLimit-Window. remaining is included unless negative (hard 429
// rejections do not report a remaining budget). retryAfter > 0 adds a
// Retry-After header, rounded up to whole seconds and never below 1.
type rateLimitInfo struct {
	enabled    bool
	limit      int
	window     time.Duration
	remaining  int
	retryAfter time.Duration
}

// buildResponse assembles a complete HTTP/1.1 response: status line,
// headers, and body. Every response is framed here so header order and
// connection semantics stay uniform.
//
// The timestamp is injected so framing is deterministic under test.
func buildResponse(now time.Time, status int, contentType string, body []byte, rl rateLimitInfo) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	fmt.Fprintf(&buf, "Date: %s\r\n", now.UTC().Format(http.TimeFormat))
	fmt.Fprintf(&buf, "Server: %s\r\n", serverName)
	fmt.Fprintf(&buf, "Content-Type: %s\r\n", contentType)
	fmt.Fprintf(&buf, "Content-Length: %d\r\n", len(body))
	buf.WriteString("Connection: close\r\n")

	if rl.enabled {
		fmt.Fprintf(&buf, "X-RateLimit-Limit: %d\r\n", rl.limit)
		fmt.Fprintf(&buf, "X-RateLimit-Window: %d\r\n", int(rl.window/time.Second))
		if rl.remaining >= 0 {
			fmt.Fprintf(&buf, "X-RateLimit-Remaining: %d\r\n", rl.remaining)
		}
		if rl.retryAfter > 0 {
			fmt.Fprintf(&buf, "Retry-After: %d\r\n", ratelimiter.RetryAfterSeconds(rl.retryAfter))
		}
	}

	buf.WriteString("\r\n")
	buf.Write(body)

	return buf.Bytes()
}

// errorPage renders the HTML body for an error response.
const errorPageTemplate = `<!DOCTYPE html>
<html>
<head>
    <title>Error %d</title>
    <style>
        body {
            font-family: Arial;
            margin: 20px;
            background: white;
            color: black;
            text-align: center;
        }
        a {
            color: blue;
            text-decoration: none;
        }
        a:hover {
            text-decoration: underline;
        }
    </style>
</head>
<body>
    <h1>Error %d</h1>
    <h2>%s</h2>
    <p>The requested resource could not be found.</p>
    <p><a href="/">Back to Home</a></p>
    <p>File Server</p>
</body>
</html>`

func errorPage(status int) []byte {
	text := http.StatusText(status)
	return []byte(fmt.Sprintf(errorPageTemplate, status, status, text))
}
