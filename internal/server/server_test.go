package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CmMarin/PR-Labs/internal/counter"
	"github.com/CmMarin/PR-Labs/internal/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFixtures populates a served root with the files the tests request.
func writeFixtures(t *testing.T, root string) {
	t.Helper()

	files := map[string][]byte{
		"index.html":           []byte("<html><body>home</body></html>"),
		"logo.png":             {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0xFF},
		"notes.txt":            []byte("plain text"),
		"tool.exe":             []byte("MZ"),
		"bad.txt":              {0xFF, 0xFE, 0x00, 0x41},
		"docs/readme.txt":      []byte("docs readme"),
		"docs/with space.txt":  []byte("spaced"),
		"outer/inner/leaf.txt": []byte("leaf"),
	}
	for name, data := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, data, 0o644))
	}
}

// startTestServer boots a server on an ephemeral port and tears it down
// with the test.
func startTestServer(t *testing.T, mutate func(*Config)) *Server {
	t.Helper()

	root := t.TempDir()
	writeFixtures(t, root)

	cfg := Config{
		Host:            "127.0.0.1",
		Port:            0,
		Root:            root,
		RateLimit:       10000,
		RateWindow:      time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	srv := New(cfg, nil)

	res, err := resolver.New(root, nil)
	require.NoError(t, err)
	srv.SetStores(res, counter.NewStore(counter.ModeSerialized, 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("server did not shut down in time")
		}
	})

	// Wait for the listener to bind
	deadline := time.Now().Add(5 * time.Second)
	for srv.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("server never started listening")
		}
		time.Sleep(5 * time.Millisecond)
	}

	return srv
}

// doRaw sends raw bytes over a fresh connection and returns the full
// response after the server closes the connection.
func doRaw(t *testing.T, addr, raw string) string {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(raw))
	require.NoError(t, err)

	resp, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(resp)
}

// doGET issues a GET for the given path and parses the response.
func doGET(t *testing.T, addr, path string) (status int, headers map[string]string, body string) {
	t.Helper()

	raw := doRaw(t, addr, fmt.Sprintf("GET %s HTTP/1.1\r\nHost: test\r\n\r\n", path))
	return parseResponse(t, raw)
}

func parseResponse(t *testing.T, raw string) (int, map[string]string, string) {
	t.Helper()

	head, body, found := strings.Cut(raw, "\r\n\r\n")
	require.True(t, found, "malformed response: %q", raw)

	lines := strings.Split(head, "\r\n")
	statusFields := strings.SplitN(lines[0], " ", 3)
	require.Len(t, statusFields, 3, "malformed status line: %q", lines[0])
	status, err := strconv.Atoi(statusFields[1])
	require.NoError(t, err)

	headers := make(map[string]string)
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ": ")
		require.True(t, ok, "malformed header line: %q", line)
		headers[strings.ToLower(name)] = value
	}

	return status, headers, body
}

func TestServeFile(t *testing.T) {
	srv := startTestServer(t, nil)
	addr := srv.Addr().String()

	status, headers, body := doGET(t, addr, "/index.html")

	assert.Equal(t, 200, status)
	assert.Equal(t, "text/html", headers["content-type"])
	assert.Equal(t, strconv.Itoa(len(body)), headers["content-length"])
	assert.Equal(t, "close", headers["connection"])
	assert.Equal(t, "HTTPServer/1.0", headers["server"])
	assert.Equal(t, "<html><body>home</body></html>", body)

	// Every admitted response carries the rate-limit context
	assert.Equal(t, "10000", headers["x-ratelimit-limit"])
	assert.Equal(t, "1", headers["x-ratelimit-window"])
	assert.NotEmpty(t, headers["x-ratelimit-remaining"])
}

func TestRootServesIndex(t *testing.T) {
	srv := startTestServer(t, nil)

	status, _, body := doGET(t, srv.Addr().String(), "/")

	assert.Equal(t, 200, status)
	assert.Equal(t, "<html><body>home</body></html>", body)
}

func TestServeBinaryFile(t *testing.T) {
	srv := startTestServer(t, nil)

	status, headers, body := doGET(t, srv.Addr().String(), "/logo.png")

	assert.Equal(t, 200, status)
	assert.Equal(t, "image/png", headers["content-type"])
	assert.Equal(t, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0xFF}, []byte(body))
}

func TestQueryStringIgnored(t *testing.T) {
	srv := startTestServer(t, nil)

	status, _, body := doGET(t, srv.Addr().String(), "/notes.txt?version=2&x=1")

	assert.Equal(t, 200, status)
	assert.Equal(t, "plain text", body)
}

func TestPercentDecodedPath(t *testing.T) {
	srv := startTestServer(t, nil)

	status, headers, body := doGET(t, srv.Addr().String(), "/docs/with%20space.txt")

	assert.Equal(t, 200, status)
	assert.Equal(t, "text/plain", headers["content-type"])
	assert.Equal(t, "spaced", body)
}

func TestDirectoryListing(t *testing.T) {
	srv := startTestServer(t, nil)
	addr := srv.Addr().String()

	// Two visits to the inner directory, one to the leaf file
	doGET(t, addr, "/outer/inner")
	doGET(t, addr, "/outer/inner")
	doGET(t, addr, "/outer/inner/leaf.txt")

	status, headers, body := doGET(t, addr, "/outer")

	assert.Equal(t, 200, status)
	assert.Equal(t, "text/html", headers["content-type"])
	assert.Contains(t, body, "Directory Listing")
	assert.Contains(t, body, `<a href="/">.. (Parent Directory)</a>`)
	assert.Contains(t, body, `inner/</a> - Directory - Requests: 2`)

	// The inner listing annotates the leaf file's single visit
	status, _, body = doGET(t, addr, "/outer/inner/")
	assert.Equal(t, 200, status)
	assert.Contains(t, body, `leaf.txt</a> - text - Requests: 1`)
	assert.NotContains(t, body, "Directory - Requests:") // no subdirectories
}

func TestListingSortsDirectoriesFirst(t *testing.T) {
	srv := startTestServer(t, nil)

	_, _, body := doGET(t, srv.Addr().String(), "/docs")

	// docs has no subdirectories; files appear sorted
	readmeIdx := strings.Index(body, "readme.txt")
	spaceIdx := strings.Index(body, "with space.txt")
	require.GreaterOrEqual(t, readmeIdx, 0)
	require.GreaterOrEqual(t, spaceIdx, 0)
	assert.Less(t, readmeIdx, spaceIdx)
}

func TestBadRequestLine(t *testing.T) {
	srv := startTestServer(t, nil)
	addr := srv.Addr().String()

	for _, raw := range []string{
		"GARBAGE\r\n\r\n",
		"GET /index.html\r\n\r\n",
		"GET /index.html HTTP/1.1 extra\r\n\r\n",
	} {
		status, _, body := parseResponse(t, doRaw(t, addr, raw))
		assert.Equal(t, 400, status, "request %q", raw)
		assert.Contains(t, body, "Error 400")
	}
}

func TestBadPercentEncoding(t *testing.T) {
	srv := startTestServer(t, nil)

	status, _, _ := doGET(t, srv.Addr().String(), "/bad%zzpath")

	assert.Equal(t, 400, status)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := startTestServer(t, nil)

	raw := doRaw(t, srv.Addr().String(), "POST /index.html HTTP/1.1\r\nHost: test\r\n\r\n")
	status, _, body := parseResponse(t, raw)

	assert.Equal(t, 405, status)
	assert.Contains(t, body, "Method Not Allowed")
}

func TestForbiddenTraversal(t *testing.T) {
	srv := startTestServer(t, nil)

	status, _, _ := doGET(t, srv.Addr().String(), "/../secret.txt")

	assert.Equal(t, 403, status)
}

func TestNotFound(t *testing.T) {
	srv := startTestServer(t, nil)

	status, _, body := doGET(t, srv.Addr().String(), "/missing.html")

	assert.Equal(t, 404, status)
	assert.Contains(t, body, `<a href="/">Back to Home</a>`)
}

func TestUnsupportedMediaType(t *testing.T) {
	srv := startTestServer(t, nil)

	status, _, _ := doGET(t, srv.Addr().String(), "/tool.exe")

	assert.Equal(t, 415, status)
}

func TestInvalidUTF8TextFile(t *testing.T) {
	srv := startTestServer(t, nil)

	status, _, _ := doGET(t, srv.Addr().String(), "/bad.txt")

	assert.Equal(t, 500, status)
}

func TestBlankRequestClosedSilently(t *testing.T) {
	srv := startTestServer(t, nil)

	resp := doRaw(t, srv.Addr().String(), "\r\n")

	assert.Empty(t, resp)
}

func TestRateLimitExceeded(t *testing.T) {
	srv := startTestServer(t, func(cfg *Config) {
		cfg.RateLimit = 2
		cfg.RateWindow = time.Second
	})
	addr := srv.Addr().String()

	status, _, _ := doGET(t, addr, "/index.html")
	require.Equal(t, 200, status)
	status, _, _ = doGET(t, addr, "/index.html")
	require.Equal(t, 200, status)

	status, headers, body := doGET(t, addr, "/index.html")
	assert.Equal(t, 429, status)
	assert.Contains(t, body, "Too Many Requests")
	assert.Equal(t, "2", headers["x-ratelimit-limit"])
	assert.Equal(t, "1", headers["x-ratelimit-window"])
	_, hasRemaining := headers["x-ratelimit-remaining"]
	assert.False(t, hasRemaining, "hard rejections must not report a remaining budget")

	retryAfter, err := strconv.Atoi(headers["retry-after"])
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retryAfter, 1)

	// The window slides: after it passes, requests are admitted again
	time.Sleep(1100 * time.Millisecond)
	status, _, _ = doGET(t, addr, "/index.html")
	assert.Equal(t, 200, status)
}

func TestRateLimitDisabled(t *testing.T) {
	srv := startTestServer(t, func(cfg *Config) {
		cfg.RateLimit = 0
	})

	status, headers, _ := doGET(t, srv.Addr().String(), "/index.html")

	assert.Equal(t, 200, status)
	_, hasLimit := headers["x-ratelimit-limit"]
	assert.False(t, hasLimit)
	_, hasWindow := headers["x-ratelimit-window"]
	assert.False(t, hasWindow)
}

func TestConcurrentRequests(t *testing.T) {
	const (
		clients = 20
		delay   = 300 * time.Millisecond
	)

	srv := startTestServer(t, func(cfg *Config) {
		cfg.HandlerDelay = delay
	})
	addr := srv.Addr().String()

	start := time.Now()
	var wg sync.WaitGroup
	statuses := make([]int, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			statuses[i], _, _ = doGET(t, addr, "/notes.txt")
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	for i, status := range statuses {
		assert.Equal(t, 200, status, "client %d", i)
	}

	// Sequential handling would take clients*delay (6s); concurrent
	// handling finishes in roughly one delay
	assert.Less(t, elapsed, time.Duration(clients)*delay/2,
		"requests were not handled concurrently (took %v)", elapsed)
}

func TestCounterAccurateUnderConcurrency(t *testing.T) {
	const clients = 30

	srv := startTestServer(t, nil)
	addr := srv.Addr().String()

	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doGET(t, addr, "/outer/inner/leaf.txt")
		}()
	}
	wg.Wait()

	_, _, body := doGET(t, addr, "/outer/inner")
	assert.Contains(t, body, fmt.Sprintf("leaf.txt</a> - text - Requests: %d", clients))
}

func TestGracefulShutdownDrainsInFlight(t *testing.T) {
	root := t.TempDir()
	writeFixtures(t, root)

	cfg := Config{
		Host:            "127.0.0.1",
		Port:            0,
		Root:            root,
		HandlerDelay:    500 * time.Millisecond,
		ShutdownTimeout: 5 * time.Second,
	}
	srv := New(cfg, nil)

	res, err := resolver.New(root, nil)
	require.NoError(t, err)
	srv.SetStores(res, counter.NewStore(counter.ModeSerialized, 0))

	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- srv.Serve(ctx)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for srv.Addr() == nil {
		require.False(t, time.Now().After(deadline), "server never started listening")
		time.Sleep(5 * time.Millisecond)
	}
	addr := srv.Addr().String()

	// Start a slow request, then trigger shutdown while it is in flight
	respCh := make(chan string, 1)
	go func() {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			respCh <- ""
			return
		}
		defer conn.Close()
		_, _ = conn.Write([]byte("GET /index.html HTTP/1.1\r\nHost: test\r\n\r\n"))
		resp, _ := io.ReadAll(conn)
		respCh <- string(resp)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-serveDone:
		assert.NoError(t, err, "in-flight request should drain within the timeout")
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}

	resp := <-respCh
	status, _, _ := parseResponse(t, resp)
	assert.Equal(t, 200, status, "in-flight request must complete during graceful shutdown")
}
