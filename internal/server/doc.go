// Package server implements the concurrent HTTP file server: a TCP accept
// loop that spawns one goroutine per connection, a per-client rate-limit
// admission gate, a single-request handler pipeline (parse, resolve, count,
// serve), and a uniform HTTP/1.1 response framer.
//
// Every connection carries exactly one request and is closed after the
// response (Connection: close semantics). Concurrency is unbounded unless
// max_connections or accept_rate is configured.
package server
