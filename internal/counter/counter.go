package counter

import (
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Mode selects the increment strategy for a Store.
type Mode string

const (
	// ModeSerialized guards every read-modify-write with a store-wide
	// mutex. Final counts equal the number of increments.
	ModeSerialized Mode = "serialized"

	// ModeUnserialized performs the same read-modify-write without the
	// mutex. Concurrent increments can interleave between the load and
	// the store, losing updates. This mode exists to make the classic
	// lost-update race observable; it must reproduce the race, not avoid
	// it.
	ModeUnserialized Mode = "unserialized"
)

// Store counts visits per resource key.
//
// Keys are normalized root-relative paths (see Key). Counts live in a
// sync.Map of atomic counters; the map itself is always safe to touch, so
// the only thing the unserialized mode gives up is the atomicity of the
// read-modify-write sequence, which is exactly the race under study.
//
// The optional delay is injected between the load and the store of an
// increment to widen the race window deterministically for tests.
type Store struct {
	mode  Mode
	delay time.Duration

	mu     sync.Mutex
	counts sync.Map // string -> *atomic.Int64
}

// NewStore creates a Store using the given increment mode. delay is the
// artificial critical-section delay (0 disables it).
func NewStore(mode Mode, delay time.Duration) *Store {
	return &Store{mode: mode, delay: delay}
}

// Mode returns the store's increment strategy.
func (s *Store) Mode() Mode {
	return s.mode
}

func (s *Store) counter(key string) *atomic.Int64 {
	if c, ok := s.counts.Load(key); ok {
		return c.(*atomic.Int64)
	}
	c, _ := s.counts.LoadOrStore(key, new(atomic.Int64))
	return c.(*atomic.Int64)
}

// Increment adds one visit to key using the configured strategy.
func (s *Store) Increment(key string) {
	c := s.counter(key)

	if s.mode == ModeSerialized {
		s.mu.Lock()
		defer s.mu.Unlock()
	}

	n := c.Load()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	c.Store(n + 1)
}

// Read returns the current count for key. Serialized mode serializes reads
// against in-flight increments; unserialized mode reads without locking.
func (s *Store) Read(key string) int64 {
	if s.mode == ModeSerialized {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	if c, ok := s.counts.Load(key); ok {
		return c.(*atomic.Int64).Load()
	}
	return 0
}

// Snapshot returns a copy of all known counts.
func (s *Store) Snapshot() map[string]int64 {
	out := make(map[string]int64)
	s.counts.Range(func(k, v any) bool {
		out[k.(string)] = v.(*atomic.Int64).Load()
		return true
	})
	return out
}

// Key normalizes an absolute filesystem path into the store's resource key:
// the path relative to root with forward slashes, where the root itself is
// "/", directories carry a trailing slash, and files do not.
func Key(root, absPath string, isDir bool) string {
	rel, err := filepath.Rel(root, absPath)
	if err != nil {
		rel = absPath
	}
	rel = filepath.ToSlash(rel)

	if rel == "." || rel == "" {
		return "/"
	}

	rel = strings.TrimSuffix(rel, "/")
	if isDir {
		return rel + "/"
	}
	return rel
}
