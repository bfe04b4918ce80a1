// Package resolver maps decoded URL paths onto the served directory tree,
// enforcing that every resolved target stays inside the configured root.
package resolver

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrBadPath reports a request path that could not be percent-decoded.
	ErrBadPath = errors.New("malformed request path")

	// ErrForbidden reports a path that escapes the served root.
	ErrForbidden = errors.New("path escapes served root")

	// ErrNotFound reports a path with no file or directory behind it.
	ErrNotFound = errors.New("no such file or directory")

	// ErrUnsupportedType reports a file whose extension is not in the
	// MIME table.
	ErrUnsupportedType = errors.New("unsupported media type")
)

// Kind distinguishes the two servable target variants.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
)

// Target is the result of a successful resolution.
type Target struct {
	// Path is the absolute filesystem path of the target.
	Path string

	// URLPath is the decoded request path after query stripping and the
	// root substitution, used for listing links.
	URLPath string

	// Kind is file or directory.
	Kind Kind

	// MIMEType is the content type for files; empty for directories.
	MIMEType string
}

// Resolver resolves request paths against a root directory and a MIME table.
//
// Resolution is purely lexical plus stat calls; symlinks inside the root are
// followed by the filesystem and not re-checked for escapes.
type Resolver struct {
	root      string
	mimeTypes map[string]string
}

// DefaultMIMETypes returns the built-in extension table. Returned as a
// fresh map so callers may extend it without affecting others.
func DefaultMIMETypes() map[string]string {
	return map[string]string{
		".html": "text/html",
		".htm":  "text/html",
		".png":  "image/png",
		".pdf":  "application/pdf",
		".txt":  "text/plain",
	}
}

// New creates a Resolver for the given root (made absolute) and MIME table
// keyed by lowercase extension including the dot (".html": "text/html").
// A nil table falls back to DefaultMIMETypes.
func New(root string, mimeTypes map[string]string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", root, err)
	}
	if mimeTypes == nil {
		mimeTypes = DefaultMIMETypes()
	}
	return &Resolver{root: abs, mimeTypes: mimeTypes}, nil
}

// Root returns the absolute served root.
func (r *Resolver) Root() string {
	return r.root
}

// MIMEType looks up the content type for a filename by extension. The second
// return value reports whether the extension is in the table.
func (r *Resolver) MIMEType(name string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	mime, ok := r.mimeTypes[ext]
	return mime, ok
}

// Resolve maps a raw request path to a Target.
//
// Steps: percent-decode, strip the query string, substitute /index.html for
// the bare root path, join onto the root, then verify containment by path
// components before stat'ing the result. Failures map to ErrBadPath,
// ErrForbidden, ErrNotFound, or ErrUnsupportedType.
func (r *Resolver) Resolve(rawPath string) (*Target, error) {
	decoded, err := url.PathUnescape(rawPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBadPath, rawPath)
	}

	// Query strings are not meaningful for file lookup.
	if idx := strings.Index(decoded, "?"); idx >= 0 {
		decoded = decoded[:idx]
	}

	if decoded == "/" {
		decoded = "/index.html"
	}

	joined := filepath.Join(r.root, strings.TrimPrefix(decoded, "/"))
	abs, err := filepath.Abs(joined)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBadPath, rawPath)
	}

	// Containment is checked on path components, not string prefixes, so
	// a sibling such as root+"-secret" can never pass.
	rel, err := filepath.Rel(r.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %q", ErrForbidden, decoded)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, decoded)
	}

	if info.IsDir() {
		return &Target{Path: abs, URLPath: decoded, Kind: KindDirectory}, nil
	}

	mime, ok := r.MIMEType(abs)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, filepath.Ext(abs))
	}

	return &Target{Path: abs, URLPath: decoded, Kind: KindFile, MIMEType: mime}, nil
}
