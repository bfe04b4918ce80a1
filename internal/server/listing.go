package server

import (
	"fmt"
	"html"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/CmMarin/PR-Labs/internal/counter"
	"github.com/CmMarin/PR-Labs/internal/resolver"
)

const listingHeaderTemplate = `<!DOCTYPE html>
<html>
<head>
    <title>Directory: %s</title>
    <style>
        body {
            font-family: Arial;
            margin: 20px;
            background: white;
            color: black;
        }
        a {
            color: blue;
            text-decoration: none;
        }
        a:hover {
            text-decoration: underline;
        }
        .path {
            background: #f0f0f0;
            padding: 10px;
            margin: 10px 0;
        }
        ul {
            list-style: none;
            padding: 0;
        }
        li {
            margin: 5px 0;
            padding: 5px;
            border-bottom: 1px solid #ddd;
        }
    </style>
</head>
<body>
    <h1>Directory Listing</h1>
    <div class="path">Path: %s</div>
    <ul>
`

const listingFooter = `    </ul>
    <p>File Server</p>
</body>
</html>`

// fileTypeDisplay maps known extensions to a human-readable type label
// shown next to each listing entry.
var fileTypeDisplay = map[string]string{
	".html": "webpage",
	".htm":  "webpage",
	".png":  "image",
	".pdf":  "document",
	".txt":  "text",
}

func displayType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := fileTypeDisplay[ext]; ok {
		return t
	}
	return "file"
}

// buildListing renders the HTML directory listing for a resolved directory
// target.
//
// Entries are sorted by name with directories listed before files. Each
// entry is annotated with its visit count from the counter store
// (directories keyed with a trailing slash). A parent link is included
// unless the directory is the root.
func (s *Server) buildListing(target *resolver.Target) ([]byte, error) {
	entries, err := os.ReadDir(target.Path)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var dirs, files []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		} else {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(dirs)
	sort.Strings(files)

	urlPath := target.URLPath
	if !strings.HasSuffix(urlPath, "/") {
		urlPath += "/"
	}

	var b strings.Builder
	fmt.Fprintf(&b, listingHeaderTemplate, html.EscapeString(urlPath), html.EscapeString(urlPath))

	if urlPath != "/" {
		parent := parentPath(urlPath)
		fmt.Fprintf(&b, "        <li><a href=\"%s\">.. (Parent Directory)</a></li>\n", parent)
	}

	for _, name := range dirs {
		href := urlPath + url.PathEscape(name) + "/"
		key := counter.Key(s.resolver.Root(), filepath.Join(target.Path, name), true)
		fmt.Fprintf(&b, "        <li><a href=\"%s\">%s/</a> - Directory - Requests: %d</li>\n",
			href, html.EscapeString(name), s.counts.Read(key))
	}

	for _, name := range files {
		href := urlPath + url.PathEscape(name)
		key := counter.Key(s.resolver.Root(), filepath.Join(target.Path, name), false)
		fmt.Fprintf(&b, "        <li><a href=\"%s\">%s</a> - %s - Requests: %d</li>\n",
			href, html.EscapeString(name), displayType(name), s.counts.Read(key))
	}

	b.WriteString(listingFooter)

	return []byte(b.String()), nil
}

// parentPath computes the parent directory URL of a trailing-slash path.
func parentPath(urlPath string) string {
	trimmed := strings.TrimSuffix(urlPath, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx <= 0 {
		return "/"
	}
	return trimmed[:idx+1]
}
