package httpgateway

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// resolveStaticPath joins requestPath onto sourceDir and verifies the
// result stays within sourceDir. It returns the file to serve: requestPath
// itself if present, the directory's index.html if requestPath is a
// directory, or ok=false if neither exists. traversal=true means
// requestPath normalized to somewhere outside sourceDir — a distinct
// condition from "not found", since a traversal attempt must never fall
// through to the SPA index.
func resolveStaticPath(sourceDir, requestPath string) (path string, ok bool, traversal bool) {
	cleanSource := filepath.Clean(sourceDir)
	joined := filepath.Join(cleanSource, filepath.FromSlash(requestPath))
	cleanJoined := filepath.Clean(joined)

	if cleanJoined != cleanSource && !strings.HasPrefix(cleanJoined, cleanSource+string(filepath.Separator)) {
		return "", false, true
	}

	info, err := os.Stat(cleanJoined)
	if err != nil {
		return "", false, false
	}
	if info.IsDir() {
		indexPath := filepath.Join(cleanJoined, "index.html")
		if _, err := os.Stat(indexPath); err != nil {
			return "", false, false
		}
		return indexPath, true, false
	}
	return cleanJoined, true, false
}

// indexPath returns sourceDir's index.html path if it exists.
func indexPath(sourceDir string) (string, bool) {
	p := filepath.Join(filepath.Clean(sourceDir), "index.html")
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}

// serveStaticFile resolves requestPath against sourceDir and writes the
// matching file, falling back to sourceDir's index.html (SPA fallback).
// A traversal attempt (requestPath resolving outside sourceDir) never
// reaches the SPA fallback and returns false, so the caller 404s it.
// Returns false when neither the path nor the fallback index exists.
func serveStaticFile(w http.ResponseWriter, r *http.Request, sourceDir, requestPath string) bool {
	resolved, ok, traversal := resolveStaticPath(sourceDir, requestPath)
	if ok {
		http.ServeFile(w, r, resolved)
		return true
	}
	if traversal {
		return false
	}
	if idx, ok := indexPath(sourceDir); ok {
		http.ServeFile(w, r, idx)
		return true
	}
	return false
}
