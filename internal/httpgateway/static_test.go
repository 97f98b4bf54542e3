package httpgateway

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolveStaticPathServesExistingFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "app.js"), "console.log(1)")

	resolved, ok, traversal := resolveStaticPath(dir, "/app.js")
	if !ok {
		t.Fatal("expected app.js to resolve")
	}
	if traversal {
		t.Fatal("did not expect a traversal flag for an in-source file")
	}
	if resolved != filepath.Join(dir, "app.js") {
		t.Fatalf("resolved = %q", resolved)
	}
}

func TestResolveStaticPathDirectoryFallsBackToIndex(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "sub", "index.html"), "<html></html>")

	resolved, ok, traversal := resolveStaticPath(dir, "/sub")
	if !ok {
		t.Fatal("expected directory to resolve to its index.html")
	}
	if traversal {
		t.Fatal("did not expect a traversal flag for an in-source directory")
	}
	if resolved != filepath.Join(dir, "sub", "index.html") {
		t.Fatalf("resolved = %q", resolved)
	}
}

func TestResolveStaticPathRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(filepath.Dir(dir), "secret.txt"), "top secret")

	_, ok, traversal := resolveStaticPath(dir, "/../secret.txt")
	if ok {
		t.Fatal("expected traversal outside sourceDir to be rejected")
	}
	if !traversal {
		t.Fatal("expected traversal flag to be set for an out-of-source path")
	}
}

func TestResolveStaticPathMissingFile(t *testing.T) {
	dir := t.TempDir()
	_, ok, traversal := resolveStaticPath(dir, "/missing.js")
	if ok {
		t.Fatal("expected missing file to not resolve")
	}
	if traversal {
		t.Fatal("a missing in-source file is not a traversal")
	}
}

func TestIndexPathPresentAndAbsent(t *testing.T) {
	dir := t.TempDir()
	if _, ok := indexPath(dir); ok {
		t.Fatal("expected no index.html yet")
	}
	writeFile(t, filepath.Join(dir, "index.html"), "<html></html>")
	if _, ok := indexPath(dir); !ok {
		t.Fatal("expected index.html to be found")
	}
}

func TestServeStaticFileFallsBackToSPAIndex(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "index.html"), "<html>spa</html>")

	r := httptest.NewRequest(http.MethodGet, "/some/deep/route", nil)
	w := httptest.NewRecorder()

	if !serveStaticFile(w, r, dir, "/some/deep/route") {
		t.Fatal("expected SPA fallback to succeed")
	}
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestServeStaticFileRejectsTraversalEvenWithSPAIndex(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "index.html"), "<html>spa</html>")
	writeFile(t, filepath.Join(filepath.Dir(dir), "secret.txt"), "top secret")

	r := httptest.NewRequest(http.MethodGet, "/../secret.txt", nil)
	w := httptest.NewRecorder()

	if serveStaticFile(w, r, dir, "/../secret.txt") {
		t.Fatal("expected a traversal attempt to be rejected, not served via SPA fallback")
	}
}

func TestServeStaticFileReturnsFalseWithNoIndex(t *testing.T) {
	dir := t.TempDir()
	r := httptest.NewRequest(http.MethodGet, "/missing", nil)
	w := httptest.NewRecorder()

	if serveStaticFile(w, r, dir, "/missing") {
		t.Fatal("expected serveStaticFile to fail with no index.html present")
	}
}
