// Package cache implements the two-file on-disk content cache: a rendered
// HTML payload paired with a JSON metadata sidecar, keyed by a SHA-256
// fingerprint of the target URL and device type.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Clock returns the current time; injectable for TTL testability, mirroring
// how the rest of the gateway threads a Clock through instead of calling
// time.Now directly.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Meta is the JSON sidecar persisted alongside each cached HTML payload.
type Meta struct {
	ExpiresAt  int64  `json:"expiresAt"`
	URL        string `json:"url"`
	DeviceType string `json:"deviceType"`
}

// Store is a file-backed key/value cache over (fingerprint) -> HTML, with
// paired metadata and background expiry. It exclusively owns the cache
// directory.
type Store struct {
	dir    string
	clock  Clock
	logger *zap.Logger

	dirInit singleflight.Group
}

// New constructs a Store rooted at dir. clock defaults to the system clock
// when nil; logger defaults to a no-op logger when nil.
func New(dir string, clock Clock, logger *zap.Logger) *Store {
	if clock == nil {
		clock = systemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: dir, clock: clock, logger: logger}
}

// Digest computes the cache fingerprint for (url, device): the hex-encoded
// SHA-256 of "{device}:{url}".
func Digest(url, device string) string {
	sum := sha256.Sum256([]byte(device + ":" + url))
	return hex.EncodeToString(sum[:])
}

func (s *Store) htmlPath(digest string) string {
	return filepath.Join(s.dir, digest+".html")
}

func (s *Store) metaPath(digest string) string {
	return filepath.Join(s.dir, digest+".html.meta")
}

// ensureDir creates the cache directory on first use. Concurrent callers
// share one in-flight creation (singleflight); on failure the group forgets
// the call so the next caller retries rather than reusing the failed result.
func (s *Store) ensureDir() error {
	_, err, _ := s.dirInit.Do("init", func() (any, error) {
		return nil, os.MkdirAll(s.dir, 0o750)
	})
	if err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	return nil
}

// Writable reports whether the cache directory exists and accepts writes,
// used by the /health endpoint.
func (s *Store) Writable() (bool, error) {
	if err := s.ensureDir(); err != nil {
		return false, err
	}
	probe := filepath.Join(s.dir, ".writable_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return false, fmt.Errorf("cache dir not writable: %w", err)
	}
	_ = os.Remove(probe)
	return true, nil
}

// Get returns the cached HTML for (url, device) if a valid, unexpired entry
// exists. A miss is reported via ok=false and is never itself an error;
// any read failure downgrades to a miss after being logged.
func (s *Store) Get(url, device string) (html string, ok bool) {
	digest := Digest(url, device)
	metaPath := s.metaPath(digest)
	htmlPath := s.htmlPath(digest)

	metaBytes, err := os.ReadFile(metaPath) //nolint:gosec // path built from a fixed cache dir + hex digest
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("cache meta read failed", zap.Error(err), zap.String("digest", digest))
		}
		return "", false
	}

	var meta Meta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		s.logger.Warn("cache meta parse failed", zap.Error(err), zap.String("digest", digest))
		return "", false
	}

	if s.clock.Now().UnixMilli() > meta.ExpiresAt {
		s.removeEntry(htmlPath, metaPath)
		return "", false
	}

	body, err := os.ReadFile(htmlPath) //nolint:gosec // path built from a fixed cache dir + hex digest
	if err != nil {
		if os.IsNotExist(err) {
			// Dangling metadata with no payload: self-heal by dropping it.
			_ = os.Remove(metaPath)
		} else {
			s.logger.Warn("cache html read failed", zap.Error(err), zap.String("digest", digest))
		}
		return "", false
	}

	return string(body), true
}

// Set writes the HTML payload and its metadata sidecar. The two writes are
// issued concurrently and are not cross-file atomic: a partial write
// self-heals into a miss on the next Get.
func (s *Store) Set(url, htmlBody, device string, ttlSeconds int) error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	digest := Digest(url, device)
	meta := Meta{
		ExpiresAt:  s.clock.Now().Add(time.Duration(ttlSeconds) * time.Second).UnixMilli(),
		URL:        url,
		DeviceType: device,
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal cache meta: %w", err)
	}

	type writeResult struct{ err error }
	htmlDone := make(chan writeResult, 1)
	metaDone := make(chan writeResult, 1)

	go func() {
		htmlDone <- writeResult{os.WriteFile(s.htmlPath(digest), []byte(htmlBody), 0o600)} //nolint:gosec
	}()
	go func() {
		metaDone <- writeResult{os.WriteFile(s.metaPath(digest), metaBytes, 0o600)} //nolint:gosec
	}()

	htmlRes := <-htmlDone
	metaRes := <-metaDone
	return errors.Join(htmlRes.err, metaRes.err)
}

// Invalidate removes the cached entry for (url, device), if any. A missing
// entry is not an error: a second Invalidate call is a no-op.
func (s *Store) Invalidate(url, device string) error {
	digest := Digest(url, device)
	s.removeEntry(s.htmlPath(digest), s.metaPath(digest))
	return nil
}

// Clear removes every cached HTML payload and metadata sidecar.
func (s *Store) Clear() error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read cache dir: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if filepath.Ext(name) == ".html" || filepath.Ext(name) == ".meta" {
			if rmErr := os.Remove(filepath.Join(s.dir, name)); rmErr != nil && !os.IsNotExist(rmErr) {
				s.logger.Warn("cache clear failed to remove file", zap.String("file", name), zap.Error(rmErr))
			}
		}
	}
	return nil
}

func (s *Store) removeEntry(htmlPath, metaPath string) {
	if err := os.Remove(htmlPath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("cache remove html failed", zap.Error(err))
	}
	if err := os.Remove(metaPath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("cache remove meta failed", zap.Error(err))
	}
}
