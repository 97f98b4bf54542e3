package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// cleanupBatchSize bounds how many *.meta files are processed concurrently
// at once, keeping open file descriptors under control on large caches.
const cleanupBatchSize = 100

// CleanupResult summarizes one sweep of the cache directory.
type CleanupResult struct {
	Removed int
	Errors  int
}

// Cleanup enumerates every *.meta file, deletes both files of any expired
// entry, and reports how many entries were removed and how many files
// could not be inspected or deleted.
func (s *Store) Cleanup() CleanupResult {
	if err := s.ensureDir(); err != nil {
		s.logger.Warn("cache cleanup: ensure dir failed", zap.Error(err))
		return CleanupResult{Errors: 1}
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("cache cleanup: read dir failed", zap.Error(err))
		return CleanupResult{Errors: 1}
	}

	var metaFiles []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".html.meta") {
			metaFiles = append(metaFiles, e.Name())
		}
	}

	var total CleanupResult
	for start := 0; start < len(metaFiles); start += cleanupBatchSize {
		end := min(start+cleanupBatchSize, len(metaFiles))
		batch := metaFiles[start:end]
		removed, errs := s.cleanupBatch(batch)
		total.Removed += removed
		total.Errors += errs
	}
	return total
}

func (s *Store) cleanupBatch(names []string) (removed, errs int) {
	var (
		wg           sync.WaitGroup
		removedCount int
		errCount     int
		mu           sync.Mutex
	)
	wg.Add(len(names))
	for _, name := range names {
		go func(metaName string) {
			defer wg.Done()
			expired, err := s.processMetaFile(metaName)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errCount++
				return
			}
			if expired {
				removedCount++
			}
		}(name)
	}
	wg.Wait()
	return removedCount, errCount
}

func (s *Store) processMetaFile(metaName string) (expired bool, err error) {
	metaPath := filepath.Join(s.dir, metaName)
	digest := strings.TrimSuffix(metaName, ".html.meta")
	htmlPath := s.htmlPath(digest)

	raw, err := os.ReadFile(metaPath) //nolint:gosec // path constructed from a directory listing
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		s.logger.Warn("cache cleanup: read meta failed", zap.String("file", metaName), zap.Error(err))
		return false, err
	}

	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		s.logger.Warn("cache cleanup: parse meta failed", zap.String("file", metaName), zap.Error(err))
		return false, err
	}

	if s.clock.Now().UnixMilli() <= meta.ExpiresAt {
		return false, nil
	}

	s.removeEntry(htmlPath, metaPath)
	return true, nil
}

// Startup performs the configured startup sweep: a full Clear when
// clearOnStartup is true, otherwise a single Cleanup pass.
func (s *Store) Startup(clearOnStartup bool) error {
	if clearOnStartup {
		return s.Clear()
	}
	s.Cleanup()
	return nil
}

// RunCleanupScheduler runs Cleanup on the given interval until ctx is
// canceled, matching the graceful-shutdown contract: the ticker stops
// cleanly and no goroutine is leaked.
func (s *Store) RunCleanupScheduler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result := s.Cleanup()
			s.logger.Debug("cache cleanup swept",
				zap.Int("removed", result.Removed),
				zap.Int("errors", result.Errors),
			)
		}
	}
}
