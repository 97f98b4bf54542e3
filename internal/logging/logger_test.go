// Package logging includes tests for the zap logger helpers.
package logging

import (
	"testing"

	"go.uber.org/zap"
)

// TestNewDevelopmentLogger confirms the development logger builds and logs.
func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(true)
	if err != nil {
		t.Fatalf("New(true) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

// TestNewProductionLogger ensures the production logger configuration succeeds.
func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(false)
	if err != nil {
		t.Fatalf("New(false) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("production logger ready")
}

// TestForLevelMapsLogsSetting confirms none/ssr/all map to the documented
// zap level floors.
func TestForLevelMapsLogsSetting(t *testing.T) {
	t.Parallel()

	base, err := New(false)
	if err != nil {
		t.Fatalf("New(false) error = %v", err)
	}

	none := ForLevel(base, "none")
	if none.Core().Enabled(zap.InfoLevel) {
		t.Fatal("expected logs=none to disable info-level logging")
	}

	ssr := ForLevel(base, "ssr")
	if !ssr.Core().Enabled(zap.InfoLevel) {
		t.Fatal("expected logs=ssr to keep info-level logging enabled")
	}

	all := ForLevel(base, "all")
	if !all.Core().Enabled(zap.DebugLevel) {
		t.Fatal("expected logs=all to enable debug-level logging")
	}
}
