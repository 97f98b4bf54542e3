package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderx/prerender-gateway/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Global.Port)
	assert.Equal(t, "smart-ssr", cfg.Global.Strategy)
	assert.Equal(t, "ssr", cfg.Global.Logs)
	assert.True(t, cfg.Global.ClearCacheOnStartup)
	assert.Equal(t, config.DefaultBots, cfg.Global.Bots)
}

func TestLoadRejectsBadStrategy(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `{"strategy": "bogus"}`)
	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strategy")
}

func TestExactMatchWinsOverGlob(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `{
		"hosts": [
			{"source": "wild", "host": "*.example"},
			{"source": "exact", "host": "app.example"}
		]
	}`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	eff, ok := cfg.Effective("app.example")
	require.True(t, ok)
	assert.Equal(t, "exact", eff.Source)

	eff, ok = cfg.Effective("other.example")
	require.True(t, ok)
	assert.Equal(t, "wild", eff.Source)
}

func TestInactiveHostNeverMatches(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `{
		"hosts": [{"source": "off", "host": "off.example", "active": false}]
	}`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	_, ok := cfg.Effective("off.example")
	assert.False(t, ok)
	assert.False(t, cfg.MatchHostname("off.example"))
}

func TestEffectiveDerivedFields(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `{
		"cacheCleanupIntervalMinutes": 5,
		"hosts": [
			{"source": "csr-app", "host": "csr.example", "strategy": "csr"},
			{"source": "ssr-app", "host": "ssr.example", "strategy": "ssr"}
		]
	}`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	eff, ok := cfg.Effective("csr.example")
	require.True(t, ok)
	assert.True(t, eff.BotOnly)
	assert.Equal(t, 300, eff.CacheTTLSeconds)

	eff, ok = cfg.Effective("ssr.example")
	require.True(t, ok)
	assert.False(t, eff.BotOnly)
}

func TestOptimizerOptionsComposition(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `{
		"optimizerOptions": {"removeStyleAttributes": false},
		"hosts": [
			{"source": "app", "host": "app.example", "optimizerOptions": {"removeAriaAttributes": false}}
		]
	}`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	eff, ok := cfg.Effective("app.example")
	require.True(t, ok)
	assert.True(t, eff.OptimizerOptions.RemoveDataAttributes)
	assert.False(t, eff.OptimizerOptions.RemoveAriaAttributes)
	assert.False(t, eff.OptimizerOptions.RemoveStyleAttributes)
	assert.True(t, eff.OptimizerOptions.RemoveInlineStyles)
}
