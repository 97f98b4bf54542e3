// Package config loads and resolves the prerender gateway's configuration
// via Viper, and composes the per-request EffectiveConfig from global
// defaults, environment overrides, and per-host overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

// OptimizerOptions enumerates HTML optimizer removal toggles. A nil pointer
// means "unset"; composition falls through host -> global -> built-in true.
type OptimizerOptions struct {
	RemoveDataAttributes  *bool `mapstructure:"removeDataAttributes" json:"removeDataAttributes,omitempty"`
	RemoveAriaAttributes  *bool `mapstructure:"removeAriaAttributes" json:"removeAriaAttributes,omitempty"`
	RemoveStyleAttributes *bool `mapstructure:"removeStyleAttributes" json:"removeStyleAttributes,omitempty"`
	RemoveInlineStyles    *bool `mapstructure:"removeInlineStyles" json:"removeInlineStyles,omitempty"`
}

// ResolvedOptimizerOptions is the fully composed, non-pointer form consumed
// by the optimizer.
type ResolvedOptimizerOptions struct {
	RemoveDataAttributes  bool
	RemoveAriaAttributes  bool
	RemoveStyleAttributes bool
	RemoveInlineStyles    bool
}

func resolveOptimizerOptions(host, global OptimizerOptions) ResolvedOptimizerOptions {
	return ResolvedOptimizerOptions{
		RemoveDataAttributes:  boolChain(host.RemoveDataAttributes, global.RemoveDataAttributes, true),
		RemoveAriaAttributes:  boolChain(host.RemoveAriaAttributes, global.RemoveAriaAttributes, true),
		RemoveStyleAttributes: boolChain(host.RemoveStyleAttributes, global.RemoveStyleAttributes, true),
		RemoveInlineStyles:    boolChain(host.RemoveInlineStyles, global.RemoveInlineStyles, true),
	}
}

func boolChain(host, global *bool, builtin bool) bool {
	if host != nil {
		return *host
	}
	if global != nil {
		return *global
	}
	return builtin
}

// HostConfig identifies one SPA deployment. Immutable after load.
type HostConfig struct {
	Source           string            `mapstructure:"source" json:"source"`
	Host             string            `mapstructure:"host" json:"host"`
	Active           *bool             `mapstructure:"active" json:"active,omitempty"`
	TimeoutMs        *int              `mapstructure:"timeoutMs" json:"timeoutMs,omitempty"`
	ParallelRenders  *int              `mapstructure:"parallelRenders" json:"parallelRenders,omitempty"`
	Bots             []string          `mapstructure:"bots" json:"bots,omitempty"`
	Strategy         *string           `mapstructure:"strategy" json:"strategy,omitempty"`
	RootSelector     *string           `mapstructure:"rootSelector" json:"rootSelector,omitempty"`
	OptimizerOptions *OptimizerOptions `mapstructure:"optimizerOptions" json:"optimizerOptions,omitempty"`
}

// IsActive reports whether the host is active (default true).
func (h HostConfig) IsActive() bool {
	if h.Active == nil {
		return true
	}
	return *h.Active
}

// GlobalConfig holds process-wide defaults, loaded once at startup.
type GlobalConfig struct {
	Port                        int              `mapstructure:"port" json:"port"`
	ParallelRenders             int              `mapstructure:"parallelRenders" json:"parallelRenders"`
	Bots                        []string         `mapstructure:"bots" json:"bots"`
	CacheCleanupIntervalMinutes int              `mapstructure:"cacheCleanupIntervalMinutes" json:"cacheCleanupIntervalMinutes"`
	Strategy                    string           `mapstructure:"strategy" json:"strategy"`
	Hosts                       []HostConfig     `mapstructure:"hosts" json:"hosts"`
	Logs                        string           `mapstructure:"logs" json:"logs"`
	ClearCacheOnStartup         bool             `mapstructure:"clearCacheOnStartup" json:"clearCacheOnStartup"`
	RootSelector                string           `mapstructure:"rootSelector" json:"rootSelector"`
	OptimizerOptions            OptimizerOptions `mapstructure:"optimizerOptions" json:"optimizerOptions"`
	TimeoutMs                   int              `mapstructure:"timeoutMs" json:"timeoutMs"`
	CacheDir                    string           `mapstructure:"cacheDir" json:"cacheDir"`
	HostsRoot                   string           `mapstructure:"hostsRoot" json:"hostsRoot"`
}

// EffectiveConfig is the per-request composition of a matched HostConfig
// over GlobalConfig, with derived fields resolved.
type EffectiveConfig struct {
	Source           string
	Strategy         string
	TimeoutMs        int
	ParallelRenders  int
	Bots             []string
	RootSelector     string
	OptimizerOptions ResolvedOptimizerOptions
	BotOnly          bool
	CacheTTLSeconds  int
}

// DefaultBots is the built-in bot substring list (spec.md §6).
var DefaultBots = []string{
	"Googlebot", "bingbot", "Slurp", "DuckDuckBot", "Baiduspider", "YandexBot",
	"Applebot", "facebookexternalhit", "Twitterbot", "LinkedInBot", "Pinterestbot",
	"Slack", "WhatsApp", "TelegramBot", "vkShare", "GPTBot", "ChatGPT-User",
	"Google-Extended", "ClaudeBot", "Claude-Web", "GrokBot", "meta-externalagent",
	"meta-externalfetcher", "PerplexityBot", "Amazonbot", "CCBot", "ia_archiver",
	"YouBot", "Neevabot", "headlessbot",
}

// Config is the top-level resolved configuration: global defaults plus a
// compiled host matcher.
type Config struct {
	Global  GlobalConfig
	matcher *hostMatcher
}

// Load reads config.json (if present) at path, overlays the recognized
// environment variables, fills built-in defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RENDERX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	applyEnvAliases(v)

	var global GlobalConfig
	if err := v.Unmarshal(&global); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(global.Bots) == 0 {
		global.Bots = DefaultBots
	}

	if err := global.Validate(); err != nil {
		return nil, err
	}

	matcher, err := newHostMatcher(global.Hosts)
	if err != nil {
		return nil, fmt.Errorf("compile host patterns: %w", err)
	}

	return &Config{Global: global, matcher: matcher}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 3000)
	v.SetDefault("parallelRenders", 10)
	v.SetDefault("cacheCleanupIntervalMinutes", 60)
	v.SetDefault("strategy", "smart-ssr")
	v.SetDefault("logs", "ssr")
	v.SetDefault("clearCacheOnStartup", true)
	v.SetDefault("rootSelector", "#root")
	v.SetDefault("timeoutMs", 30000)
	v.SetDefault("cacheDir", "./.cache")
	v.SetDefault("hostsRoot", "./hosts")
}

// applyEnvAliases binds the spec's documented environment variable names,
// which do not follow the RENDERX_<FIELD> convention AutomaticEnv assumes.
func applyEnvAliases(v *viper.Viper) {
	aliases := map[string]string{
		"PORT":                   "port",
		"MAX_CONCURRENCY":        "parallelRenders",
		"CACHE_CLEANUP_INTERVAL": "cacheCleanupIntervalMinutes",
		"STRATEGY":               "strategy",
		"LOGS":                   "logs",
		"TIMEOUT_MS":             "timeoutMs",
		"CACHE_DIR":              "cacheDir",
	}
	for env, field := range aliases {
		_ = v.BindEnv(field, env)
	}
}

// Validate enforces required values and internal consistency.
func (g GlobalConfig) Validate() error {
	if g.Port <= 0 {
		return fmt.Errorf("port must be > 0")
	}
	if g.ParallelRenders <= 0 {
		return fmt.Errorf("parallelRenders must be > 0")
	}
	if g.CacheCleanupIntervalMinutes <= 0 {
		return fmt.Errorf("cacheCleanupIntervalMinutes must be > 0")
	}
	switch g.Strategy {
	case "smart-ssr", "ssr", "csr":
	default:
		return fmt.Errorf("strategy must be one of smart-ssr, ssr, csr")
	}
	switch g.Logs {
	case "none", "ssr", "all":
	default:
		return fmt.Errorf("logs must be one of none, ssr, all")
	}
	if g.TimeoutMs <= 0 {
		return fmt.Errorf("timeoutMs must be > 0")
	}
	for _, h := range g.Hosts {
		if h.Source == "" || h.Host == "" {
			return fmt.Errorf("host entries require both source and host")
		}
	}
	return nil
}

// Effective composes the EffectiveConfig for hostname, matching against the
// active host list per the ordered rules in spec §4.1. ok is false when no
// host matches.
func (c *Config) Effective(hostname string) (EffectiveConfig, bool) {
	host, ok := c.matcher.match(hostname)
	if !ok {
		return EffectiveConfig{}, false
	}
	return c.compose(host), true
}

// MatchHostname reports whether hostname matches any active configured host,
// independent of composing a full EffectiveConfig. The /render auxiliary
// path does not call it; it resolves the parsed URL hostname through
// Effective instead.
func (c *Config) MatchHostname(hostname string) bool {
	_, ok := c.matcher.match(hostname)
	return ok
}

func (c *Config) compose(host HostConfig) EffectiveConfig {
	g := c.Global

	strategy := g.Strategy
	if host.Strategy != nil {
		strategy = *host.Strategy
	}

	timeoutMs := g.TimeoutMs
	if host.TimeoutMs != nil {
		timeoutMs = *host.TimeoutMs
	}

	parallel := g.ParallelRenders
	if host.ParallelRenders != nil {
		parallel = *host.ParallelRenders
	}

	bots := g.Bots
	if len(host.Bots) > 0 {
		bots = host.Bots
	}

	rootSelector := g.RootSelector
	if host.RootSelector != nil {
		rootSelector = *host.RootSelector
	}

	var hostOptOverride OptimizerOptions
	if host.OptimizerOptions != nil {
		hostOptOverride = *host.OptimizerOptions
	}

	return EffectiveConfig{
		Source:           host.Source,
		Strategy:         strategy,
		TimeoutMs:        timeoutMs,
		ParallelRenders:  parallel,
		Bots:             bots,
		RootSelector:     rootSelector,
		OptimizerOptions: resolveOptimizerOptions(hostOptOverride, g.OptimizerOptions),
		BotOnly:          strategy == "smart-ssr" || strategy == "csr",
		CacheTTLSeconds:  g.CacheCleanupIntervalMinutes * 60,
	}
}

// Hosts returns the configured host list, for health reporting.
func (c *Config) Hosts() []HostConfig {
	return c.Global.Hosts
}
