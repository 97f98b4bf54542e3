package httpgateway

import (
	"errors"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/renderx/prerender-gateway/internal/config"
	"github.com/renderx/prerender-gateway/internal/httpgateway/ratelimit"
	"github.com/renderx/prerender-gateway/internal/metrics"
	"github.com/renderx/prerender-gateway/internal/render"
)

// route implements the primary serving decision of §4.2: classify the
// request, then serve static or dispatch a render.
func (g *Gateway) route(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-RenderX-Internal") == "true" {
		g.serveLoopback(w, r)
		return
	}

	hostname := deriveHostname(r)
	effective, ok := g.cfg.Effective(hostname)
	if !ok {
		writeError(w, http.StatusForbidden, "unknown host")
		return
	}

	cls := classify(r, effective.Bots)
	sourceDir := g.sourceDir(effective.Source)

	if decideStatic(effective.Strategy, cls) {
		g.serveStaticOrNotFound(w, r, sourceDir)
		return
	}
	g.dispatchRender(w, r, hostname, effective, sourceDir)
}

// decideStatic implements the serving-decision table: "internal" is
// already filtered out by the caller, so only the renderx-UA and
// file-path columns remain special-cased here.
func decideStatic(strategy string, cls classification) bool {
	if cls.isRenderXRequest || cls.isFileRequest {
		return true
	}
	switch strategy {
	case "csr":
		return true
	case "ssr":
		return false
	default: // smart-ssr
		return !cls.isBot
	}
}

func (g *Gateway) sourceDir(source string) string {
	return filepath.Join(g.cfg.Global.HostsRoot, source)
}

func (g *Gateway) serveStaticOrNotFound(w http.ResponseWriter, r *http.Request, sourceDir string) {
	if !serveStaticFile(w, r, sourceDir, r.URL.Path) {
		http.NotFound(w, r)
	}
}

// serveLoopback serves the render engine's own asset requests: try the
// host matching the forwarded Origin/Host, then every active host, then
// any host's index.html.
func (g *Gateway) serveLoopback(w http.ResponseWriter, r *http.Request) {
	hostname := deriveHostname(r)
	hosts := g.cfg.Hosts()

	if eff, ok := g.cfg.Effective(hostname); ok {
		if resolved, ok, _ := resolveStaticPath(g.sourceDir(eff.Source), r.URL.Path); ok {
			http.ServeFile(w, r, resolved)
			return
		}
	}

	for _, h := range hosts {
		if !h.IsActive() {
			continue
		}
		if resolved, ok, _ := resolveStaticPath(g.sourceDir(h.Source), r.URL.Path); ok {
			http.ServeFile(w, r, resolved)
			return
		}
	}

	for _, h := range hosts {
		if idx, ok := indexPath(g.sourceDir(h.Source)); ok {
			http.ServeFile(w, r, idx)
			return
		}
	}

	http.NotFound(w, r)
}

// dispatchRender computes the cache key, serves a hit directly, and on a
// miss calls the render engine via loopback, falling back to the static
// index on any render failure (never a 5xx for a rendering failure).
func (g *Gateway) dispatchRender(w http.ResponseWriter, r *http.Request, hostname string, eff config.EffectiveConfig, sourceDir string) {
	originalURL := r.URL.RequestURI()
	origin := requestOrigin(r)

	cacheKey := origin + originalURL
	if origin == "" {
		cacheKey = requestProtocol(r) + hostname + originalURL
	}

	if html, ok := g.cache.Get(cacheKey, "desktop"); ok {
		metrics.ObserveCacheResult(true)
		writeHTML(w, http.StatusOK, "HIT", html)
		return
	}
	metrics.ObserveCacheResult(false)

	start := time.Now()
	req := render.Request{
		URL:              g.loopbackURL(originalURL),
		Device:           "desktop",
		Origin:           origin,
		UserAgent:        "RenderX/1.0",
		TimeoutMs:        eff.TimeoutMs,
		MaxConcurrency:   eff.ParallelRenders,
		RootSelector:     eff.RootSelector,
		Strategy:         eff.Strategy,
		OptimizerOptions: eff.OptimizerOptions,
	}
	html, err := g.engine.Render(r.Context(), req)
	metrics.ObserveRender(hostname, outcomeLabel(err), time.Since(start))
	if err != nil {
		g.logger.Warn("render failed, falling back to static",
			zap.String("host", hostname), zap.String("url", originalURL), zap.Error(err))
		g.serveStaticOrNotFound(w, r, sourceDir)
		return
	}

	if err := g.cache.Set(cacheKey, html, "desktop", eff.CacheTTLSeconds); err != nil {
		g.logger.Warn("cache write failed", zap.Error(err))
	}
	writeHTML(w, http.StatusOK, "MISS", html)
}

func writeHTML(w http.ResponseWriter, status int, cacheResult, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Cache", cacheResult)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, render.ErrAtCapacity):
		return "at_capacity"
	case errors.Is(err, render.ErrBrowserLaunch):
		return "browser_launch_failed"
	case errors.Is(err, render.ErrNavigateFailed):
		return "navigation_failed"
	case errors.Is(err, render.ErrExtractFailed):
		return "extraction_failed"
	default:
		return "error"
	}
}

// renderAux implements GET /render: an SSRF-filtered, rate-limited
// utility endpoint that renders or redirects to an arbitrary absolute URL.
func (g *Gateway) renderAux(w http.ResponseWriter, r *http.Request) {
	clientIP := ratelimit.ClientIP(r)
	if !g.limiter.Allow(clientIP) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	target := r.URL.Query().Get("url")
	if target == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	device := r.URL.Query().Get("device")
	if device == "" {
		device = "desktop"
	}
	switch device {
	case "desktop", "mobile", "tablet":
	default:
		writeError(w, http.StatusBadRequest, "device must be desktop, mobile, or tablet")
		return
	}

	if !isSafeRenderTarget(target) {
		writeError(w, http.StatusBadRequest, "unsafe render target")
		return
	}

	parsed, err := url.Parse(target)
	if err != nil || parsed.Hostname() == "" {
		writeError(w, http.StatusBadRequest, "invalid url")
		return
	}

	effective, ok := g.cfg.Effective(parsed.Hostname())
	if !ok {
		writeError(w, http.StatusForbidden, "unknown host")
		return
	}

	if effective.BotOnly && !matchesBot(r.Header.Get("User-Agent"), effective.Bots) {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}

	if html, ok := g.cache.Get(target, device); ok {
		writeHTML(w, http.StatusOK, "HIT", html)
		return
	}

	req := render.Request{
		URL:              target,
		Device:           device,
		Origin:           requestOrigin(r),
		UserAgent:        "RenderX/1.0",
		TimeoutMs:        effective.TimeoutMs,
		MaxConcurrency:   effective.ParallelRenders,
		RootSelector:     effective.RootSelector,
		Strategy:         effective.Strategy,
		OptimizerOptions: effective.OptimizerOptions,
	}
	html, err := g.engine.Render(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := g.cache.Set(target, html, device, effective.CacheTTLSeconds); err != nil {
		g.logger.Warn("cache write failed", zap.Error(err))
	}
	writeHTML(w, http.StatusOK, "MISS", html)
}
