// Package httpgateway implements the prerender gateway's single HTTP
// listener: request classification, static file serving, render dispatch,
// and the cache/health/render control endpoints.
package httpgateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/renderx/prerender-gateway/internal/config"
	"github.com/renderx/prerender-gateway/internal/httpgateway/ratelimit"
	"github.com/renderx/prerender-gateway/internal/metrics"
	"github.com/renderx/prerender-gateway/internal/render"
)

const requestTimeout = 30 * time.Second

// CacheStore is the operation surface the gateway needs from the content
// cache. *cache.Store satisfies it; tests substitute an in-memory fake.
type CacheStore interface {
	Get(url, device string) (string, bool)
	Set(url, html, device string, ttlSeconds int) error
	Invalidate(url, device string) error
	Clear() error
	Writable() (bool, error)
}

// RenderEngine is the operation surface the gateway needs from the render
// engine. *render.Engine satisfies it; tests substitute a stub.
type RenderEngine interface {
	Render(ctx context.Context, req render.Request) (string, error)
	Available() (bool, error)
	ActiveRenders() int32
}

// Gateway wires the router to the config resolver, cache store, and
// render engine.
type Gateway struct {
	cfg     *config.Config
	cache   CacheStore
	engine  RenderEngine
	limiter *ratelimit.Limiter
	logger  *zap.Logger
	port    int
	router  chi.Router
}

// New constructs a Gateway listening (logically) on port, with routes and
// middleware installed.
func New(cfg *config.Config, store CacheStore, engine RenderEngine, limiter *ratelimit.Limiter, logger *zap.Logger, port int) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	g := &Gateway{cfg: cfg, cache: store, engine: engine, limiter: limiter, logger: logger, port: port}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/health", g.health)
	r.Get("/readyz", g.readyz)
	r.Get("/metrics", metrics.Handler().ServeHTTP)
	r.Get("/render", g.renderAux)
	r.Post("/cache/invalidate", g.cacheInvalidate)
	r.Post("/cache/clear", g.cacheClear)
	r.HandleFunc("/*", g.route)

	g.router = r
	return g
}

// Handler returns the Gateway's http.Handler.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

type healthResponse struct {
	Status         string        `json:"status"`
	ActiveRequests int32         `json:"activeRequests"`
	MaxConcurrency int           `json:"maxConcurrency"`
	Hosts          int           `json:"hosts"`
	Browser        browserStatus `json:"browser"`
	Cache          cacheStatus   `json:"cache"`
}

type browserStatus struct {
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

type cacheStatus struct {
	Writable bool   `json:"writable"`
	Error    string `json:"error,omitempty"`
}

func (g *Gateway) health(w http.ResponseWriter, _ *http.Request) {
	available, browserErr := g.engine.Available()
	writable, cacheErr := g.cache.Writable()

	metrics.SetActiveRenders(g.engine.ActiveRenders())

	resp := healthResponse{
		Status:         "ok",
		ActiveRequests: g.engine.ActiveRenders(),
		MaxConcurrency: g.cfg.Global.ParallelRenders,
		Hosts:          len(g.cfg.Hosts()),
		Browser:        browserStatus{Available: available, Error: errString(browserErr)},
		Cache:          cacheStatus{Writable: writable, Error: errString(cacheErr)},
	}

	status := http.StatusOK
	if !writable {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (g *Gateway) readyz(w http.ResponseWriter, _ *http.Request) {
	if writable, _ := g.cache.Writable(); !writable {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

type invalidateRequest struct {
	URL    string `json:"url"`
	Device string `json:"device,omitempty"`
}

func (g *Gateway) cacheInvalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := decodeJSON(r, &req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	device := req.Device
	if device == "" {
		device = "desktop"
	}
	if err := g.cache.Invalidate(req.URL, device); err != nil {
		writeJSON(w, http.StatusOK, map[string]bool{"success": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (g *Gateway) cacheClear(w http.ResponseWriter, _ *http.Request) {
	if err := g.cache.Clear(); err != nil {
		g.logger.Warn("cache clear failed", zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]bool{"success": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (g *Gateway) loopbackURL(originalURL string) string {
	return fmt.Sprintf("http://localhost:%d%s", g.port, originalURL)
}
