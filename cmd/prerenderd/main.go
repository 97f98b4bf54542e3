// Package main wires together the prerender gateway binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/renderx/prerender-gateway/internal/cache"
	"github.com/renderx/prerender-gateway/internal/clock/system"
	"github.com/renderx/prerender-gateway/internal/config"
	"github.com/renderx/prerender-gateway/internal/httpgateway"
	"github.com/renderx/prerender-gateway/internal/httpgateway/ratelimit"
	"github.com/renderx/prerender-gateway/internal/logging"
	"github.com/renderx/prerender-gateway/internal/render"
)

const (
	rateLimitRequests = 100
	rateLimitWindow   = 15 * time.Minute
	pruneInterval     = 5 * time.Minute
	shutdownTimeout   = 10 * time.Second
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	logger = logging.ForLevel(logger, cfg.Global.Logs)
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := cache.New(cfg.Global.CacheDir, system.New(), logger.Named("cache"))
	if err := store.Startup(cfg.Global.ClearCacheOnStartup); err != nil {
		logger.Warn("cache startup sweep failed", zap.Error(err))
	}

	engine := render.New(logger.Named("render"))
	defer engine.Close()

	limiter := ratelimit.New(ratelimit.Config{Limit: rateLimitRequests, Window: rateLimitWindow})

	gw := httpgateway.New(cfg, store, engine, limiter, logger.Named("gateway"), cfg.Global.Port)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Global.Port),
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	cleanupInterval := time.Duration(cfg.Global.CacheCleanupIntervalMinutes) * time.Minute
	go store.RunCleanupScheduler(ctx, cleanupInterval)
	go runRateLimitPruner(ctx, limiter, pruneInterval)

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Global.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// runRateLimitPruner periodically drops idle per-IP limiter entries so the
// map does not grow unbounded under a shifting client population.
func runRateLimitPruner(ctx context.Context, limiter *ratelimit.Limiter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Prune()
		}
	}
}
