package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"log/slog"

	"github.com/wikimedia/performance-coal/internal/cache"
	"github.com/wikimedia/performance-coal/internal/config"
	"github.com/wikimedia/performance-coal/internal/graphite"
	httpx "github.com/wikimedia/performance-coal/internal/http"
	"github.com/wikimedia/performance-coal/internal/logger"
	"github.com/wikimedia/performance-coal/internal/metrics"
)

func main() {
	cfg := config.Load()
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	log := logger.New("coal-web", level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := graphite.New(cfg.GraphiteURL, graphite.WithTimeout(cfg.GraphiteTimeout))
	if err != nil {
		log.Error("failed to configure graphite client", "error", err)
		os.Exit(1)
	}

	var store cache.Store = cache.NullStore{}
	if addr := strings.TrimSpace(cfg.CacheRedisAddr); addr != "" {
		redisStore, err := cache.NewRedisStore(addr, cfg.CacheRedisPass, cfg.CacheRedisDB, log)
		if err != nil {
			log.Warn("redis response cache unavailable", "addr", addr, "error", err)
		} else {
			defer redisStore.Close()
			store = redisStore
		}
	}
	if _, ok := store.(cache.NullStore); ok {
		fileStore, err := cache.NewFileStore(cfg.CacheDir, nil)
		if err != nil {
			log.Warn("filesystem response cache unavailable, caching disabled", "dir", cfg.CacheDir, "error", err)
		} else {
			store = fileStore
		}
	}
	log.Info("response cache selected", "backend", store.Name())

	svc := metrics.New(backend, log, nil)
	router := httpx.NewRouter(log, svc, store, cfg.Debug)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("coal web server starting", "addr", cfg.Addr, "graphite", cfg.GraphiteURL, "debug", cfg.Debug)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("coal web server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
