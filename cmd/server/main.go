// Command server runs the file manager backend.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/flmngr/flmngr-server-go/internal/api"
	"github.com/flmngr/flmngr-server-go/internal/auth"
	"github.com/flmngr/flmngr-server-go/internal/config"
	"github.com/flmngr/flmngr-server-go/internal/filemanager"
	"github.com/flmngr/flmngr-server-go/internal/logging"
	"github.com/flmngr/flmngr-server-go/internal/metrics"
	"github.com/flmngr/flmngr-server-go/internal/preview"
	"github.com/flmngr/flmngr-server-go/internal/storage"
)

func main() {
	configPath := flag.String("config", os.Getenv("FILEMANAGER_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("configuration error: " + err.Error())
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("file manager server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("files", cfg.DirFiles),
		zap.String("cache_backend", cfg.CacheBackend))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	files, err := storage.NewFiles(cfg.DirFiles)
	if err != nil {
		logging.Fatal("files tree unavailable", zap.Error(err))
	}
	cacheStore, err := storage.NewCache(ctx, cfg.CacheBackend, cfg.DirCache, cfg.S3)
	if err != nil {
		logging.Fatal("cache backend init failed", zap.Error(err))
	}
	defer cacheStore.Close()

	cache := preview.NewCache(files, cacheStore, nil, nil, preview.Options{
		Width:   cfg.Preview.Width,
		Height:  cfg.Preview.Height,
		Quality: cfg.Preview.Quality,
		Tile:    cfg.Preview.Tile,
	})

	dirCache := cfg.DirCache
	if cfg.CacheBackend == "s3" {
		dirCache = "s3://" + cfg.S3.Bucket
	}
	fm := filemanager.New(files, cache, filemanager.Options{
		Framework:   cfg.Framework,
		DirCache:    dirCache,
		WarmWorkers: cfg.WarmWorkers,
		WarmQueue:   cfg.WarmQueue,
	})
	fm.Start(ctx)
	defer fm.Close()

	var authHandler *auth.Auth
	if cfg.JWTSecret != "" {
		authHandler = auth.New(cfg.JWTSecret)
		logging.Info("JWT authentication enabled")
	} else {
		logging.Warn("JWT authentication disabled; the API is open")
	}

	srv := api.NewServer(fm, authHandler, cfg.MaxUploadSize)

	// Metrics server
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: metrics.Handler(),
		}
		go func() {
			logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logging.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// SIGHUP re-reads the config and applies the new log level.
	go func() {
		hupCh := make(chan os.Signal, 1)
		signal.Notify(hupCh, syscall.SIGHUP)
		for range hupCh {
			reloaded, err := config.Load(*configPath)
			if err != nil {
				logging.Error("config reload failed", zap.Error(err))
				continue
			}
			if err := logging.SetLevel(reloaded.LogLevel); err != nil {
				logging.Error("invalid log level", zap.String("level", reloaded.LogLevel), zap.Error(err))
				continue
			}
			logging.Info("log level reloaded", zap.String("level", reloaded.LogLevel))
		}
	}()

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")

		shutdownCtx, done := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer done()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Error("http shutdown error", zap.Error(err))
		}
		if metricsServer != nil {
			metricsServer.Close()
		}
		cancel()
	}()

	logging.Info("server listening", zap.String("addr", cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logging.Fatal("server error", zap.Error(err))
	}
	logging.Info("server stopped")
}
