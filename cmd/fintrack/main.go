package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/cli"
	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
)

const (
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 30 * time.Second
	cacheSweep      = 5 * time.Minute
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	snapshots := cli.InitSnapshots(logger, cfg.SQLiteDBPath)

	startCtx, startCancel := context.WithTimeout(context.Background(), startupTimeout)
	session, backendResult, err := cli.OpenSession(startCtx, logger, cfg, snapshots)
	startCancel()
	if err != nil {
		logger.Error("Failed to open session", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	logger.Info("Session ready",
		"backend", cfg.DataBackend,
		log.FieldOwner, session.Owner(),
		log.FieldCount, len(session.Transactions()),
		"offline", session.Offline())

	caches := cache.NewManager(logger)
	caches.Register(session.TotalsCache())
	caches.StartCleanup(cacheSweep)

	srv := apphttp.NewServer(":"+cfg.Port, session, apphttp.Options{Logger: logger})
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		caches.Stop()
		_ = session.Close()
		if err := backendResult.Close(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
		if snapshots != nil {
			_ = snapshots.Close()
		}
	})

	logger.Info("Starting fintrack server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
