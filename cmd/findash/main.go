package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"findash/internal/cli"
	apphttp "findash/internal/http"
	"findash/internal/log"
	"findash/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := log.Setup(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	if cfg.ECOSAPIKey == "" {
		logger.Warn("ECOS_API_KEY not set, dashboard charts will be empty")
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Stats:          repo,
		Flows:          repo,
		Alerts:         repo,
		Stored:         services.NewSeriesReader(repo),
		Series:         cli.NewECOS(cfg, logger),
		DB:             repo,
		Market:         cfg.SyncMarket,
		WatchlistPath:  cfg.WatchlistPath,
		PrinciplesPath: cfg.PrinciplesPath,
		HistoryFloor:   cfg.HistoryFloor(),
		Logger:         logger,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	logger.Info("Starting findash server", "port", cfg.Port, "db", cfg.SQLiteDBPath, log.FieldOperation, log.OpStartup)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
