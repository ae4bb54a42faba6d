package main

import (
	"context"
	"os"
	"time"

	"findash/internal/backend"
	"findash/internal/cli"
	"findash/internal/ecos"
	"findash/internal/log"
	"findash/internal/scheduler"
	"findash/internal/services"
	"findash/internal/sheets"
	"findash/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := log.Setup(log.ComponentSync)
	logger.Info("Starting sync-worker")
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	var flows worker.FlowSyncer
	if kisClient := cli.NewKIS(cfg, logger); kisClient != nil {
		flows = services.NewFlowSync(kisClient, repo, cfg.SyncMarket)
	} else {
		logger.Warn("KIS credentials not set, investor flow sync disabled")
	}
	series := services.NewSeriesSync(cli.NewECOS(cfg, logger), repo, cfg.HistoryFloor())

	var exporter sheets.FlowWriter
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid exporter configuration", log.FieldError, err)
		os.Exit(1)
	}
	exp, err := backend.NewFactory(logger).CreateExporter(context.Background(), bcfg)
	if err != nil {
		logger.Error("Failed to initialize exporter", log.FieldError, err)
		os.Exit(1)
	}
	if exp != nil {
		exporter = exp
	}

	w := worker.NewSyncWorker(flows, series, ecos.Tracked, exporter, cfg.SyncMarket, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)
	runner := scheduler.New(ctx, logger)

	flowID, err := runner.Add("investor-flows", cfg.SyncSchedule, w.SyncFlows)
	if err != nil {
		logger.Error("Invalid sync schedule", log.FieldError, err, "schedule", cfg.SyncSchedule)
		os.Exit(1)
	}
	if _, err := runner.Add("ecos-series", cfg.SyncSchedule, w.SyncSeries); err != nil {
		logger.Error("Invalid sync schedule", log.FieldError, err, "schedule", cfg.SyncSchedule)
		os.Exit(1)
	}

	runner.Start()
	logger.Info("Scheduler started", "schedule", cfg.SyncSchedule, "next_run", runner.Next(flowID))

	// catch up on anything missed while down
	runner.RunNow("startup-sync", w.StartupSyncCheck)

	cli.WaitForShutdown(ctx, done)
	runner.Stop()
	logger.Info("sync-worker stopped")
}
