package main

import (
	"context"
	"errors"
	"os"
	"time"

	"findash/internal/alert"
	"findash/internal/amqp"
	"findash/internal/cli"
	"findash/internal/log"
	"findash/internal/notify"
)

func main() {
	cli.LoadEnvFile()
	logger := log.Setup(log.ComponentAlert)
	logger.Info("Starting alert-worker")
	cfg := cli.LoadAndValidateConfig(logger)

	kisClient := cli.NewKIS(cfg, logger)
	if kisClient == nil {
		logger.Error("KIS_APP_KEY and KIS_APP_SECRET are required for price monitoring")
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// With a broker the notifier binary delivers; otherwise deliver directly.
	var notifier alert.Notifier
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		notifier = amqpClient
		logger.Info("Alerts will be published", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		multi := notify.Multi{notify.NewLogger(logger)}
		if cfg.HasTelegram() {
			tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
			if err != nil {
				logger.Error("Failed to initialize Telegram bot", log.FieldError, err)
				os.Exit(1)
			}
			multi = append(multi, tg)
		} else {
			logger.Warn("Telegram not configured, alerts are only logged")
		}
		notifier = multi
	}

	monitor := alert.NewMonitor(kisClient, repo, notifier, cfg.WatchlistPath, cfg.AlertPollInterval,
		alert.WithLogger(logger))

	ctx, done := cli.GracefulShutdown(logger, 15*time.Second, nil)
	if err := monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Monitor stopped", log.FieldError, err)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("alert-worker stopped")
}
