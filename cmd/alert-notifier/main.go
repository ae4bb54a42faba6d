package main

import (
	"context"
	"errors"
	"os"
	"time"

	"findash/internal/amqp"
	"findash/internal/cli"
	"findash/internal/log"
	"findash/internal/notify"
	"findash/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := log.Setup(log.ComponentNotify)
	logger.Info("Starting alert-notifier")
	cfg := cli.LoadAndValidateConfig(logger)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required")
		os.Exit(1)
	}
	if !cfg.HasTelegram() {
		logger.Error("TELEGRAM_TOKEN and TELEGRAM_CHAT_ID are required")
		os.Exit(1)
	}

	tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
	if err != nil {
		logger.Error("Failed to initialize Telegram bot", log.FieldError, err)
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	relay := worker.NewAlertRelay(notify.Multi{notify.NewLogger(logger), tg}, logger)

	ctx, done := cli.GracefulShutdown(logger, 15*time.Second, nil)
	if err := amqpClient.ConsumeAlerts(ctx, relay.HandleAlert); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("alert-notifier stopped")
}
