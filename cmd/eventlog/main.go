package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"p2p-coin-desk-go/internal/common"
	"p2p-coin-desk-go/internal/config"
	"p2p-coin-desk-go/internal/events"

	"go.uber.org/zap"
)

// eventlog drains the lifecycle queue into an append-only log file.
func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	if cfg.RabbitMQ.URL == "" {
		zap.L().Fatal("RABBITMQ_URL is required")
	}

	consumer, err := events.NewConsumer(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, cfg.RabbitMQ.LogFile)
	if err != nil {
		zap.L().Fatal("Failed to create consumer", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	zap.L().Info("Event log consumer running",
		zap.String("queue", cfg.RabbitMQ.Queue),
		zap.String("log_file", cfg.RabbitMQ.LogFile))

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		zap.L().Error("Consumer stopped", zap.Error(err))
		return
	}
	zap.L().Info("Consumer stopped")
}
