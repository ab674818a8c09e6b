/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package common

import (
	"context"
	"log"
	"strings"
	"time"

	"p2p-coin-desk-go/internal/admin"
	"p2p-coin-desk-go/internal/api"
	"p2p-coin-desk-go/internal/audit"
	"p2p-coin-desk-go/internal/chat"
	"p2p-coin-desk-go/internal/database"
	"p2p-coin-desk-go/internal/events"
	"p2p-coin-desk-go/internal/feed"
	"p2p-coin-desk-go/internal/models"
	"p2p-coin-desk-go/internal/notify"
	"p2p-coin-desk-go/internal/upload"
	"p2p-coin-desk-go/internal/workflow"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Try to load .env file - if it doesn't exist, that's okay
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService *database.Service
	Broker    *feed.Broker
	Redis     *redis.Client
	Gate      *admin.Gate
	Audit     *audit.Log
	Notify    *notify.Service
	Chat      *chat.Channel
	Workflow  *workflow.Workflow
	Desk      *api.DeskService

	publisher *events.AMQPPublisher
	cancel    context.CancelFunc
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires the store, live feeds and domain services.
// Redis and RabbitMQ are optional; when unavailable the desk runs with
// in-process feeds and no lifecycle events.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	services := &Services{
		DbService: dbService,
		Broker:    feed.NewBroker(),
		cancel:    cancel,
	}
	dbService.SetChangeNotifier(services.Broker)

	if cfg.Redis.Enabled {
		services.Redis = NewRedisClient(ctx, cfg.Redis)
	}
	if services.Redis != nil {
		relay, err := feed.NewRedisRelay(services.Redis, cfg.Redis.FeedChannel, services.Broker)
		if err != nil {
			services.Close()
			return nil, err
		}
		dbService.SetChangeNotifier(relay)
		go relay.Run(runCtx)
		zap.L().Info("Live feeds relayed through Redis", zap.String("channel", cfg.Redis.FeedChannel))
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.RabbitMQ.Enabled {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue)
		if err != nil {
			services.Close()
			return nil, err
		}
		services.publisher = amqpPublisher
		publisher = amqpPublisher
		zap.L().Info("Lifecycle events enabled", zap.String("queue", cfg.RabbitMQ.Queue))
	}

	var uploader api.Uploader = upload.Disabled{}
	if cfg.Upload.APIKey != "" {
		client, err := upload.NewClient(cfg.Upload)
		if err != nil {
			services.Close()
			return nil, err
		}
		uploader = client
	} else {
		zap.L().Warn("IMGBB_API_KEY not set, proof uploads are disabled")
	}

	services.Gate = admin.NewGate(dbService, admin.WithCache(services.Redis, cfg.Redis.AdminCacheTTL))
	services.Audit = audit.NewLog(dbService, cfg.Limits.AuditRecent)
	services.Notify = notify.NewService(dbService, services.Broker, cfg.Limits.NotificationFeed)
	services.Chat = chat.NewChannel(dbService, services.Broker)
	services.Workflow = workflow.New(dbService, services.Gate, uploader, services.Audit, services.Notify,
		workflow.WithEvents(publisher))
	services.Desk = api.NewDeskService(api.Deps{
		Requests: dbService,
		Coins:    dbService,
		Gate:     services.Gate,
		Uploader: uploader,
		Audit:    services.Audit,
		Events:   publisher,
		Settings: cfg.Site,
	})

	return services, nil
}

// InitializeDatabaseOnly initializes just the database service.
// Useful for read-only operations like request reports.
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

// NewRedisClient connects to Redis and pings it. It returns nil when the
// server cannot be reached so callers can fall back to in-process features.
func NewRedisClient(ctx context.Context, cfg models.RedisConfig) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		zap.L().Warn("Redis unavailable, continuing without it", zap.String("addr", cfg.Addr), zap.Error(err))
		_ = client.Close()
		return nil
	}
	return client
}

func (cs *Services) Close() {
	if cs.cancel != nil {
		cs.cancel()
	}
	if cs.Broker != nil {
		cs.Broker.Close()
	}
	if cs.publisher != nil {
		cs.publisher.Close()
	}
	if cs.Redis != nil {
		if err := cs.Redis.Close(); err != nil {
			zap.L().Warn("Failed to close redis client", zap.Error(err))
		}
	}
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
