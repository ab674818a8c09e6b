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

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"p2p-coin-desk-go/internal/common"
	"p2p-coin-desk-go/internal/config"
	"p2p-coin-desk-go/internal/server"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx := context.Background()

	zap.L().Info("Starting coin desk server")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if cfg.Catalog.CoinsFile != "" {
		coins, err := common.LoadCoinCatalog(cfg.Catalog.CoinsFile)
		if err != nil {
			zap.L().Warn("Coin catalog not loaded", zap.String("file", cfg.Catalog.CoinsFile), zap.Error(err))
		} else if err := common.SeedCoins(ctx, services.DbService, coins); err != nil {
			zap.L().Fatal("Failed to seed coin catalog", zap.Error(err))
		}
	}

	srv, err := server.New(cfg.Server, cfg.Auth, server.Deps{
		Desk:     services.Desk,
		Workflow: services.Workflow,
		Chat:     services.Chat,
		Notify:   services.Notify,
		Audit:    services.Audit,
		Gate:     services.Gate,
	})
	if err != nil {
		zap.L().Fatal("Failed to create server", zap.Error(err))
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			zap.L().Error("HTTP server stopped", zap.Error(err))
		}
	case <-sigChan:
		zap.L().Info("Shutdown signal received, stopping server...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("Forced shutdown after timeout", zap.Error(err))
		return
	}
	zap.L().Info("Server stopped gracefully")
}
