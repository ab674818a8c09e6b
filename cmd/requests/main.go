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
	"flag"
	"fmt"

	"p2p-coin-desk-go/internal/common"
	"p2p-coin-desk-go/internal/config"
	"p2p-coin-desk-go/internal/models"

	"go.uber.org/zap"
)

type requestStats struct {
	total    int
	pending  int
	approved int
	rejected int
}

func tally(reqs []models.Request) requestStats {
	stats := requestStats{total: len(reqs)}
	for _, r := range reqs {
		switch r.Status {
		case models.StatusPending:
			stats.pending++
		case models.StatusApproved:
			stats.approved++
		case models.StatusRejected:
			stats.rejected++
		}
	}
	return stats
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "Filter by user id (optional)")
	typeFlag := flag.String("type", "", "Filter by request type: buy or sell (optional)")
	pendingFlag := flag.Bool("pending", false, "Only show pending requests")
	flag.Parse()

	logger.Info("Starting request report")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	reqs, err := common.LoadRequests(ctx, dbService, common.ReportFilter{
		UserId:      *userFlag,
		Type:        models.RequestType(*typeFlag),
		PendingOnly: *pendingFlag,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to load requests", zap.Error(err))
	}

	common.PrintHeader("REQUEST REPORT", common.WideWidth)
	for i, req := range reqs {
		common.PrintRequest(req, cfg.Site.Currency, i == len(reqs)-1)
	}

	stats := tally(reqs)
	summary := fmt.Sprintf("SUMMARY: %d requests (%d pending, %d approved, %d rejected)",
		stats.total, stats.pending, stats.approved, stats.rejected)
	common.PrintFooter(summary, common.WideWidth)

	logger.Info("Request report completed",
		zap.Int("total", stats.total),
		zap.Int("pending", stats.pending))
}
