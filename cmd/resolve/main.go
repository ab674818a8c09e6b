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
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"p2p-coin-desk-go/internal/common"
	"p2p-coin-desk-go/internal/config"
	"p2p-coin-desk-go/internal/models"
	"p2p-coin-desk-go/internal/store"

	"go.uber.org/zap"
)

func printResult(result *models.ResolutionResult, currency string) {
	common.PrintHeader("RESOLUTION", common.DefaultWidth)
	if result.Request != nil {
		common.PrintRequest(*result.Request, currency, true)
	}
	fmt.Printf("\nCommitted:            %t\n", result.Committed)
	fmt.Printf("Audit pending:        %t\n", result.AuditPending)
	fmt.Printf("Notification pending: %t\n", result.NotificationPending)
	common.PrintSeparator("=", common.DefaultWidth)
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	idFlag := flag.String("id", "", "Request id (required)")
	adminFlag := flag.String("admin", "", "Acting administrator email (required)")
	decisionFlag := flag.String("decision", "", "approved or rejected")
	proofFlag := flag.String("proof", "", "Path to the payout proof image (approvals only)")
	retryAuditFlag := flag.Bool("retry-audit", false, "Re-run the audit step of an earlier resolution")
	retryNotifyFlag := flag.Bool("retry-notify", false, "Re-run the notification step of an earlier resolution")
	flag.Parse()

	if *idFlag == "" || *adminFlag == "" {
		zap.L().Fatal("Both flags are required: --id and --admin")
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	actor := models.Identity{UserId: "cli", Email: *adminFlag}

	var result *models.ResolutionResult
	if *retryAuditFlag || *retryNotifyFlag {
		result, err = services.Workflow.RetryFollowUp(ctx, actor, *idFlag, models.FollowUpSteps{
			Audit:  *retryAuditFlag,
			Notify: *retryNotifyFlag,
		})
	} else {
		params := models.ResolveParams{
			RequestId: *idFlag,
			Decision:  models.RequestStatus(*decisionFlag),
		}
		if *proofFlag != "" {
			f, openErr := os.Open(*proofFlag)
			if openErr != nil {
				zap.L().Fatal("Failed to open proof image", zap.String("path", *proofFlag), zap.Error(openErr))
			}
			defer f.Close()
			params.Proof = &models.ProofFile{Name: filepath.Base(*proofFlag), Body: f}
		}
		result, err = services.Workflow.Resolve(ctx, actor, params)
	}

	if err != nil && !errors.Is(err, store.ErrDegraded) {
		zap.L().Fatal("Resolution failed", zap.String("request_id", *idFlag), zap.Error(err))
	}

	printResult(result, cfg.Site.Currency)

	if err != nil {
		zap.L().Warn("Resolution committed with pending follow-up steps", zap.Error(err))
		fmt.Printf("Retry with: resolve --id %s --admin %s --retry-audit=%t --retry-notify=%t\n",
			*idFlag, *adminFlag, result.AuditPending, result.NotificationPending)
		os.Exit(2)
	}
}
