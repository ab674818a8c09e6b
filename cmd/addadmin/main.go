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
	"regexp"

	"p2p-coin-desk-go/internal/admin"
	"p2p-coin-desk-go/internal/common"
	"p2p-coin-desk-go/internal/config"
	"p2p-coin-desk-go/internal/database"

	"go.uber.org/zap"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	emailFlag := flag.String("email", "", "Administrator email address")
	roleFlag := flag.String("role", database.RoleEditor, "Role: super or editor")
	listFlag := flag.Bool("list", false, "List administrators and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	if !*listFlag {
		if err := validateEmail(*emailFlag); err != nil {
			zap.L().Fatal("Invalid email", zap.Error(err))
		}

		entry, err := dbService.AddAdmin(ctx, *emailFlag, *roleFlag)
		if err != nil {
			zap.L().Fatal("Failed to add administrator", zap.Error(err))
		}

		if cfg.Redis.Enabled {
			if client := common.NewRedisClient(ctx, cfg.Redis); client != nil {
				admin.NewGate(dbService, admin.WithCache(client, cfg.Redis.AdminCacheTTL)).Invalidate(ctx, entry.Email)
				_ = client.Close()
			}
		}

		zap.L().Info("Administrator saved", zap.String("email", entry.Email), zap.String("role", entry.Role))
	}

	admins, err := dbService.ListAdmins(ctx)
	if err != nil {
		zap.L().Fatal("Failed to list administrators", zap.Error(err))
	}

	common.PrintHeader("ADMINISTRATORS", common.DefaultWidth)
	for i, a := range admins {
		fmt.Printf("%s%-40s %s\n", common.BoxPrefix(i == len(admins)-1), a.Email, a.Role)
	}
	common.PrintFooter(fmt.Sprintf("SUMMARY: %d administrators", len(admins)), common.DefaultWidth)
}
