package main

import (
	"context"
	"flag"
	"fmt"

	"p2p-coin-desk-go/internal/common"
	"p2p-coin-desk-go/internal/config"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	coinsFlag := flag.String("coins", "", "Path to the coin catalog (default: COINS_FILE)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	coinsFile := cfg.Catalog.CoinsFile
	if *coinsFlag != "" {
		coinsFile = *coinsFlag
	}

	// NewService applies the schema
	zap.L().Info("Setting up SQLite database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	zap.L().Info("Loading coin catalog", zap.String("file", coinsFile))
	coins, err := common.LoadCoinCatalog(coinsFile)
	if err != nil {
		zap.L().Fatal("Failed to load coin catalog", zap.Error(err))
	}

	if err := common.SeedCoins(ctx, dbService, coins); err != nil {
		zap.L().Fatal("Failed to seed coins", zap.Error(err))
	}

	listed, err := dbService.ListCoins(ctx)
	if err != nil {
		zap.L().Fatal("Failed to list coins", zap.Error(err))
	}

	common.PrintHeader("COIN CATALOG", common.DefaultWidth)
	for i, coin := range listed {
		availability := "available"
		if !coin.Available {
			availability = "unavailable"
		}
		fmt.Printf("%s%-6s %-20s %16s  %s\n",
			common.BoxPrefix(i == len(listed)-1), coin.Symbol, coin.Name, coin.Price.String(), availability)
	}
	common.PrintFooter(fmt.Sprintf("SUMMARY: %d coins in catalog", len(listed)), common.DefaultWidth)

	zap.L().Info("Initialization complete", zap.Int("coins", len(listed)))
}
