package common

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"p2p-coin-desk-go/internal/models"
	"p2p-coin-desk-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

type CoinConfig struct {
	Name      string `yaml:"name"`
	Symbol    string `yaml:"symbol"`
	Price     string `yaml:"price"`
	Available *bool  `yaml:"available"`
}

type CoinsConfig struct {
	Coins []CoinConfig `yaml:"coins"`
}

// LoadCoinCatalog reads the coin seed file. Availability defaults to true.
func LoadCoinCatalog(coinsFile string) ([]models.Coin, error) {
	var coinsPath string
	if filepath.IsAbs(coinsFile) {
		coinsPath = coinsFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		coinsPath = filepath.Join(wd, coinsFile)
	}

	data, err := os.ReadFile(coinsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", coinsFile, err)
	}

	var config CoinsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", coinsFile, err)
	}

	coins := make([]models.Coin, 0, len(config.Coins))
	seen := make(map[string]bool)
	for i, c := range config.Coins {
		symbol := strings.ToUpper(strings.TrimSpace(c.Symbol))
		if symbol == "" {
			return nil, fmt.Errorf("coin at index %d missing symbol", i)
		}
		if seen[symbol] {
			return nil, fmt.Errorf("coin %s listed twice", symbol)
		}
		seen[symbol] = true

		price, err := decimal.NewFromString(c.Price)
		if err != nil || !price.IsPositive() {
			return nil, fmt.Errorf("coin %s has invalid price %q", symbol, c.Price)
		}

		available := true
		if c.Available != nil {
			available = *c.Available
		}

		name := c.Name
		if name == "" {
			name = symbol
		}

		coins = append(coins, models.Coin{
			Name:      name,
			Symbol:    symbol,
			Price:     price,
			Available: available,
		})
	}

	return coins, nil
}

// SeedCoins upserts every coin into the catalog.
func SeedCoins(ctx context.Context, catalog store.CoinCatalog, coins []models.Coin) error {
	for i := range coins {
		saved, err := catalog.UpsertCoin(ctx, &coins[i])
		if err != nil {
			return fmt.Errorf("failed to seed %s: %w", coins[i].Symbol, err)
		}
		zap.L().Info("Seeded coin",
			zap.String("coin_id", saved.Id),
			zap.String("price", saved.Price.String()))
	}
	return nil
}
