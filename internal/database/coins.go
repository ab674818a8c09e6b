package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"p2p-coin-desk-go/internal/models"
	"p2p-coin-desk-go/internal/store"

	"go.uber.org/zap"
)

func scanCoin(row rowScanner) (*models.Coin, error) {
	var coin models.Coin
	var createdAt, updatedAt int64
	if err := row.Scan(&coin.Id, &coin.Name, &coin.Symbol, &coin.Price, &coin.Available, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	coin.CreatedAt = fromMillis(createdAt)
	coin.UpdatedAt = fromMillis(updatedAt)
	return &coin, nil
}

func (s *Service) GetCoin(ctx context.Context, coinId string) (*models.Coin, error) {
	coin, err := scanCoin(s.db.QueryRowContext(ctx, queryGetCoin, coinId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: coin %s", store.ErrNotFound, coinId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query coin: %w", err)
	}
	return coin, nil
}

func (s *Service) ListCoins(ctx context.Context) ([]models.Coin, error) {
	rows, err := s.db.QueryContext(ctx, queryListCoins)
	if err != nil {
		return nil, fmt.Errorf("failed to query coins: %w", err)
	}
	defer closeRows(rows)

	coins := make([]models.Coin, 0)
	for rows.Next() {
		coin, err := scanCoin(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan coin: %w", err)
		}
		coins = append(coins, *coin)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating coins: %w", err)
	}

	return coins, nil
}

// UpsertCoin keys the catalog entry by the lowercased symbol.
func (s *Service) UpsertCoin(ctx context.Context, coin *models.Coin) (*models.Coin, error) {
	if coin == nil || strings.TrimSpace(coin.Symbol) == "" {
		return nil, fmt.Errorf("%w: coin symbol is required", store.ErrValidation)
	}
	if coin.Price.IsNegative() {
		return nil, fmt.Errorf("%w: coin price cannot be negative", store.ErrValidation)
	}

	symbol := strings.ToUpper(strings.TrimSpace(coin.Symbol))
	id := strings.ToLower(symbol)
	now := toMillis(s.now())

	saved, err := scanCoin(s.db.QueryRowContext(ctx, queryUpsertCoin,
		id, coin.Name, symbol, coin.Price, coin.Available, now, now))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert coin: %w", err)
	}

	zap.L().Info("Coin catalog updated",
		zap.String("coin_id", saved.Id),
		zap.String("price", saved.Price.String()),
		zap.Bool("available", saved.Available))

	return saved, nil
}
