package api

import (
	"context"
	"fmt"

	"p2p-coin-desk-go/internal/audit"
	"p2p-coin-desk-go/internal/models"
	"p2p-coin-desk-go/internal/store"

	"go.uber.org/zap"
)

func (s *DeskService) ListCoins(ctx context.Context) ([]models.Coin, error) {
	return s.coins.ListCoins(ctx)
}

// UpsertCoin lets an admin add a coin or change its price and availability.
// Pending requests keep the price they were submitted with.
func (s *DeskService) UpsertCoin(ctx context.Context, actor models.Identity, coin models.Coin) (*models.Coin, error) {
	if err := s.gate.Authorize(ctx, actor.Email); err != nil {
		return nil, err
	}
	if coin.Price.IsNegative() || coin.Price.IsZero() {
		return nil, fmt.Errorf("%w: coin price must be positive", store.ErrValidation)
	}

	saved, err := s.coins.UpsertCoin(ctx, &coin)
	if err != nil {
		return nil, err
	}

	detail := fmt.Sprintf("Set %s price %s available=%t", saved.Symbol, saved.Price.String(), saved.Available)
	if _, err := s.audit.Append(ctx, actor.Email, audit.ActionUpsertCoin, detail); err != nil {
		zap.L().Warn("Failed to audit coin update", zap.String("coin_id", saved.Id), zap.Error(err))
	}

	return saved, nil
}
