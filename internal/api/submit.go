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

package api

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"p2p-coin-desk-go/internal/audit"
	"p2p-coin-desk-go/internal/models"
	"p2p-coin-desk-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Submit validates a buy or sell submission, snapshots the coin price,
// uploads the proof and persists the pending request. Nothing is stored
// when validation or the upload fails.
func (s *DeskService) Submit(ctx context.Context, who models.Identity, params models.SubmitParams) (*models.Request, error) {
	zap.L().Info("Processing request submission",
		zap.String("user_id", who.UserId),
		zap.String("type", string(params.Type)),
		zap.String("coin_id", params.CoinId),
		zap.String("amount", params.Amount.String()))

	settlement, err := s.validateSubmission(who, params)
	if err != nil {
		zap.L().Warn("Rejected request submission", zap.String("user_id", who.UserId), zap.Error(err))
		return nil, err
	}

	coin, err := s.coins.GetCoin(ctx, params.CoinId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown coin %q", store.ErrValidation, params.CoinId)
		}
		return nil, fmt.Errorf("%w: coin lookup: %w", store.ErrUpstream, err)
	}
	if !coin.Available {
		return nil, fmt.Errorf("%w: %s is not available", store.ErrValidation, coin.Symbol)
	}

	// the price is copied now and never recomputed
	price := coin.Price
	total := QuoteTotal(params.Amount, price)

	minimum := s.settings.MinimumBuy
	if params.Type == models.RequestTypeSell {
		minimum = s.settings.MinimumSell
	}
	if minimum.IsPositive() && total.LessThan(minimum) {
		return nil, fmt.Errorf("%w: total %s is below the minimum of %s %s",
			store.ErrValidation, total.String(), minimum.String(), s.settings.Currency)
	}

	var proofURL string
	if params.Proof != nil {
		proofURL, err = s.uploader.Upload(ctx, params.Proof)
		if err != nil {
			zap.L().Error("Payment proof upload failed", zap.String("user_id", who.UserId), zap.Error(err))
			return nil, fmt.Errorf("%w: payment proof upload: %w", store.ErrUpstream, err)
		}
	}

	req := &models.Request{
		UserId:             who.UserId,
		UserEmail:          who.Email,
		CoinId:             coin.Id,
		CoinSymbol:         coin.Symbol,
		CoinPriceAtRequest: price,
		Amount:             params.Amount,
		TotalPrice:         total,
		UserScreenshotURL:  proofURL,
		Status:             models.StatusPending,
		Note:               strings.TrimSpace(params.Note),
		Settlement:         settlement,
	}

	if _, err := s.requests.CreateRequest(ctx, req); err != nil {
		if errors.Is(err, store.ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: persist request: %w", store.ErrUpstream, err)
	}

	s.recordCreation(ctx, who, req)

	if err := s.events.PublishCreated(ctx, req); err != nil {
		zap.L().Warn("Failed to publish creation event", zap.String("request_id", req.Id), zap.Error(err))
	}

	return req, nil
}

func (s *DeskService) validateSubmission(who models.Identity, params models.SubmitParams) (models.Settlement, error) {
	if who.UserId == "" {
		return nil, fmt.Errorf("%w: caller identity is required", store.ErrValidation)
	}
	if !params.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown request type %q", store.ErrValidation, params.Type)
	}
	if params.CoinId == "" {
		return nil, fmt.Errorf("%w: coin is required", store.ErrValidation)
	}
	if !params.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", store.ErrValidation)
	}

	switch params.Type {
	case models.RequestTypeBuy:
		method := strings.TrimSpace(params.PaymentMethod)
		number := strings.TrimSpace(params.PaymentNumber)
		if params.Proof == nil {
			return nil, fmt.Errorf("%w: payment proof is required for buy requests", store.ErrValidation)
		}
		if method == "" || number == "" {
			return nil, fmt.Errorf("%w: payment method and number are required", store.ErrValidation)
		}
		if len(s.settings.PaymentMethods) > 0 && !slices.Contains(s.settings.PaymentMethods, method) {
			return nil, fmt.Errorf("%w: unsupported payment method %q", store.ErrValidation, method)
		}
		return models.BuySettlement{PaymentMethod: method, PaymentNumber: number}, nil

	default:
		wallet := strings.TrimSpace(params.WalletAddress)
		if wallet == "" {
			return nil, fmt.Errorf("%w: payout address is required for sell requests", store.ErrValidation)
		}
		return models.SellSettlement{WalletAddress: wallet}, nil
	}
}

// recordCreation appends the creation audit entry. The request is already
// stored, so a failure here is only logged.
func (s *DeskService) recordCreation(ctx context.Context, who models.Identity, req *models.Request) {
	action, verb := audit.ActionCreateBuy, "Requested"
	if req.Type() == models.RequestTypeSell {
		action, verb = audit.ActionCreateSell, "Selling"
	}
	detail := fmt.Sprintf("%s %s %s", verb, req.Amount.String(), req.CoinSymbol)

	if _, err := s.audit.Append(ctx, who.Email, action, detail); err != nil {
		zap.L().Warn("Failed to audit request creation",
			zap.String("request_id", req.Id),
			zap.Error(err))
	}
}

// QuoteTotal is the fiat total a submission of amount would be stored with.
func QuoteTotal(amount, price decimal.Decimal) decimal.Decimal {
	return amount.Mul(price)
}
