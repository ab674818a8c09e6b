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

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"p2p-coin-desk-go/internal/models"
	"p2p-coin-desk-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// threadOpenedMessage is the placeholder last message of a fresh thread.
const threadOpenedMessage = "Request created"

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Service) CreateRequest(ctx context.Context, req *models.Request) (string, error) {
	if req == nil {
		return "", fmt.Errorf("%w: request is nil", store.ErrValidation)
	}
	if req.Status == "" {
		req.Status = models.StatusPending
	}
	if req.Status != models.StatusPending {
		return "", fmt.Errorf("%w: new requests must be pending, got %s", store.ErrValidation, req.Status)
	}
	if req.UserId == "" {
		return "", fmt.Errorf("%w: user id is required", store.ErrValidation)
	}
	if !req.Amount.IsPositive() {
		return "", fmt.Errorf("%w: amount must be positive", store.ErrValidation)
	}

	id := uuid.New().String()
	createdAt := req.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	createdAt = fromMillis(toMillis(createdAt))

	common := []any{
		id, req.UserId, req.UserEmail, req.CoinId, req.CoinSymbol,
		req.CoinPriceAtRequest, req.Amount, req.TotalPrice,
		req.UserScreenshotURL, req.AdminScreenshotURL, string(req.Status), req.Note, toMillis(createdAt),
	}

	var query string
	var args []any
	switch settlement := req.Settlement.(type) {
	case models.BuySettlement:
		query = queryInsertBuyRequest
		args = append(common, settlement.PaymentMethod, settlement.PaymentNumber)
	case models.SellSettlement:
		query = queryInsertSellRequest
		args = append(common, settlement.WalletAddress)
	default:
		return "", fmt.Errorf("%w: unknown request settlement %T", store.ErrValidation, req.Settlement)
	}

	participants, err := json.Marshal([]string{req.UserId, models.AdminSenderId})
	if err != nil {
		return "", fmt.Errorf("failed to encode thread participants: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("failed to insert %s request: %w", req.Type(), err)
	}

	if _, err := tx.ExecContext(ctx, queryInsertChatThread,
		id, string(participants), threadOpenedMessage, "", toMillis(createdAt)); err != nil {
		return "", fmt.Errorf("failed to open chat thread: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit request: %w", err)
	}

	req.Id = id
	req.CreatedAt = createdAt

	zap.L().Info("Created request",
		zap.String("request_id", id),
		zap.String("type", string(req.Type())),
		zap.String("user_id", req.UserId),
		zap.String("coin", req.CoinSymbol),
		zap.String("amount", req.Amount.String()))

	s.publish(ctx, store.RequestsTopic)
	return id, nil
}

// GetRequest looks the id up in both collections; ids are uuids so at most
// one can match.
func (s *Service) GetRequest(ctx context.Context, requestId string) (*models.Request, error) {
	req, err := scanRequest(s.db.QueryRowContext(ctx, queryGetBuyRequestById, requestId), models.RequestTypeBuy)
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to query buy request: %w", err)
	}

	req, err = scanRequest(s.db.QueryRowContext(ctx, queryGetSellRequestById, requestId), models.RequestTypeSell)
	if err == nil {
		return req, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: request %s", store.ErrNotFound, requestId)
	}
	return nil, fmt.Errorf("failed to query sell request: %w", err)
}

func (s *Service) ListRequestsByUser(ctx context.Context, userId string, reqType models.RequestType) ([]models.Request, error) {
	switch reqType {
	case models.RequestTypeBuy:
		return s.listRequests(ctx, reqType, queryListBuyRequestsByUser, userId)
	case models.RequestTypeSell:
		return s.listRequests(ctx, reqType, queryListSellRequestsByUser, userId)
	}
	return nil, fmt.Errorf("%w: unknown request type %q", store.ErrValidation, reqType)
}

func (s *Service) ListAllRequests(ctx context.Context, reqType models.RequestType) ([]models.Request, error) {
	switch reqType {
	case models.RequestTypeBuy:
		return s.listRequests(ctx, reqType, queryListAllBuyRequests)
	case models.RequestTypeSell:
		return s.listRequests(ctx, reqType, queryListAllSellRequests)
	}
	return nil, fmt.Errorf("%w: unknown request type %q", store.ErrValidation, reqType)
}

func (s *Service) listRequests(ctx context.Context, reqType models.RequestType, query string, args ...any) ([]models.Request, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s requests: %w", reqType, err)
	}
	defer closeRows(rows)

	requests := make([]models.Request, 0)
	for rows.Next() {
		req, err := scanRequest(rows, reqType)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s request: %w", reqType, err)
		}
		requests = append(requests, *req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s requests: %w", reqType, err)
	}

	return requests, nil
}

// UpdateRequestStatus is a compare-and-set on status = 'pending', so two
// concurrent resolutions cannot both succeed.
func (s *Service) UpdateRequestStatus(ctx context.Context, params store.UpdateStatusParams) (*models.Request, error) {
	if !params.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: target status %q is not terminal", store.ErrInvalidTransition, params.Status)
	}

	current, err := s.GetRequest(ctx, params.RequestId)
	if err != nil {
		return nil, err
	}

	query := queryResolveBuyRequest
	if current.Type() == models.RequestTypeSell {
		query = queryResolveSellRequest
	}

	// the write and the readback are one statement
	row := s.db.QueryRowContext(ctx, query,
		string(params.Status), params.AdminScreenshotURL, params.AdminScreenshotURL, params.RequestId)
	updated, err := scanRequest(row, current.Type())
	if errors.Is(err, sql.ErrNoRows) {
		if latest, getErr := s.GetRequest(ctx, params.RequestId); getErr == nil {
			return nil, fmt.Errorf("%w: request %s is already %s", store.ErrInvalidTransition, params.RequestId, latest.Status)
		}
		return nil, fmt.Errorf("%w: request %s is no longer pending", store.ErrInvalidTransition, params.RequestId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update request status: %w", err)
	}

	zap.L().Info("Updated request status",
		zap.String("request_id", params.RequestId),
		zap.String("type", string(updated.Type())),
		zap.String("status", string(updated.Status)))

	s.publish(ctx, store.RequestsTopic)
	return updated, nil
}

func scanRequest(row rowScanner, reqType models.RequestType) (*models.Request, error) {
	var req models.Request
	var status string
	var createdAt int64
	var buy models.BuySettlement
	var sell models.SellSettlement

	dest := []any{
		&req.Id, &req.UserId, &req.UserEmail, &req.CoinId, &req.CoinSymbol,
		&req.CoinPriceAtRequest, &req.Amount, &req.TotalPrice,
		&req.UserScreenshotURL, &req.AdminScreenshotURL, &status, &req.Note, &createdAt,
	}
	if reqType == models.RequestTypeBuy {
		dest = append(dest, &buy.PaymentMethod, &buy.PaymentNumber)
	} else {
		dest = append(dest, &sell.WalletAddress)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	req.Status = models.RequestStatus(status)
	req.CreatedAt = fromMillis(createdAt)
	if reqType == models.RequestTypeBuy {
		req.Settlement = buy
	} else {
		req.Settlement = sell
	}
	return &req, nil
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		zap.L().Warn("Failed to rollback transaction", zap.Error(err))
	}
}
