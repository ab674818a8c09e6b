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
	"fmt"

	"p2p-coin-desk-go/internal/events"
	"p2p-coin-desk-go/internal/models"
	"p2p-coin-desk-go/internal/store"
)

type (
	// AdminChecker is the admin gate as seen by the desk.
	AdminChecker interface {
		IsAdmin(ctx context.Context, email string) (bool, error)
		Authorize(ctx context.Context, email string) error
	}

	Uploader interface {
		Upload(ctx context.Context, file *models.ProofFile) (string, error)
	}

	AuditAppender interface {
		Append(ctx context.Context, actorEmail, actionType, detail string) (*models.AuditEntry, error)
	}
)

// DeskService is the user-facing side of the exchange desk: submissions,
// listings and the coin catalog.
type DeskService struct {
	requests store.RequestStore
	coins    store.CoinCatalog
	gate     AdminChecker
	uploader Uploader
	audit    AuditAppender
	events   events.Publisher
	settings models.SiteSettings
}

type Deps struct {
	Requests store.RequestStore
	Coins    store.CoinCatalog
	Gate     AdminChecker
	Uploader Uploader
	Audit    AuditAppender
	Events   events.Publisher
	Settings models.SiteSettings
}

func NewDeskService(deps Deps) *DeskService {
	publisher := deps.Events
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &DeskService{
		requests: deps.Requests,
		coins:    deps.Coins,
		gate:     deps.Gate,
		uploader: deps.Uploader,
		audit:    deps.Audit,
		events:   publisher,
		settings: deps.Settings,
	}
}

func (s *DeskService) HealthCheck(ctx context.Context) error {
	_, err := s.coins.ListCoins(ctx)
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Settings returns the operator-configured exchange parameters.
func (s *DeskService) Settings() models.SiteSettings {
	return s.settings
}
