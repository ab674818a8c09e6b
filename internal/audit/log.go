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

package audit

import (
	"context"
	"fmt"
	"strings"

	"p2p-coin-desk-go/internal/models"
	"p2p-coin-desk-go/internal/store"

	"go.uber.org/zap"
)

const (
	DefaultRecent = 50

	ActionCreateBuy   = "CREATE_BUY"
	ActionCreateSell  = "CREATE_SELL"
	ActionApproveBuy  = "APPROVE_BUY"
	ActionRejectBuy   = "REJECT_BUY"
	ActionApproveSell = "APPROVE_SELL"
	ActionRejectSell  = "REJECT_SELL"
	ActionUpsertCoin  = "UPSERT_COIN"
)

// Log is the append-only audit trail. It is a diagnostic record; request
// status stays the source of truth.
type Log struct {
	store    store.AuditStore
	maxLimit int
}

func NewLog(s store.AuditStore, maxLimit int) *Log {
	if maxLimit <= 0 {
		maxLimit = DefaultRecent
	}
	return &Log{store: s, maxLimit: maxLimit}
}

func (l *Log) Append(ctx context.Context, actorEmail, actionType, detail string) (*models.AuditEntry, error) {
	if strings.TrimSpace(actorEmail) == "" {
		return nil, fmt.Errorf("%w: audit actor is required", store.ErrValidation)
	}

	entry := &models.AuditEntry{
		ActorEmail: actorEmail,
		ActionType: actionType,
		Detail:     detail,
	}
	if err := l.store.InsertAuditEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to append audit entry: %w", err)
	}

	zap.L().Info("Audit entry appended",
		zap.String("actor", actorEmail),
		zap.String("action", actionType),
		zap.String("detail", detail))

	return entry, nil
}

// Recent returns up to limit entries, newest first. A non-positive limit
// means the default; larger limits are capped.
func (l *Log) Recent(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = DefaultRecent
	}
	if limit > l.maxLimit {
		limit = l.maxLimit
	}

	entries, err := l.store.ListRecentAuditEntries(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}

// ResolutionAction names the audit action for a decision on a request type.
func ResolutionAction(reqType models.RequestType, status models.RequestStatus) string {
	approved := status == models.StatusApproved
	switch {
	case reqType == models.RequestTypeBuy && approved:
		return ActionApproveBuy
	case reqType == models.RequestTypeBuy:
		return ActionRejectBuy
	case approved:
		return ActionApproveSell
	default:
		return ActionRejectSell
	}
}
