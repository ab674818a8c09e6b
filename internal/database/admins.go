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
	"fmt"
	"strings"

	"p2p-coin-desk-go/internal/models"
	"p2p-coin-desk-go/internal/store"

	"go.uber.org/zap"
)

const (
	RoleSuper  = "super"
	RoleEditor = "editor"
)

// NormalizeEmail is the canonical form used for allow-list lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) HasAdmin(ctx context.Context, email string) (bool, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return false, nil
	}

	var count int
	if err := s.db.QueryRowContext(ctx, queryHasAdmin, email).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to query admins: %w", err)
	}
	return count > 0, nil
}

// AddAdmin inserts email into the allow-list, or updates its role if it is
// already present.
func (s *Service) AddAdmin(ctx context.Context, email, role string) (*models.AdminEntry, error) {
	email = NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid admin email %q", store.ErrValidation, email)
	}
	if role == "" {
		role = RoleEditor
	}
	if role != RoleSuper && role != RoleEditor {
		return nil, fmt.Errorf("%w: unknown admin role %q", store.ErrValidation, role)
	}

	var entry models.AdminEntry
	var createdAt int64
	err := s.db.QueryRowContext(ctx, queryUpsertAdmin, email, role, toMillis(s.now())).Scan(
		&entry.Email, &entry.Role, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert admin: %w", err)
	}
	entry.CreatedAt = fromMillis(createdAt)

	zap.L().Info("Admin allow-list updated", zap.String("email", entry.Email), zap.String("role", entry.Role))
	return &entry, nil
}

func (s *Service) ListAdmins(ctx context.Context) ([]models.AdminEntry, error) {
	rows, err := s.db.QueryContext(ctx, queryListAdmins)
	if err != nil {
		return nil, fmt.Errorf("failed to query admins: %w", err)
	}
	defer closeRows(rows)

	var admins []models.AdminEntry
	for rows.Next() {
		var a models.AdminEntry
		var createdAt int64
		if err := rows.Scan(&a.Email, &a.Role, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan admin: %w", err)
		}
		a.CreatedAt = fromMillis(createdAt)
		admins = append(admins, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating admins: %w", err)
	}

	return admins, nil
}
