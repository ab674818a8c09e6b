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
	"fmt"
	"time"

	"p2p-coin-desk-go/internal/models"
	"p2p-coin-desk-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time checks: *Service must satisfy every store contract.
var (
	_ store.RequestStore      = (*Service)(nil)
	_ store.ChatStore         = (*Service)(nil)
	_ store.NotificationStore = (*Service)(nil)
	_ store.AuditStore        = (*Service)(nil)
	_ store.AdminDirectory    = (*Service)(nil)
	_ store.CoinCatalog       = (*Service)(nil)
)

type Service struct {
	db       *sql.DB
	notifier store.ChangeNotifier
	now      func() time.Time
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := newService(db)
	if err := service.InitSchema(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

func newService(db *sql.DB) *Service {
	return &Service{
		db:       db,
		notifier: store.NopNotifier{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetChangeNotifier installs the receiver of change events for live feeds.
// Called once during wiring, before the service handles traffic.
func (s *Service) SetChangeNotifier(n store.ChangeNotifier) {
	if n == nil {
		n = store.NopNotifier{}
	}
	s.notifier = n
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

// Ping is used by health checks.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Service) InitSchema(ctx context.Context) error {
	schema := `
	-- Buy requests (one row per submission, mutated once on resolution)
	CREATE TABLE IF NOT EXISTS buy_requests (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		user_email TEXT NOT NULL,
		coin_id TEXT NOT NULL,
		coin_symbol TEXT NOT NULL,
		coin_price_at_request TEXT NOT NULL,
		amount TEXT NOT NULL,
		total_price TEXT NOT NULL,
		user_screenshot_url TEXT NOT NULL DEFAULT '',
		admin_screenshot_url TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected')),
		note TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		payment_method TEXT NOT NULL,
		payment_number TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_buy_requests_user ON buy_requests(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_buy_requests_created_at ON buy_requests(created_at);

	-- Sell requests share the buy schema except for the payout destination
	CREATE TABLE IF NOT EXISTS sell_requests (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		user_email TEXT NOT NULL,
		coin_id TEXT NOT NULL,
		coin_symbol TEXT NOT NULL,
		coin_price_at_request TEXT NOT NULL,
		amount TEXT NOT NULL,
		total_price TEXT NOT NULL,
		user_screenshot_url TEXT NOT NULL DEFAULT '',
		admin_screenshot_url TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected')),
		note TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		wallet_address TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sell_requests_user ON sell_requests(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_sell_requests_created_at ON sell_requests(created_at);

	-- Chat thread metadata, one per request
	CREATE TABLE IF NOT EXISTS chat_threads (
		request_id TEXT PRIMARY KEY,
		participants TEXT NOT NULL,
		last_message TEXT NOT NULL DEFAULT '',
		last_sender TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		request_id TEXT NOT NULL REFERENCES chat_threads(request_id),
		sender_id TEXT NOT NULL,
		sender_email TEXT NOT NULL,
		text TEXT NOT NULL,
		is_admin INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chat_messages_request ON chat_messages(request_id, created_at);

	CREATE TABLE IF NOT EXISTS notifications (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		link TEXT NOT NULL DEFAULT '',
		read INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at);

	-- Append-only audit trail
	CREATE TABLE IF NOT EXISTS audit_logs (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		actor_email TEXT NOT NULL,
		action_type TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at);

	CREATE TABLE IF NOT EXISTS admins (
		email TEXT PRIMARY KEY,
		role TEXT NOT NULL DEFAULT 'editor',
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS coins (
		id TEXT PRIMARY KEY,
		coin_name TEXT NOT NULL,
		symbol TEXT NOT NULL,
		price TEXT NOT NULL,
		available INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// publish tells live feeds about a committed write. Feed delivery is best
// effort: the write already succeeded.
func (s *Service) publish(ctx context.Context, topic string) {
	if err := s.notifier.Publish(ctx, topic); err != nil {
		zap.L().Warn("Failed to publish change event", zap.String("topic", topic), zap.Error(err))
	}
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		zap.L().Warn("Failed to close rows", zap.Error(err))
	}
}
