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

const (
	requestColumns = `id, user_id, user_email, coin_id, coin_symbol, coin_price_at_request, amount, total_price,
		user_screenshot_url, admin_screenshot_url, status, note, created_at`

	buyRequestColumns  = requestColumns + `, payment_method, payment_number`
	sellRequestColumns = requestColumns + `, wallet_address`

	// Buy request queries
	queryInsertBuyRequest = `
		INSERT INTO buy_requests (` + buyRequestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetBuyRequestById = `
		SELECT ` + buyRequestColumns + `
		FROM buy_requests
		WHERE id = ?`

	queryListBuyRequestsByUser = `
		SELECT ` + buyRequestColumns + `
		FROM buy_requests
		WHERE user_id = ?
		ORDER BY created_at DESC, seq ASC`

	queryListAllBuyRequests = `
		SELECT ` + buyRequestColumns + `
		FROM buy_requests
		ORDER BY created_at DESC, seq ASC`

	queryResolveBuyRequest = `
		UPDATE buy_requests
		SET status = ?,
			admin_screenshot_url = CASE WHEN ? = '' THEN admin_screenshot_url ELSE ? END
		WHERE id = ? AND status = 'pending'
		RETURNING ` + buyRequestColumns

	// Sell request queries
	queryInsertSellRequest = `
		INSERT INTO sell_requests (` + sellRequestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetSellRequestById = `
		SELECT ` + sellRequestColumns + `
		FROM sell_requests
		WHERE id = ?`

	queryListSellRequestsByUser = `
		SELECT ` + sellRequestColumns + `
		FROM sell_requests
		WHERE user_id = ?
		ORDER BY created_at DESC, seq ASC`

	queryListAllSellRequests = `
		SELECT ` + sellRequestColumns + `
		FROM sell_requests
		ORDER BY created_at DESC, seq ASC`

	queryResolveSellRequest = `
		UPDATE sell_requests
		SET status = ?,
			admin_screenshot_url = CASE WHEN ? = '' THEN admin_screenshot_url ELSE ? END
		WHERE id = ? AND status = 'pending'
		RETURNING ` + sellRequestColumns

	// Chat queries
	queryInsertChatThread = `
		INSERT INTO chat_threads (request_id, participants, last_message, last_sender, updated_at)
		VALUES (?, ?, ?, ?, ?)`

	queryGetChatThread = `
		SELECT request_id, participants, last_message, last_sender, updated_at
		FROM chat_threads
		WHERE request_id = ?`

	queryChatThreadExists = `
		SELECT request_id
		FROM chat_threads
		WHERE request_id = ?`

	queryUpdateChatThread = `
		UPDATE chat_threads
		SET last_message = ?, last_sender = ?, updated_at = ?
		WHERE request_id = ?`

	queryLatestChatTimestamp = `
		SELECT COALESCE(MAX(created_at), 0)
		FROM chat_messages
		WHERE request_id = ?`

	queryInsertChatMessage = `
		INSERT INTO chat_messages (id, request_id, sender_id, sender_email, text, is_admin, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryListChatMessages = `
		SELECT id, request_id, sender_id, sender_email, text, is_admin, created_at
		FROM chat_messages
		WHERE request_id = ?
		ORDER BY created_at ASC, seq ASC`

	// Notification queries
	queryInsertNotification = `
		INSERT INTO notifications (id, user_id, title, message, link, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryListNotifications = `
		SELECT id, user_id, title, message, link, read, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC, seq DESC
		LIMIT ?`

	queryMarkNotificationRead = `
		UPDATE notifications
		SET read = 1
		WHERE id = ? AND user_id = ? AND read = 0`

	queryNotificationExists = `
		SELECT COUNT(*)
		FROM notifications
		WHERE id = ? AND user_id = ?`

	// Audit queries
	queryInsertAuditEntry = `
		INSERT INTO audit_logs (id, actor_email, action_type, detail, created_at)
		VALUES (?, ?, ?, ?, ?)`

	queryListRecentAuditEntries = `
		SELECT id, actor_email, action_type, detail, created_at
		FROM audit_logs
		ORDER BY created_at DESC, seq DESC
		LIMIT ?`

	// Admin queries
	queryHasAdmin = `
		SELECT COUNT(*)
		FROM admins
		WHERE email = ?`

	queryUpsertAdmin = `
		INSERT INTO admins (email, role, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET role = excluded.role
		RETURNING email, role, created_at`

	queryListAdmins = `
		SELECT email, role, created_at
		FROM admins
		ORDER BY email`

	// Coin queries
	queryGetCoin = `
		SELECT id, coin_name, symbol, price, available, created_at, updated_at
		FROM coins
		WHERE id = ?`

	queryListCoins = `
		SELECT id, coin_name, symbol, price, available, created_at, updated_at
		FROM coins
		ORDER BY symbol`

	queryUpsertCoin = `
		INSERT INTO coins (id, coin_name, symbol, price, available, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			coin_name = excluded.coin_name,
			symbol = excluded.symbol,
			price = excluded.price,
			available = excluded.available,
			updated_at = excluded.updated_at
		RETURNING id, coin_name, symbol, price, available, created_at, updated_at`
)
