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

package chat

import (
	"context"
	"fmt"
	"strings"

	"p2p-coin-desk-go/internal/feed"
	"p2p-coin-desk-go/internal/models"
	"p2p-coin-desk-go/internal/store"

	"go.uber.org/zap"
)

// Channel is the per-request message thread between a requester and the
// shared admin role.
type Channel struct {
	store  store.ChatStore
	broker *feed.Broker
}

func NewChannel(s store.ChatStore, broker *feed.Broker) *Channel {
	return &Channel{store: s, broker: broker}
}

// Send appends text to the request's thread. Admin messages are sent under
// the shared admin sender id; the admin's email is kept for the record.
// Timestamps are assigned by the store.
func (c *Channel) Send(ctx context.Context, requestId string, from models.Identity, asAdmin bool, text string) (*models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message text is required", store.ErrValidation)
	}
	if requestId == "" {
		return nil, fmt.Errorf("%w: request id is required", store.ErrValidation)
	}

	msg := &models.ChatMessage{
		RequestId:   requestId,
		SenderId:    from.UserId,
		SenderEmail: from.Email,
		Text:        text,
		IsAdmin:     asAdmin,
	}
	if asAdmin {
		msg.SenderId = models.AdminSenderId
		if from.Email == "" {
			return nil, fmt.Errorf("%w: admin sender must be identified", store.ErrValidation)
		}
	} else if from.UserId == "" {
		return nil, fmt.Errorf("%w: sender must be identified", store.ErrValidation)
	}

	if err := c.store.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	zap.L().Info("Chat message sent",
		zap.String("request_id", requestId),
		zap.String("sender", msg.SenderId),
		zap.Bool("is_admin", asAdmin))

	return msg, nil
}

// History returns the full thread in timestamp order.
func (c *Channel) History(ctx context.Context, requestId string) ([]models.ChatMessage, error) {
	messages, err := c.store.ListMessages(ctx, requestId)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}
	return messages, nil
}

// Subscribe delivers the full ordered thread now and after every change.
func (c *Channel) Subscribe(requestId string, onUpdate func([]models.ChatMessage)) *feed.Subscription {
	return feed.Subscribe(c.broker, store.ChatTopic(requestId), func(ctx context.Context) ([]models.ChatMessage, error) {
		return c.store.ListMessages(ctx, requestId)
	}, onUpdate)
}
