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

package notify

import (
	"context"
	"fmt"

	"p2p-coin-desk-go/internal/feed"
	"p2p-coin-desk-go/internal/models"
	"p2p-coin-desk-go/internal/store"

	"go.uber.org/zap"
)

// MaxFeedSize is how many notifications a live feed carries at most.
const MaxFeedSize = 20

type Service struct {
	store    store.NotificationStore
	broker   *feed.Broker
	feedSize int
}

func NewService(s store.NotificationStore, broker *feed.Broker, feedSize int) *Service {
	if feedSize <= 0 || feedSize > MaxFeedSize {
		feedSize = MaxFeedSize
	}
	return &Service{store: s, broker: broker, feedSize: feedSize}
}

// Notify creates an unread notification for userId.
func (s *Service) Notify(ctx context.Context, userId, title, message, link string) (*models.AppNotification, error) {
	if userId == "" {
		return nil, fmt.Errorf("%w: notification recipient is required", store.ErrValidation)
	}

	notif := &models.AppNotification{
		UserId:  userId,
		Title:   title,
		Message: message,
		Link:    link,
	}
	if err := s.store.InsertNotification(ctx, notif); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	zap.L().Info("Notification created",
		zap.String("notification_id", notif.Id),
		zap.String("user_id", userId),
		zap.String("title", title))

	return notif, nil
}

// Feed returns the current notification window with its derived unread count.
func (s *Service) Feed(ctx context.Context, userId string) (models.NotificationFeed, error) {
	notifications, err := s.store.ListNotifications(ctx, userId, s.feedSize)
	if err != nil {
		return models.NotificationFeed{}, fmt.Errorf("failed to load notifications: %w", err)
	}
	return models.NotificationFeed{
		Notifications: notifications,
		Unread:        models.UnreadCount(notifications),
	}, nil
}

// Subscribe delivers the newest notifications for userId now and after
// every change.
func (s *Service) Subscribe(userId string, onUpdate func(models.NotificationFeed)) *feed.Subscription {
	return feed.Subscribe(s.broker, store.NotificationTopic(userId), func(ctx context.Context) (models.NotificationFeed, error) {
		return s.Feed(ctx, userId)
	}, onUpdate)
}

// MarkRead is idempotent. Only the recipient can mark a notification.
func (s *Service) MarkRead(ctx context.Context, userId, notificationId string) error {
	if err := s.store.MarkNotificationRead(ctx, userId, notificationId); err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}
