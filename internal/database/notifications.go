package database

import (
	"context"
	"fmt"

	"p2p-coin-desk-go/internal/models"
	"p2p-coin-desk-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (s *Service) InsertNotification(ctx context.Context, notif *models.AppNotification) error {
	if notif == nil || notif.UserId == "" {
		return fmt.Errorf("%w: notification must have a recipient", store.ErrValidation)
	}
	if notif.Id == "" {
		notif.Id = uuid.New().String()
	}
	if notif.Timestamp.IsZero() {
		notif.Timestamp = s.now()
	}
	notif.Timestamp = fromMillis(toMillis(notif.Timestamp))

	if _, err := s.db.ExecContext(ctx, queryInsertNotification,
		notif.Id, notif.UserId, notif.Title, notif.Message, notif.Link, notif.Read, toMillis(notif.Timestamp)); err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	zap.L().Debug("Inserted notification",
		zap.String("notification_id", notif.Id),
		zap.String("user_id", notif.UserId))

	s.publish(ctx, store.NotificationTopic(notif.UserId))
	return nil
}

func (s *Service) ListNotifications(ctx context.Context, userId string, limit int) ([]models.AppNotification, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", store.ErrValidation, limit)
	}

	rows, err := s.db.QueryContext(ctx, queryListNotifications, userId, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer closeRows(rows)

	notifications := make([]models.AppNotification, 0, limit)
	for rows.Next() {
		var n models.AppNotification
		var ts int64
		if err := rows.Scan(&n.Id, &n.UserId, &n.Title, &n.Message, &n.Link, &n.Read, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Timestamp = fromMillis(ts)
		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}

	return notifications, nil
}

func (s *Service) MarkNotificationRead(ctx context.Context, userId, notificationId string) error {
	result, err := s.db.ExecContext(ctx, queryMarkNotificationRead, notificationId, userId)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected > 0 {
		s.publish(ctx, store.NotificationTopic(userId))
		return nil
	}

	// Nothing changed: either already read or not this user's notification.
	var count int
	if err := s.db.QueryRowContext(ctx, queryNotificationExists, notificationId, userId).Scan(&count); err != nil {
		return fmt.Errorf("failed to check notification: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("%w: notification %s", store.ErrNotFound, notificationId)
	}
	return nil
}
