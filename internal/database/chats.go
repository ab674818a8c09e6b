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

// AppendMessage stores msg and bumps the thread metadata in one transaction.
// The stored timestamp never goes backwards within a thread, so the
// chronological listing matches append order even across clock skew.
func (s *Service) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	if msg == nil || msg.RequestId == "" {
		return fmt.Errorf("%w: message must reference a request", store.ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	var threadId string
	err = tx.QueryRowContext(ctx, queryChatThreadExists, msg.RequestId).Scan(&threadId)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: chat thread %s", store.ErrNotFound, msg.RequestId)
	}
	if err != nil {
		return fmt.Errorf("failed to load chat thread: %w", err)
	}

	var latest int64
	if err := tx.QueryRowContext(ctx, queryLatestChatTimestamp, msg.RequestId).Scan(&latest); err != nil {
		return fmt.Errorf("failed to read latest chat timestamp: %w", err)
	}

	ts := s.now()
	if !msg.Timestamp.IsZero() {
		ts = msg.Timestamp
	}
	millis := toMillis(ts)
	if millis < latest {
		millis = latest
	}

	if msg.Id == "" {
		msg.Id = uuid.New().String()
	}

	if _, err := tx.ExecContext(ctx, queryInsertChatMessage,
		msg.Id, msg.RequestId, msg.SenderId, msg.SenderEmail, msg.Text, msg.IsAdmin, millis); err != nil {
		return fmt.Errorf("failed to insert chat message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, queryUpdateChatThread, msg.Text, msg.SenderId, millis, msg.RequestId); err != nil {
		return fmt.Errorf("failed to update chat thread: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chat message: %w", err)
	}

	msg.Timestamp = fromMillis(millis)

	zap.L().Debug("Appended chat message",
		zap.String("request_id", msg.RequestId),
		zap.String("message_id", msg.Id),
		zap.Bool("is_admin", msg.IsAdmin))

	s.publish(ctx, store.ChatTopic(msg.RequestId))
	return nil
}

func (s *Service) ListMessages(ctx context.Context, requestId string) ([]models.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, queryListChatMessages, requestId)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer closeRows(rows)

	messages := make([]models.ChatMessage, 0)
	for rows.Next() {
		var msg models.ChatMessage
		var ts int64
		if err := rows.Scan(&msg.Id, &msg.RequestId, &msg.SenderId, &msg.SenderEmail, &msg.Text, &msg.IsAdmin, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		msg.Timestamp = fromMillis(ts)
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat messages: %w", err)
	}

	return messages, nil
}

func (s *Service) GetThread(ctx context.Context, requestId string) (*models.ChatThread, error) {
	var thread models.ChatThread
	var participants string
	var updatedAt int64

	err := s.db.QueryRowContext(ctx, queryGetChatThread, requestId).Scan(
		&thread.RequestId, &participants, &thread.LastMessage, &thread.LastSender, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: chat thread %s", store.ErrNotFound, requestId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query chat thread: %w", err)
	}

	if err := json.Unmarshal([]byte(participants), &thread.Participants); err != nil {
		return nil, fmt.Errorf("failed to decode thread participants: %w", err)
	}
	thread.UpdatedAt = fromMillis(updatedAt)
	return &thread, nil
}
