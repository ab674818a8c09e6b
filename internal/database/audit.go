package database

import (
	"context"
	"fmt"

	"p2p-coin-desk-go/internal/models"
	"p2p-coin-desk-go/internal/store"

	"github.com/google/uuid"
)

func (s *Service) InsertAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	if entry == nil || entry.ActorEmail == "" || entry.ActionType == "" {
		return fmt.Errorf("%w: audit entry needs an actor and an action", store.ErrValidation)
	}
	if entry.Id == "" {
		entry.Id = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	entry.Timestamp = fromMillis(toMillis(entry.Timestamp))

	if _, err := s.db.ExecContext(ctx, queryInsertAuditEntry,
		entry.Id, entry.ActorEmail, entry.ActionType, entry.Detail, toMillis(entry.Timestamp)); err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	s.publish(ctx, store.AuditTopic)
	return nil
}

func (s *Service) ListRecentAuditEntries(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", store.ErrValidation, limit)
	}

	rows, err := s.db.QueryContext(ctx, queryListRecentAuditEntries, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer closeRows(rows)

	entries := make([]models.AuditEntry, 0, limit)
	for rows.Next() {
		var e models.AuditEntry
		var ts int64
		if err := rows.Scan(&e.Id, &e.ActorEmail, &e.ActionType, &e.Detail, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Timestamp = fromMillis(ts)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}
