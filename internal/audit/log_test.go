package audit

import (
	"context"
	"errors"
	"testing"

	"p2p-coin-desk-go/internal/models"
	"p2p-coin-desk-go/internal/store"
)

type memoryAuditStore struct {
	entries   []models.AuditEntry
	lastLimit int
}

func (m *memoryAuditStore) InsertAuditEntry(_ context.Context, entry *models.AuditEntry) error {
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryAuditStore) ListRecentAuditEntries(_ context.Context, limit int) ([]models.AuditEntry, error) {
	m.lastLimit = limit
	out := make([]models.AuditEntry, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

func TestAppend_RequiresActor(t *testing.T) {
	s := &memoryAuditStore{}
	log := NewLog(s, 0)

	if _, err := log.Append(context.Background(), "  ", ActionApproveBuy, "x"); !errors.Is(err, store.ErrValidation) {
		t.Errorf("Expected ErrValidation, got %v", err)
	}
	if len(s.entries) != 0 {
		t.Errorf("Nothing should be stored, got %d entries", len(s.entries))
	}

	if _, err := log.Append(context.Background(), "ops@example.com", ActionApproveBuy, "Updated tx abc to approved"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if len(s.entries) != 1 || s.entries[0].ActionType != ActionApproveBuy {
		t.Errorf("Unexpected entries: %+v", s.entries)
	}
}

func TestRecent_Limits(t *testing.T) {
	tests := []struct {
		name     string
		maxLimit int
		limit    int
		expected int
	}{
		{"default", 0, 0, DefaultRecent},
		{"explicit", 50, 10, 10},
		{"capped", 50, 500, 50},
		{"custom cap", 5, 10, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &memoryAuditStore{}
			log := NewLog(s, tt.maxLimit)
			if _, err := log.Recent(context.Background(), tt.limit); err != nil {
				t.Fatalf("Recent failed: %v", err)
			}
			if s.lastLimit != tt.expected {
				t.Errorf("Expected limit %d, got %d", tt.expected, s.lastLimit)
			}
		})
	}
}

func TestResolutionAction(t *testing.T) {
	tests := []struct {
		reqType  models.RequestType
		status   models.RequestStatus
		expected string
	}{
		{models.RequestTypeBuy, models.StatusApproved, "APPROVE_BUY"},
		{models.RequestTypeBuy, models.StatusRejected, "REJECT_BUY"},
		{models.RequestTypeSell, models.StatusApproved, "APPROVE_SELL"},
		{models.RequestTypeSell, models.StatusRejected, "REJECT_SELL"},
	}

	for _, tt := range tests {
		if got := ResolutionAction(tt.reqType, tt.status); got != tt.expected {
			t.Errorf("ResolutionAction(%s, %s) = %s, expected %s", tt.reqType, tt.status, got, tt.expected)
		}
	}
}
