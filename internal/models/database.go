package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AppNotification is a user-addressed record created on a request transition
type AppNotification struct {
	Id        string    `json:"id"`
	UserId    string    `json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Link      string    `json:"link,omitempty"`
	Read      bool      `json:"read"`
	Timestamp time.Time `json:"timestamp"`
}

// UnreadCount derives the unread total from a notification feed.
func UnreadCount(feed []AppNotification) int {
	n := 0
	for _, notif := range feed {
		if !notif.Read {
			n++
		}
	}
	return n
}

// AuditEntry is an immutable record of a privileged or lifecycle action
type AuditEntry struct {
	Id         string    `json:"id"`
	ActorEmail string    `json:"actor_email"`
	ActionType string    `json:"action_type"`
	Detail     string    `json:"detail"`
	Timestamp  time.Time `json:"timestamp"`
}

// AdminEntry is one member of the administrator allow-list
type AdminEntry struct {
	Email     string    `json:"email"`
	Role      string    `json:"role"` // super, editor
	CreatedAt time.Time `json:"created_at"`
}

// Coin is a catalog entry. Requests reference it by id and copy its symbol
// and price at submission.
type Coin struct {
	Id        string          `json:"id"`
	Name      string          `json:"coin_name"`
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Available bool            `json:"available"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
