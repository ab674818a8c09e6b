package store

import (
	"context"
	"errors"

	"p2p-coin-desk-go/internal/models"
)

// Sentinel errors shared across all backend implementations and services.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUpstream          = errors.New("upstream failure")
	ErrUnauthorized      = errors.New("not authorized")
	ErrDegraded          = errors.New("committed with follow-up failures")
)

// UpdateStatusParams is the only mutation allowed on a stored request.
type UpdateStatusParams struct {
	RequestId          string
	Status             models.RequestStatus
	AdminScreenshotURL string // empty leaves the column untouched
}

// RequestStore persists buy and sell requests in two parallel collections.
type RequestStore interface {
	// CreateRequest persists a pending request, assigns its id and opens the
	// placeholder chat thread for it.
	CreateRequest(ctx context.Context, req *models.Request) (string, error)
	GetRequest(ctx context.Context, requestId string) (*models.Request, error)
	ListRequestsByUser(ctx context.Context, userId string, reqType models.RequestType) ([]models.Request, error)
	// ListAllRequests is privileged; callers must pass the admin gate first.
	ListAllRequests(ctx context.Context, reqType models.RequestType) ([]models.Request, error)
	// UpdateRequestStatus moves a pending request to a terminal status. It
	// fails with ErrNotFound or ErrInvalidTransition and never overwrites a
	// terminal status.
	UpdateRequestStatus(ctx context.Context, params UpdateStatusParams) (*models.Request, error)
}

// ChatStore persists per-request message threads.
type ChatStore interface {
	AppendMessage(ctx context.Context, msg *models.ChatMessage) error
	ListMessages(ctx context.Context, requestId string) ([]models.ChatMessage, error)
	GetThread(ctx context.Context, requestId string) (*models.ChatThread, error)
}

// NotificationStore persists user-addressed notifications.
type NotificationStore interface {
	InsertNotification(ctx context.Context, notif *models.AppNotification) error
	ListNotifications(ctx context.Context, userId string, limit int) ([]models.AppNotification, error)
	// MarkNotificationRead is idempotent; ErrNotFound when the notification
	// does not exist or belongs to another user.
	MarkNotificationRead(ctx context.Context, userId, notificationId string) error
}

// AuditStore is an append-only log of actions.
type AuditStore interface {
	InsertAuditEntry(ctx context.Context, entry *models.AuditEntry) error
	ListRecentAuditEntries(ctx context.Context, limit int) ([]models.AuditEntry, error)
}

// AdminDirectory is the administrator allow-list keyed by email.
type AdminDirectory interface {
	HasAdmin(ctx context.Context, email string) (bool, error)
	AddAdmin(ctx context.Context, email, role string) (*models.AdminEntry, error)
	ListAdmins(ctx context.Context) ([]models.AdminEntry, error)
}

// CoinCatalog is the coin-catalog collaborator.
type CoinCatalog interface {
	GetCoin(ctx context.Context, coinId string) (*models.Coin, error)
	ListCoins(ctx context.Context) ([]models.Coin, error)
	UpsertCoin(ctx context.Context, coin *models.Coin) (*models.Coin, error)
}

// ChangeNotifier is told about every committed write that live feeds observe.
type ChangeNotifier interface {
	Publish(ctx context.Context, topic string) error
}

// NopNotifier drops change events.
type NopNotifier struct{}

func (NopNotifier) Publish(context.Context, string) error { return nil }

// ChatTopic names the change feed of one request's messages.
func ChatTopic(requestId string) string { return "chat:" + requestId }

// RequestsTopic is published whenever any request is created or resolved.
const RequestsTopic = "requests"

// AuditTopic is published on every audit append.
const AuditTopic = "audit"

// NotificationTopic names the change feed of one user's notifications.
func NotificationTopic(userId string) string { return "notifications:" + userId }
