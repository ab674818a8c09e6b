package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"p2p-coin-desk-go/internal/database"
	"p2p-coin-desk-go/internal/feed"
	"p2p-coin-desk-go/internal/models"
	"p2p-coin-desk-go/internal/store"
)

func setupTestDb(t *testing.T) (*database.Service, *feed.Broker, func()) {
	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	broker := feed.NewBroker()
	db.SetChangeNotifier(broker)

	cleanup := func() {
		broker.Close()
		db.Close()
	}
	return db, broker, cleanup
}

func TestNotify_CreatesUnread(t *testing.T) {
	db, broker, cleanup := setupTestDb(t)
	defer cleanup()

	service := NewService(db, broker, 0)
	ctx := context.Background()

	notif, err := service.Notify(ctx, "user1", "রিকুয়েস্ট অনুমোদিত", "approved", "/dashboard")
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if notif.Id == "" || notif.Read {
		t.Errorf("Expected a stored unread notification, got %+v", notif)
	}

	if _, err := service.Notify(ctx, "", "t", "m", ""); !errors.Is(err, store.ErrValidation) {
		t.Errorf("Expected ErrValidation for missing recipient, got %v", err)
	}
}

func TestFeed_CapAndUnreadCount(t *testing.T) {
	db, broker, cleanup := setupTestDb(t)
	defer cleanup()

	service := NewService(db, broker, MaxFeedSize)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		if _, err := service.Notify(ctx, "user1", fmt.Sprintf("n%d", i), "msg", ""); err != nil {
			t.Fatalf("Notify failed: %v", err)
		}
	}

	current, err := service.Feed(ctx, "user1")
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(current.Notifications) != MaxFeedSize {
		t.Fatalf("Expected %d notifications, got %d", MaxFeedSize, len(current.Notifications))
	}
	if current.Notifications[0].Title != "n24" {
		t.Errorf("Expected newest first, got %s", current.Notifications[0].Title)
	}
	if current.Unread != MaxFeedSize {
		t.Errorf("Expected %d unread, got %d", MaxFeedSize, current.Unread)
	}
}

func TestFeed_SizeIsClamped(t *testing.T) {
	db, broker, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	for i := 0; i < MaxFeedSize+5; i++ {
		if err := db.InsertNotification(ctx, &models.AppNotification{
			UserId: "user1", Title: fmt.Sprintf("n%d", i), Message: "msg",
		}); err != nil {
			t.Fatalf("InsertNotification failed: %v", err)
		}
	}

	for _, size := range []int{-1, 0, MaxFeedSize + 1, 100} {
		current, err := NewService(db, broker, size).Feed(ctx, "user1")
		if err != nil {
			t.Fatalf("Feed failed: %v", err)
		}
		if len(current.Notifications) != MaxFeedSize {
			t.Errorf("Feed size %d: expected %d notifications, got %d", size, MaxFeedSize, len(current.Notifications))
		}
	}

	current, err := NewService(db, broker, 5).Feed(ctx, "user1")
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(current.Notifications) != 5 {
		t.Errorf("Expected a smaller configured feed to be kept, got %d", len(current.Notifications))
	}
}

func TestMarkRead_Idempotent(t *testing.T) {
	db, broker, cleanup := setupTestDb(t)
	defer cleanup()

	service := NewService(db, broker, 0)
	ctx := context.Background()

	notif, err := service.Notify(ctx, "user1", "title", "msg", "")
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := service.MarkRead(ctx, "user1", notif.Id); err != nil {
			t.Fatalf("MarkRead call %d failed: %v", i+1, err)
		}
	}

	current, _ := service.Feed(ctx, "user1")
	if current.Unread != 0 || !current.Notifications[0].Read {
		t.Errorf("Expected notification to be read, got %+v", current)
	}
	if current.Unread != models.UnreadCount(current.Notifications) {
		t.Errorf("Unread count drifted from feed")
	}

	if err := service.MarkRead(ctx, "user2", notif.Id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for another user, got %v", err)
	}
}

func TestSubscribe_PushesNewNotifications(t *testing.T) {
	db, broker, cleanup := setupTestDb(t)
	defer cleanup()

	service := NewService(db, broker, 0)
	ctx := context.Background()

	feeds := make(chan models.NotificationFeed, 16)
	sub := service.Subscribe("user1", func(f models.NotificationFeed) {
		feeds <- f
	})
	defer sub.Cancel()

	select {
	case f := <-feeds:
		if len(f.Notifications) != 0 {
			t.Fatalf("Expected empty initial feed, got %d", len(f.Notifications))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for initial snapshot")
	}

	notif, err := service.Notify(ctx, "user1", "title", "msg", "")
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if err := service.MarkRead(ctx, "user1", notif.Id); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case f := <-feeds:
			if len(f.Notifications) == 1 && f.Unread == 0 {
				return
			}
		case <-deadline:
			t.Fatal("Timed out waiting for the read notification")
		}
	}
}
