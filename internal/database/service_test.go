package database

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"p2p-coin-desk-go/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

type recordingNotifier struct {
	mu     sync.Mutex
	topics []string
}

func (r *recordingNotifier) Publish(_ context.Context, topic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	return nil
}

func (r *recordingNotifier) count(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.topics {
		if t == topic {
			n++
		}
	}
	return n
}

func setupTestDb(t *testing.T) (*Service, *recordingNotifier, func()) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// every :memory: connection is its own database
	db.SetMaxOpenConns(1)

	service := newService(db)
	notifier := &recordingNotifier{}
	service.SetChangeNotifier(notifier)

	if err := service.InitSchema(context.Background()); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	cleanup := func() {
		db.Close()
	}

	return service, notifier, cleanup
}

func newBuyRequest(userId string, createdAt time.Time) *models.Request {
	price := decimal.RequireFromString("64230.50")
	amount := decimal.RequireFromString("0.01")
	return &models.Request{
		UserId:             userId,
		UserEmail:          userId + "@example.com",
		CoinId:             "btc",
		CoinSymbol:         "BTC",
		CoinPriceAtRequest: price,
		Amount:             amount,
		TotalPrice:         amount.Mul(price),
		UserScreenshotURL:  "https://i.ibb.co/proof.png",
		Status:             models.StatusPending,
		Settlement:         models.BuySettlement{PaymentMethod: "bKash", PaymentNumber: "01700000000"},
		CreatedAt:          createdAt,
	}
}

func newSellRequest(userId string, createdAt time.Time) *models.Request {
	price := decimal.RequireFromString("3100")
	amount := decimal.RequireFromString("2")
	return &models.Request{
		UserId:             userId,
		UserEmail:          userId + "@example.com",
		CoinId:             "eth",
		CoinSymbol:         "ETH",
		CoinPriceAtRequest: price,
		Amount:             amount,
		TotalPrice:         amount.Mul(price),
		Status:             models.StatusPending,
		Settlement:         models.SellSettlement{WalletAddress: "01811111111"},
		CreatedAt:          createdAt,
	}
}
