package api

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"p2p-coin-desk-go/internal/admin"
	"p2p-coin-desk-go/internal/audit"
	"p2p-coin-desk-go/internal/database"
	"p2p-coin-desk-go/internal/models"
	"p2p-coin-desk-go/internal/store"

	"github.com/shopspring/decimal"
)

type fakeUploader struct {
	err   error
	calls int
}

func (f *fakeUploader) Upload(_ context.Context, file *models.ProofFile) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "https://i.ibb.co/" + file.Name, nil
}

var (
	owner    = models.Identity{UserId: "user1", Email: "user1@example.com"}
	stranger = models.Identity{UserId: "user2", Email: "user2@example.com"}
	operator = models.Identity{UserId: "admin-uid", Email: "ops@example.com"}
)

func setupTestDesk(t *testing.T, settings models.SiteSettings) (*DeskService, *database.Service, *fakeUploader, *audit.Log, func()) {
	ctx := context.Background()
	db, err := database.NewService(ctx, models.DatabaseConfig{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	if _, err := db.AddAdmin(ctx, operator.Email, database.RoleEditor); err != nil {
		t.Fatalf("Failed to add admin: %v", err)
	}
	seed := []models.Coin{
		{Name: "Bitcoin", Symbol: "BTC", Price: decimal.RequireFromString("64230.50"), Available: true},
		{Name: "Ethereum", Symbol: "ETH", Price: decimal.RequireFromString("3100"), Available: true},
		{Name: "Dogecoin", Symbol: "DOGE", Price: decimal.RequireFromString("0.12"), Available: false},
	}
	for i := range seed {
		if _, err := db.UpsertCoin(ctx, &seed[i]); err != nil {
			t.Fatalf("Failed to seed coin: %v", err)
		}
	}

	uploader := &fakeUploader{}
	auditLog := audit.NewLog(db, 0)
	desk := NewDeskService(Deps{
		Requests: db,
		Coins:    db,
		Gate:     admin.NewGate(db),
		Uploader: uploader,
		Audit:    auditLog,
		Settings: settings,
	})

	cleanup := func() {
		db.Close()
	}
	return desk, db, uploader, auditLog, cleanup
}

func defaultSettings() models.SiteSettings {
	return models.SiteSettings{
		Currency:       "BDT",
		PaymentMethods: []string{"bKash", "Nagad", "Rocket", "Bank Transfer"},
	}
}

func buyParams() models.SubmitParams {
	return models.SubmitParams{
		Type:          models.RequestTypeBuy,
		CoinId:        "btc",
		Amount:        decimal.RequireFromString("0.01"),
		PaymentMethod: "bKash",
		PaymentNumber: "01700000000",
		Proof:         &models.ProofFile{Name: "proof.png", Body: strings.NewReader("png")},
	}
}

func TestSubmit_BuySnapshotsPrice(t *testing.T) {
	desk, db, uploader, auditLog, cleanup := setupTestDesk(t, defaultSettings())
	defer cleanup()

	ctx := context.Background()
	req, err := desk.Submit(ctx, owner, buyParams())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if !req.TotalPrice.Equal(decimal.RequireFromString("642.305")) {
		t.Errorf("Expected total 642.305, got %s", req.TotalPrice)
	}
	if req.UserScreenshotURL != "https://i.ibb.co/proof.png" || uploader.calls != 1 {
		t.Errorf("Expected uploaded proof, got %q", req.UserScreenshotURL)
	}

	// a later catalog change must not touch the stored request
	if _, err := desk.UpsertCoin(ctx, operator, models.Coin{Name: "Bitcoin", Symbol: "BTC", Price: decimal.RequireFromString("70000"), Available: true}); err != nil {
		t.Fatalf("UpsertCoin failed: %v", err)
	}
	stored, err := db.GetRequest(ctx, req.Id)
	if err != nil {
		t.Fatalf("GetRequest failed: %v", err)
	}
	if !stored.CoinPriceAtRequest.Equal(decimal.RequireFromString("64230.50")) || !stored.TotalPrice.Equal(decimal.RequireFromString("642.305")) {
		t.Errorf("Snapshot changed: price %s total %s", stored.CoinPriceAtRequest, stored.TotalPrice)
	}

	entries, _ := auditLog.Recent(ctx, 10)
	found := false
	for _, e := range entries {
		if e.ActionType == audit.ActionCreateBuy && e.Detail == "Requested 0.01 BTC" && e.ActorEmail == owner.Email {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected CREATE_BUY audit entry, got %+v", entries)
	}
}

func TestSubmit_SellWithoutProof(t *testing.T) {
	desk, _, uploader, auditLog, cleanup := setupTestDesk(t, defaultSettings())
	defer cleanup()

	ctx := context.Background()
	req, err := desk.Submit(ctx, owner, models.SubmitParams{
		Type:          models.RequestTypeSell,
		CoinId:        "eth",
		Amount:        decimal.RequireFromString("2"),
		WalletAddress: " 01811111111 ",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	sell, ok := req.Sell()
	if !ok || sell.WalletAddress != "01811111111" {
		t.Errorf("Unexpected settlement: %+v", req.Settlement)
	}
	if uploader.calls != 0 {
		t.Errorf("No upload expected without proof")
	}

	entries, _ := auditLog.Recent(ctx, 10)
	if len(entries) != 1 || entries[0].ActionType != audit.ActionCreateSell || entries[0].Detail != "Selling 2 ETH" {
		t.Errorf("Unexpected audit entries: %+v", entries)
	}
}

func TestSubmit_Validation(t *testing.T) {
	settings := defaultSettings()
	settings.MinimumSell = decimal.NewFromInt(1000)
	desk, db, uploader, _, cleanup := setupTestDesk(t, settings)
	defer cleanup()

	noProof := buyParams()
	noProof.Proof = nil
	badMethod := buyParams()
	badMethod.PaymentMethod = "PayPal"
	noNumber := buyParams()
	noNumber.PaymentNumber = " "
	zero := buyParams()
	zero.Amount = decimal.Zero
	negative := buyParams()
	negative.Amount = decimal.NewFromInt(-1)
	unknownCoin := buyParams()
	unknownCoin.CoinId = "xrp"
	unavailable := buyParams()
	unavailable.CoinId = "doge"
	badType := buyParams()
	badType.Type = "swap"
	noWallet := models.SubmitParams{Type: models.RequestTypeSell, CoinId: "eth", Amount: decimal.NewFromInt(1)}
	belowMinimum := models.SubmitParams{Type: models.RequestTypeSell, CoinId: "eth", Amount: decimal.RequireFromString("0.1"), WalletAddress: "018"}

	tests := []struct {
		name   string
		who    models.Identity
		params models.SubmitParams
	}{
		{"buy without proof", owner, noProof},
		{"unsupported payment method", owner, badMethod},
		{"missing payment number", owner, noNumber},
		{"zero amount", owner, zero},
		{"negative amount", owner, negative},
		{"unknown coin", owner, unknownCoin},
		{"unavailable coin", owner, unavailable},
		{"unknown type", owner, badType},
		{"sell without wallet", owner, noWallet},
		{"below minimum", owner, belowMinimum},
		{"anonymous caller", models.Identity{}, buyParams()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := desk.Submit(context.Background(), tt.who, tt.params); !errors.Is(err, store.ErrValidation) {
				t.Errorf("Expected ErrValidation, got %v", err)
			}
		})
	}

	if uploader.calls != 0 {
		t.Errorf("Invalid submissions must not upload, got %d uploads", uploader.calls)
	}
	all, _ := db.ListAllRequests(context.Background(), models.RequestTypeBuy)
	if len(all) != 0 {
		t.Errorf("Invalid submissions must not persist, got %d", len(all))
	}
}

func TestSubmit_UploadFailureLeavesNothing(t *testing.T) {
	desk, db, uploader, _, cleanup := setupTestDesk(t, defaultSettings())
	defer cleanup()

	uploader.err = errors.New("connection reset")
	_, err := desk.Submit(context.Background(), owner, buyParams())
	if !errors.Is(err, store.ErrUpstream) {
		t.Fatalf("Expected ErrUpstream, got %v", err)
	}

	mine, _ := db.ListRequestsByUser(context.Background(), owner.UserId, models.RequestTypeBuy)
	if len(mine) != 0 {
		t.Errorf("Expected no stored request, got %d", len(mine))
	}
}

func TestListAll_MergesAndFilters(t *testing.T) {
	desk, _, _, _, cleanup := setupTestDesk(t, defaultSettings())
	defer cleanup()

	ctx := context.Background()
	if _, err := desk.Submit(ctx, owner, buyParams()); err != nil {
		t.Fatalf("Submit buy failed: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, err := desk.Submit(ctx, stranger, models.SubmitParams{Type: models.RequestTypeSell, CoinId: "eth", Amount: decimal.NewFromInt(1), WalletAddress: "018"}); err != nil {
		t.Fatalf("Submit sell failed: %v", err)
	}

	all, err := desk.ListAll(ctx, operator, ListFilter{})
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 requests, got %d", len(all))
	}
	if all[0].Type() != models.RequestTypeSell {
		t.Errorf("Expected newest (sell) first, got %s", all[0].Type())
	}

	buys, _ := desk.ListAll(ctx, operator, ListFilter{Type: models.RequestTypeBuy})
	if len(buys) != 1 {
		t.Errorf("Expected 1 buy, got %d", len(buys))
	}

	approved, _ := desk.ListAll(ctx, operator, ListFilter{Status: models.StatusApproved})
	if len(approved) != 0 {
		t.Errorf("Expected no approved requests, got %d", len(approved))
	}

	if _, err := desk.ListAll(ctx, owner, ListFilter{}); !errors.Is(err, store.ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized, got %v", err)
	}

	mine, err := desk.ListMine(ctx, owner, models.RequestTypeBuy)
	if err != nil {
		t.Fatalf("ListMine failed: %v", err)
	}
	if len(mine) != 1 || mine[0].UserId != owner.UserId {
		t.Errorf("Unexpected own listing: %+v", mine)
	}
}

func TestAccess(t *testing.T) {
	desk, _, _, _, cleanup := setupTestDesk(t, defaultSettings())
	defer cleanup()

	ctx := context.Background()
	req, err := desk.Submit(ctx, owner, buyParams())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	tests := []struct {
		name      string
		who       models.Identity
		adminView bool
		expected  error
	}{
		{"owner", owner, false, nil},
		{"admin", operator, true, nil},
		{"stranger", stranger, false, store.ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, adminView, err := desk.Access(ctx, tt.who, req.Id)
			if !errors.Is(err, tt.expected) {
				t.Fatalf("Expected %v, got %v", tt.expected, err)
			}
			if err == nil && adminView != tt.adminView {
				t.Errorf("Expected adminView %v, got %v", tt.adminView, adminView)
			}
		})
	}

	if _, err := desk.GetRequest(ctx, owner, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestUpsertCoin_RequiresAdmin(t *testing.T) {
	desk, _, _, auditLog, cleanup := setupTestDesk(t, defaultSettings())
	defer cleanup()

	ctx := context.Background()
	coin := models.Coin{Name: "Tether", Symbol: "USDT", Price: decimal.RequireFromString("122.5"), Available: true}

	if _, err := desk.UpsertCoin(ctx, owner, coin); !errors.Is(err, store.ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized, got %v", err)
	}

	saved, err := desk.UpsertCoin(ctx, operator, coin)
	if err != nil {
		t.Fatalf("UpsertCoin failed: %v", err)
	}
	if saved.Id != "usdt" {
		t.Errorf("Expected id usdt, got %s", saved.Id)
	}

	entries, _ := auditLog.Recent(ctx, 10)
	if len(entries) != 1 || entries[0].ActionType != audit.ActionUpsertCoin {
		t.Errorf("Expected UPSERT_COIN entry, got %+v", entries)
	}

	if _, err := desk.UpsertCoin(ctx, operator, models.Coin{Symbol: "BAD"}); !errors.Is(err, store.ErrValidation) {
		t.Errorf("Expected ErrValidation for zero price, got %v", err)
	}
}
