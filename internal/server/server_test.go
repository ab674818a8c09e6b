package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"p2p-coin-desk-go/internal/admin"
	"p2p-coin-desk-go/internal/api"
	"p2p-coin-desk-go/internal/audit"
	"p2p-coin-desk-go/internal/chat"
	"p2p-coin-desk-go/internal/database"
	"p2p-coin-desk-go/internal/feed"
	"p2p-coin-desk-go/internal/models"
	"p2p-coin-desk-go/internal/notify"
	"p2p-coin-desk-go/internal/store"
	"p2p-coin-desk-go/internal/workflow"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

const testSecret = "test-secret"

var (
	userIdent  = models.Identity{UserId: "user1", Email: "user1@example.com"}
	otherIdent = models.Identity{UserId: "user2", Email: "user2@example.com"}
	adminIdent = models.Identity{UserId: "admin-uid", Email: "ops@example.com"}
)

type stubUploader struct{}

func (stubUploader) Upload(_ context.Context, file *models.ProofFile) (string, error) {
	return "https://i.ibb.co/" + file.Name, nil
}

func setupTestServer(t *testing.T) (*Server, *database.Service, func()) {
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

	broker := feed.NewBroker()
	db.SetChangeNotifier(broker)

	if _, err := db.AddAdmin(ctx, adminIdent.Email, database.RoleSuper); err != nil {
		t.Fatalf("Failed to add admin: %v", err)
	}
	if _, err := db.UpsertCoin(ctx, &models.Coin{Name: "Tether", Symbol: "USDT", Price: decimal.RequireFromString("125"), Available: true}); err != nil {
		t.Fatalf("Failed to seed coin: %v", err)
	}

	gate := admin.NewGate(db)
	auditLog := audit.NewLog(db, 0)
	notifier := notify.NewService(db, broker, 0)
	deps := Deps{
		Desk: api.NewDeskService(api.Deps{
			Requests: db,
			Coins:    db,
			Gate:     gate,
			Uploader: stubUploader{},
			Audit:    auditLog,
			Settings: models.SiteSettings{Currency: "BDT"},
		}),
		Workflow: workflow.New(db, gate, stubUploader{}, auditLog, notifier),
		Chat:     chat.NewChannel(db, broker),
		Notify:   notifier,
		Audit:    auditLog,
		Gate:     gate,
	}

	srv, err := New(models.ServerConfig{Addr: ":0", AllowedOrigins: []string{"*"}}, models.AuthConfig{JWTSecret: testSecret}, deps)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	cleanup := func() {
		broker.Close()
		db.Close()
	}
	return srv, db, cleanup
}

func tokenFor(t *testing.T, who models.Identity) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   who.UserId,
		"email": who.Email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}

func do(t *testing.T, srv *Server, who *models.Identity, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if who != nil {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, *who))
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func multipartBody(t *testing.T, fields map[string]string, fileField string) ([]byte, string) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("Failed to write field: %v", err)
		}
	}
	if fileField != "" {
		fw, err := w.CreateFormFile(fileField, "proof.png")
		if err != nil {
			t.Fatalf("Failed to create form file: %v", err)
		}
		_, _ = fw.Write([]byte("png"))
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close multipart writer: %v", err)
	}
	return buf.Bytes(), w.FormDataContentType()
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func submitBuy(t *testing.T, srv *Server) map[string]any {
	body, ct := multipartBody(t, map[string]string{
		"coin_id":        "usdt",
		"amount":         "10",
		"payment_method": "bKash",
		"payment_number": "01700000000",
	}, "screenshot")
	rec := do(t, srv, &userIdent, http.MethodPost, "/v1/requests/buy", body, ct)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	return decodeJSON[map[string]any](t, rec)
}

func TestNew_RequiresSecret(t *testing.T) {
	if _, err := New(models.ServerConfig{}, models.AuthConfig{}, Deps{}); err == nil {
		t.Error("Expected error for empty JWT secret")
	}
}

func TestPublicRoutes(t *testing.T) {
	srv, _, cleanup := setupTestServer(t)
	defer cleanup()

	rec := do(t, srv, nil, http.MethodGet, "/healthz", nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected healthz 200, got %d", rec.Code)
	}

	rec = do(t, srv, nil, http.MethodGet, "/v1/coins", nil, "")
	coins := decodeJSON[[]models.Coin](t, rec)
	if len(coins) != 1 || coins[0].Symbol != "USDT" {
		t.Errorf("Unexpected coin listing: %+v", coins)
	}

	rec = do(t, srv, nil, http.MethodGet, "/v1/settings", nil, "")
	settings := decodeJSON[models.SiteSettings](t, rec)
	if settings.Currency != "BDT" {
		t.Errorf("Expected BDT currency, got %q", settings.Currency)
	}
}

func TestIdentity_RejectsMissingAndForgedTokens(t *testing.T) {
	srv, _, cleanup := setupTestServer(t)
	defer cleanup()

	rec := do(t, srv, nil, http.MethodGet, "/v1/requests", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", rec.Code)
	}
	if got := decodeJSON[errorResponse](t, rec); got.Code != "unauthenticated" {
		t.Errorf("Expected unauthenticated code, got %q", got.Code)
	}

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user1"})
	signed, _ := forged.SignedString([]byte("wrong-secret"))
	req := httptest.NewRequest(http.MethodGet, "/v1/requests", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for forged token, got %d", rec.Code)
	}
}

func TestBuyAndResolveFlow(t *testing.T) {
	srv, _, cleanup := setupTestServer(t)
	defer cleanup()

	created := submitBuy(t, srv)
	id, _ := created["id"].(string)
	if created["status"] != "pending" || created["total_price"] != "1250" {
		t.Errorf("Unexpected created request: %v", created)
	}

	rec := do(t, srv, &userIdent, http.MethodGet, "/v1/requests?type=buy", nil, "")
	if mine := decodeJSON[[]map[string]any](t, rec); len(mine) != 1 {
		t.Fatalf("Expected 1 own request, got %d", len(mine))
	}

	rec = do(t, srv, &otherIdent, http.MethodGet, "/v1/requests/"+id, nil, "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for stranger, got %d", rec.Code)
	}

	rec = do(t, srv, &userIdent, http.MethodGet, "/v1/admin/requests", nil, "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for non-admin listing, got %d", rec.Code)
	}

	body, ct := multipartBody(t, map[string]string{"decision": "approved"}, "proof")
	rec = do(t, srv, &adminIdent, http.MethodPost, "/v1/admin/requests/"+id+"/resolve", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on resolve, got %d: %s", rec.Code, rec.Body.String())
	}
	result := decodeJSON[map[string]any](t, rec)
	resolved, _ := result["request"].(map[string]any)
	if resolved["status"] != "approved" || resolved["admin_screenshot_url"] != "https://i.ibb.co/proof.png" {
		t.Errorf("Unexpected resolved request: %v", resolved)
	}

	// second resolution loses
	body, ct = multipartBody(t, map[string]string{"decision": "rejected"}, "")
	rec = do(t, srv, &adminIdent, http.MethodPost, "/v1/admin/requests/"+id+"/resolve", body, ct)
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 on terminal request, got %d", rec.Code)
	}

	rec = do(t, srv, &userIdent, http.MethodGet, "/v1/notifications", nil, "")
	notifs := decodeJSON[models.NotificationFeed](t, rec)
	if len(notifs.Notifications) != 1 || notifs.Unread != 1 {
		t.Fatalf("Expected one unread notification, got %+v", notifs)
	}

	rec = do(t, srv, &userIdent, http.MethodPost, "/v1/notifications/"+notifs.Notifications[0].Id+"/read", nil, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 on mark read, got %d", rec.Code)
	}

	rec = do(t, srv, &adminIdent, http.MethodGet, "/v1/admin/audit?limit=10", nil, "")
	entries := decodeJSON[[]models.AuditEntry](t, rec)
	if len(entries) < 2 || entries[0].ActionType != audit.ActionApproveBuy {
		t.Errorf("Expected approval on top of the audit log, got %+v", entries)
	}
}

func TestSubmit_InvalidAmount(t *testing.T) {
	srv, _, cleanup := setupTestServer(t)
	defer cleanup()

	body, ct := multipartBody(t, map[string]string{"coin_id": "usdt", "amount": "ten", "wallet_address": "bKash 017"}, "")
	rec := do(t, srv, &userIdent, http.MethodPost, "/v1/requests/sell", body, ct)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
	if got := decodeJSON[errorResponse](t, rec); got.Code != "validation_error" {
		t.Errorf("Expected validation_error, got %q", got.Code)
	}
}

func TestChatMessages_IsMine(t *testing.T) {
	srv, _, cleanup := setupTestServer(t)
	defer cleanup()

	id, _ := submitBuy(t, srv)["id"].(string)
	path := "/v1/requests/" + id + "/messages"

	rec := do(t, srv, &userIdent, http.MethodPost, path, []byte(`{"text":"sent the money"}`), echo.MIMEApplicationJSON)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(t, srv, &adminIdent, http.MethodPost, path, []byte(`{"text":"checking"}`), echo.MIMEApplicationJSON)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, &userIdent, http.MethodGet, path, nil, "")
	msgs := decodeJSON[[]messageView](t, rec)
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	if !msgs[0].IsMine || msgs[1].IsMine {
		t.Errorf("Requester view is wrong: %+v", msgs)
	}
	if !msgs[1].IsAdmin || msgs[1].SenderId != models.AdminSenderId {
		t.Errorf("Expected admin message from shared sender, got %+v", msgs[1])
	}

	rec = do(t, srv, &otherIdent, http.MethodPost, path, []byte(`{"text":"hi"}`), echo.MIMEApplicationJSON)
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for stranger, got %d", rec.Code)
	}
}

func TestStreamMessages(t *testing.T) {
	srv, _, cleanup := setupTestServer(t)
	defer cleanup()

	id, _ := submitBuy(t, srv)["id"].(string)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/requests/" + id + "/messages/stream?access_token=" + tokenFor(t, userIdent)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial stream: %v", err)
	}
	defer conn.Close()

	var snapshot []messageView
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("Failed to read initial snapshot: %v", err)
	}

	rec := do(t, srv, &adminIdent, http.MethodPost, "/v1/requests/"+id+"/messages", []byte(`{"text":"received"}`), echo.MIMEApplicationJSON)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}

	for len(snapshot) == 0 {
		if err := conn.ReadJSON(&snapshot); err != nil {
			t.Fatalf("Failed to read update: %v", err)
		}
	}
	if snapshot[0].Text != "received" || snapshot[0].IsMine {
		t.Errorf("Unexpected streamed message: %+v", snapshot[0])
	}
}

func TestQueryToken_OnlyOnStreamRoutes(t *testing.T) {
	srv, _, cleanup := setupTestServer(t)
	defer cleanup()

	for _, path := range []string{
		"/v1/requests?type=buy&access_token=" + tokenFor(t, userIdent),
		"/v1/notifications?access_token=" + tokenFor(t, userIdent),
		"/v1/admin/requests?type=buy&access_token=" + tokenFor(t, adminIdent),
	} {
		rec := do(t, srv, nil, http.MethodGet, path, nil, "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401 for %s, got %d", path, rec.Code)
		}
	}

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	base := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/notifications/stream"
	if _, resp, err := websocket.DefaultDialer.Dial(base, nil); err == nil {
		t.Errorf("Expected stream without token to be refused")
	} else if resp != nil && resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 for stream without token, got %d", resp.StatusCode)
	}

	conn, _, err := websocket.DefaultDialer.Dial(base+"?access_token="+tokenFor(t, userIdent), nil)
	if err != nil {
		t.Fatalf("Failed to dial stream with query token: %v", err)
	}
	defer conn.Close()

	var feed json.RawMessage
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&feed); err != nil {
		t.Fatalf("Failed to read initial feed: %v", err)
	}
}

func TestResolutionResponse_Degraded(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)

	result := &models.ResolutionResult{Success: true, Committed: true, NotificationPending: true}
	err := fmt.Errorf("%w: %w", store.ErrDegraded, errors.Join(fmt.Errorf("notify: %w", store.ErrUpstream)))
	if err := resolutionResponse(c, result, err); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Errorf("Expected 202, got %d", rec.Code)
	}
	got := decodeJSON[models.ResolutionResult](t, rec)
	if !got.NotificationPending || got.Error == "" {
		t.Errorf("Expected pending notification with error text, got %+v", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: bad", store.ErrValidation), http.StatusBadRequest},
		{store.ErrUnauthorized, http.StatusForbidden},
		{fmt.Errorf("get: %w", store.ErrNotFound), http.StatusNotFound},
		{store.ErrInvalidTransition, http.StatusConflict},
		{store.ErrUpstream, http.StatusBadGateway},
		{echo.NewHTTPError(http.StatusUnauthorized, "nope"), http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if status, _ := classify(tt.err); status != tt.status {
			t.Errorf("classify(%v) = %d, want %d", tt.err, status, tt.status)
		}
	}
}
