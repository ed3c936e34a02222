package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"danceportal_go/config"
	"danceportal_go/database/memory"
	"danceportal_go/database/seeders"
	"danceportal_go/middleware"
	"danceportal_go/services"
	"danceportal_go/services/billing"
	"danceportal_go/services/processor"
	"danceportal_go/services/websocket"
	"danceportal_go/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupApp(t *testing.T) *fiber.App {
	t.Helper()
	config.AppConfig = &config.Config{JWTSecret: "routes-secret", JWTExpiresIn: time.Hour}

	store := memory.NewStore()
	require.NoError(t, seeders.SeedAll(context.Background(), store))

	logger, _ := test.NewNullLogger()
	b := billing.NewService(billing.Options{
		Store:     store,
		Processor: processor.NewFake(),
		Logger:    logrus.NewEntry(logger),
	})
	exports := services.NewExportService(storage.NewMemoryStore(), "archives", nil)

	app := fiber.New()
	SetupRoutes(app, Dependencies{
		Store:   store,
		Revoker: middleware.NewMemoryRevoker(),
		Admin:   services.NewAdminService(b, exports),
		Portal:  services.NewPortalService(b, exports),
		Health:  services.NewHealthService("test", "0.0.0", "test", services.HealthDeps{StoreDriver: "memory"}),
		Hub:     websocket.NewHub(),
	})
	return app
}

func call(t *testing.T, app *fiber.App, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

func login(t *testing.T, app *fiber.App, username, password string) string {
	t.Helper()
	status, body := call(t, app, http.MethodPost, "/api/auth/login", "", fiber.Map{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, status, body)
	token, ok := body["token"].(string)
	require.True(t, ok)
	return token
}

func TestLogin(t *testing.T) {
	app := setupApp(t)

	tests := []struct {
		name     string
		body     interface{}
		expected int
	}{
		{"valid admin", fiber.Map{"username": "admin", "password": seeders.DefaultPassword}, http.StatusOK},
		{"wrong password", fiber.Map{"username": "admin", "password": "nope"}, http.StatusUnauthorized},
		{"unknown user", fiber.Map{"username": "ghost", "password": "nope"}, http.StatusUnauthorized},
		{"missing fields", fiber.Map{}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := call(t, app, http.MethodPost, "/api/auth/login", "", tt.body)
			assert.Equal(t, tt.expected, status)
		})
	}
}

func TestRoleSeparation(t *testing.T) {
	app := setupApp(t)
	adminToken := login(t, app, "admin", seeders.DefaultPassword)
	familyToken := login(t, app, "rivera", seeders.DefaultPassword)

	tests := []struct {
		name     string
		path     string
		token    string
		expected int
	}{
		{"anonymous admin", "/api/admin/families", "", http.StatusUnauthorized},
		{"family on admin", "/api/admin/families", familyToken, http.StatusForbidden},
		{"admin on admin", "/api/admin/families", adminToken, http.StatusOK},
		{"admin on portal", "/api/portal/balance", adminToken, http.StatusForbidden},
		{"family on portal", "/api/portal/balance", familyToken, http.StatusOK},
		{"liveness", "/health", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := call(t, app, http.MethodGet, tt.path, tt.token, nil)
			assert.Equal(t, tt.expected, status)
		})
	}
}

func TestChargeShowsInPortalBalance(t *testing.T) {
	app := setupApp(t)
	adminToken := login(t, app, "admin", seeders.DefaultPassword)

	status, created := call(t, app, http.MethodPost, "/api/admin/families", adminToken, fiber.Map{
		"name":  "Chen Family",
		"email": "chen@example.com",
	})
	require.Equal(t, http.StatusCreated, status, created)
	family := created["family"].(map[string]interface{})
	familyID := int(family["id"].(float64))
	tempPassword := created["temp_password"].(string)
	require.NotEmpty(t, tempPassword)

	path := "/api/admin/families/" + strconv.Itoa(familyID) + "/charges"
	status, body := call(t, app, http.MethodPost, path, adminToken, fiber.Map{
		"kind":         "fee",
		"amount_cents": 2500,
		"memo":         "Recital costume",
	})
	require.Equal(t, http.StatusCreated, status, body)

	familyToken := login(t, app, "chen@example.com", tempPassword)
	status, body = call(t, app, http.MethodGet, "/api/portal/balance", familyToken, nil)
	require.Equal(t, http.StatusOK, status)
	balance := body["balance"].(map[string]interface{})
	assert.Equal(t, float64(2500), balance["balance_cents"])
}

func TestErrorMapping(t *testing.T) {
	app := setupApp(t)
	adminToken := login(t, app, "admin", seeders.DefaultPassword)
	familyToken := login(t, app, "rivera", seeders.DefaultPassword)

	duplicate := fiber.Map{"name": "Dup", "email": "dup@example.com"}
	status, _ := call(t, app, http.MethodPost, "/api/admin/families", adminToken, duplicate)
	require.Equal(t, http.StatusCreated, status)

	tests := []struct {
		name     string
		method   string
		path     string
		token    string
		body     interface{}
		expected int
	}{
		{"duplicate username", http.MethodPost, "/api/admin/families", adminToken, duplicate, http.StatusConflict},
		{"unknown family", http.MethodGet, "/api/admin/families/9999", adminToken, nil, http.StatusNotFound},
		{"bad id", http.MethodGet, "/api/admin/families/abc", adminToken, nil, http.StatusBadRequest},
		{"bad charge kind", http.MethodPost, "/api/admin/families/1/charges", adminToken, fiber.Map{"kind": "gift", "amount_cents": 100}, http.StatusBadRequest},
		{"non-positive charge", http.MethodPost, "/api/admin/families/1/charges", adminToken, fiber.Map{"kind": "fee", "amount_cents": 0}, http.StatusBadRequest},
		{"foreign invoice", http.MethodGet, "/api/portal/invoices/9999", familyToken, nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := call(t, app, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.expected, status, body)
		})
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	app := setupApp(t)
	token := login(t, app, "rivera", seeders.DefaultPassword)

	status, _ := call(t, app, http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = call(t, app, http.MethodGet, "/api/portal/overview", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	app := setupApp(t)
	status, _ := call(t, app, http.MethodGet, "/ws", "", nil)
	assert.Equal(t, http.StatusUpgradeRequired, status)
}
