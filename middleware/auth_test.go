package middleware

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"danceportal_go/config"
	"danceportal_go/database/memory"
	"danceportal_go/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAuth(t *testing.T) (*memory.Store, *MemoryRevoker, *fiber.App) {
	t.Helper()
	config.AppConfig = &config.Config{JWTSecret: "test-secret", JWTExpiresIn: time.Hour}

	store := memory.NewStore()
	revoker := NewMemoryRevoker()

	app := fiber.New()
	app.Use(JWTMiddleware(store, revoker))
	app.Get("/me", func(c *fiber.Ctx) error {
		user, err := GetCurrentUser(c)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"id": user.ID})
	})
	app.Get("/admin", RequireAdmin(), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/portal", RequireFamily(), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Post("/logout", func(c *fiber.Ctx) error {
		if err := Logout(c, revoker); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
	return store, revoker, app
}

func createUser(t *testing.T, store *memory.Store, username, role string, familyID *uint) *models.User {
	t.Helper()
	u := &models.User{Username: username, Password: "x", Role: role, FamilyID: familyID, Status: models.UserActive}
	require.NoError(t, store.CreateUser(context.Background(), u))
	return u
}

func get(t *testing.T, app *fiber.App, method, path, token string) int {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestJWTMiddleware(t *testing.T) {
	store, _, app := setupAuth(t)
	famID := uint(7)
	user := createUser(t, store, "parent", models.RoleFamily, &famID)
	token, err := GenerateToken(user)
	require.NoError(t, err)

	inactive := &models.User{Username: "gone", Password: "x", Role: models.RoleFamily, FamilyID: &famID, Status: "inactive"}
	require.NoError(t, store.CreateUser(context.Background(), inactive))
	inactiveToken, err := GenerateToken(inactive)
	require.NoError(t, err)
	ghost := &models.User{BaseModel: models.BaseModel{ID: 999}, Username: "ghost", Role: models.RoleFamily}
	ghostToken, err := GenerateToken(ghost)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", fiber.StatusUnauthorized},
		{"not bearer", "Token abc", fiber.StatusUnauthorized},
		{"garbage token", "Bearer abc.def.ghi", fiber.StatusUnauthorized},
		{"unknown user", "Bearer " + ghostToken, fiber.StatusUnauthorized},
		{"valid", "Bearer " + token, fiber.StatusOK},
		{"inactive user", "Bearer " + inactiveToken, fiber.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestJWTMiddlewareRejectsWrongSecret(t *testing.T) {
	store, _, app := setupAuth(t)
	user := createUser(t, store, "admin", models.RoleAdmin, nil)

	claims := &Claims{UserID: user.ID, Role: user.Role, RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "GET", "/me", forged))
}

func TestJWTMiddlewareRejectsExpiredToken(t *testing.T) {
	store, _, app := setupAuth(t)
	user := createUser(t, store, "admin", models.RoleAdmin, nil)
	config.AppConfig.JWTExpiresIn = -time.Minute

	token, err := GenerateToken(user)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "GET", "/me", token))
}

func TestRoleGuards(t *testing.T) {
	store, _, app := setupAuth(t)
	famID := uint(3)
	admin := createUser(t, store, "admin", models.RoleAdmin, nil)
	parent := createUser(t, store, "parent", models.RoleFamily, &famID)
	orphan := createUser(t, store, "orphan", models.RoleFamily, nil)

	tokens := map[string]string{}
	for _, u := range []*models.User{admin, parent, orphan} {
		tok, err := GenerateToken(u)
		require.NoError(t, err)
		tokens[u.Username] = tok
	}

	tests := []struct {
		user string
		path string
		want int
	}{
		{"admin", "/admin", fiber.StatusOK},
		{"parent", "/admin", fiber.StatusForbidden},
		{"admin", "/portal", fiber.StatusForbidden},
		{"parent", "/portal", fiber.StatusOK},
		{"orphan", "/portal", fiber.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.user+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, get(t, app, "GET", tt.path, tokens[tt.user]))
		})
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	store, revoker, app := setupAuth(t)
	user := createUser(t, store, "admin", models.RoleAdmin, nil)
	token, err := GenerateToken(user)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, get(t, app, "GET", "/me", token))
	assert.Equal(t, fiber.StatusNoContent, get(t, app, "POST", "/logout", token))
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "GET", "/me", token))
	assert.Len(t, revoker.revoked, 1)

	other, err := GenerateToken(user)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, get(t, app, "GET", "/me", other))
}

func TestMemoryRevokerExpires(t *testing.T) {
	r := NewMemoryRevoker()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, r.Revoke(ctx, "a", time.Minute))
	revoked, err := r.IsRevoked(ctx, "a")
	require.NoError(t, err)
	assert.True(t, revoked)

	now = now.Add(2 * time.Minute)
	revoked, err = r.IsRevoked(ctx, "a")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, r.Revoke(ctx, "b", time.Minute))
	assert.NotContains(t, r.revoked, "a")
}
