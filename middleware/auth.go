package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"danceportal_go/config"
	"danceportal_go/models"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Claims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	FamilyID *uint  `json:"family_id,omitempty"`
	jwt.RegisteredClaims
}

// UserFinder loads the user named by a token.
type UserFinder interface {
	GetUser(ctx context.Context, id uint) (*models.User, error)
}

// Revoker remembers logged-out tokens until they would have expired anyway.
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// GenerateToken creates a new JWT token for a user
func GenerateToken(user *models.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		FamilyID: user.FamilyID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(config.AppConfig.JWTExpiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.AppConfig.JWTSecret))
}

func parseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(config.AppConfig.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// Authentication failures returned by Authenticate.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token has been revoked")
	ErrUserInactive = errors.New("user not found or inactive")
)

// Authenticate resolves a raw token to its active user. The family claim is
// refreshed from the stored user.
func Authenticate(ctx context.Context, tokenString string, users UserFinder, revoker Revoker) (*models.User, *Claims, error) {
	claims, err := parseToken(tokenString)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}

	if revoker != nil && claims.ID != "" {
		revoked, err := revoker.IsRevoked(ctx, claims.ID)
		if err != nil {
			logrus.WithError(err).Warn("Token blacklist lookup failed")
		}
		if revoked {
			return nil, nil, ErrTokenRevoked
		}
	}

	// Verify user still exists and is active
	user, err := users.GetUser(ctx, claims.UserID)
	if err != nil || user.Status != models.UserActive {
		return nil, nil, ErrUserInactive
	}
	claims.FamilyID = user.FamilyID
	return user, claims, nil
}

// JWTMiddleware validates JWT tokens
func JWTMiddleware(users UserFinder, revoker Revoker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Get token from Authorization header
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authorization header",
			})
		}

		// Extract token from "Bearer <token>"
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header format",
			})
		}

		user, claims, err := Authenticate(c.UserContext(), tokenString, users, revoker)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		// Store user info in context
		c.Locals("user", user)
		c.Locals("claims", claims)

		return c.Next()
	}
}

// Logout revokes the caller's token for the rest of its lifetime.
func Logout(c *fiber.Ctx, revoker Revoker) error {
	claims, err := GetCurrentClaims(c)
	if err != nil {
		return err
	}
	if revoker == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	return revoker.Revoke(c.UserContext(), claims.ID, ttl)
}

// RequireRole middleware checks if user has required role
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := c.Locals("claims").(*Claims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing user claims",
			})
		}

		// Check if user role is in allowed roles
		for _, role := range roles {
			if claims.Role == role {
				return c.Next()
			}
		}

		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Insufficient permissions",
		})
	}
}

// RequireAdmin middleware allows only staff
func RequireAdmin() fiber.Handler {
	return RequireRole(models.RoleAdmin)
}

// RequireFamily allows family users that are linked to a family.
func RequireFamily() fiber.Handler {
	role := RequireRole(models.RoleFamily)
	return func(c *fiber.Ctx) error {
		claims, ok := c.Locals("claims").(*Claims)
		if ok && claims.Role == models.RoleFamily && (claims.FamilyID == nil || *claims.FamilyID == 0) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Account is not linked to a family",
			})
		}
		return role(c)
	}
}

// GetCurrentUser returns the current authenticated user
func GetCurrentUser(c *fiber.Ctx) (*models.User, error) {
	user, ok := c.Locals("user").(*models.User)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "User not found in context")
	}
	return user, nil
}

// GetCurrentClaims returns the current JWT claims
func GetCurrentClaims(c *fiber.Ctx) (*Claims, error) {
	claims, ok := c.Locals("claims").(*Claims)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Claims not found in context")
	}
	return claims, nil
}

const blacklistPrefix = "jwt:blacklist:"

// RedisRevoker keeps revoked token ids in Redis with a TTL.
type RedisRevoker struct {
	client *redis.Client
}

func NewRedisRevoker(client *redis.Client) *RedisRevoker {
	return &RedisRevoker{client: client}
}

func (r *RedisRevoker) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	return r.client.Set(ctx, blacklistPrefix+tokenID, "1", ttl).Err()
}

func (r *RedisRevoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, blacklistPrefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryRevoker is the single-instance fallback when Redis is unavailable.
type MemoryRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

func NewMemoryRevoker() *MemoryRevoker {
	return &MemoryRevoker{revoked: map[string]time.Time{}, now: time.Now}
}

func (m *MemoryRevoker) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, until := range m.revoked {
		if !now.Before(until) {
			delete(m.revoked, id)
		}
	}
	m.revoked[tokenID] = now.Add(ttl)
	return nil
}

func (m *MemoryRevoker) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.revoked[tokenID]
	return ok && m.now().Before(until), nil
}

// NewRevoker returns a Redis-backed revoker when client is set.
func NewRevoker(client *redis.Client) Revoker {
	if client != nil {
		return NewRedisRevoker(client)
	}
	return NewMemoryRevoker()
}
