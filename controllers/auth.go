package controllers

import (
	"context"

	"danceportal_go/middleware"
	"danceportal_go/models"
	"danceportal_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// UserStore is the part of the store the auth endpoints need.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

type AuthController struct {
	users   UserStore
	revoker middleware.Revoker
}

func NewAuthController(users UserStore, revoker middleware.Revoker) *AuthController {
	return &AuthController{users: users, revoker: revoker}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login authenticates a user and returns a JWT token
func (ac *AuthController) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	user, err := ac.users.GetUserByUsername(c.UserContext(), req.Username)
	if err != nil || user.Status != models.UserActive {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	if err := utils.CheckPassword(req.Password, user.Password); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	token, err := middleware.GenerateToken(user)
	if err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("Failed to generate token")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate token",
		})
	}

	middleware.LogActivity(c, "LOGIN", "auth", user.ID, fiber.Map{
		"username": user.Username,
		"role":     user.Role,
	})

	return c.JSON(fiber.Map{
		"message": "Login successful",
		"token":   token,
		"user":    utils.ToUserShort(user),
	})
}

// Logout revokes the current token for the rest of its lifetime
func (ac *AuthController) Logout(c *fiber.Ctx) error {
	if err := middleware.Logout(c, ac.revoker); err != nil {
		// Logout still succeeds client-side; the token simply lives until expiry.
		logrus.WithError(err).Warn("Failed to revoke token")
	}

	if user, err := middleware.GetCurrentUser(c); err == nil {
		middleware.LogActivity(c, "LOGOUT", "auth", user.ID, fiber.Map{"username": user.Username})
	}

	return c.JSON(fiber.Map{"message": "Logged out successfully"})
}

// GetProfile returns the signed-in user
func (ac *AuthController) GetProfile(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"user": utils.ToUserShort(user)})
}
