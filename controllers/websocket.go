package controllers

import (
	"context"

	"danceportal_go/middleware"
	"danceportal_go/models"
	"danceportal_go/services/websocket"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

// WebSocketController pushes ledger updates to signed-in families.
type WebSocketController struct {
	hub     *websocket.Hub
	users   middleware.UserFinder
	revoker middleware.Revoker
}

func NewWebSocketController(hub *websocket.Hub, users middleware.UserFinder, revoker middleware.Revoker) *WebSocketController {
	return &WebSocketController{hub: hub, users: users, revoker: revoker}
}

// Upgrade rejects plain HTTP requests before the websocket handshake.
func (wsc *WebSocketController) Upgrade(c *fiber.Ctx) error {
	if !fiberws.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
			"error": "Use the WebSocket endpoint: ws://<host>/ws?token=YOUR_JWT",
		})
	}
	return c.Next()
}

// WebSocketHandler validates the ?token= JWT and joins the family's channel.
func (wsc *WebSocketController) WebSocketHandler() fiber.Handler {
	return fiberws.New(func(c *fiberws.Conn) {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithField("panic", r).Error("WebSocket handler panic")
			}
		}()

		token := c.Query("token")
		if token == "" {
			logrus.Debug("WebSocket connection rejected: missing token")
			c.WriteMessage(fiberws.CloseMessage, fiberws.FormatCloseMessage(fiberws.ClosePolicyViolation, "Missing token"))
			c.Close()
			return
		}

		user, _, err := middleware.Authenticate(context.Background(), token, wsc.users, wsc.revoker)
		if err != nil {
			logrus.WithError(err).Debug("WebSocket connection rejected")
			c.WriteMessage(fiberws.CloseMessage, fiberws.FormatCloseMessage(fiberws.ClosePolicyViolation, "Invalid token"))
			c.Close()
			return
		}
		if user.Role != models.RoleFamily || user.FamilyID == nil {
			c.WriteMessage(fiberws.CloseMessage, fiberws.FormatCloseMessage(fiberws.ClosePolicyViolation, "Family account required"))
			c.Close()
			return
		}

		logrus.WithFields(logrus.Fields{
			"user_id":   user.ID,
			"family_id": *user.FamilyID,
		}).Info("WebSocket connection established")

		wsc.hub.ServeFiberWS(c, *user.FamilyID, user.ID)
	})
}

// GetWebSocketStats returns WebSocket connection statistics (admin only)
func (wsc *WebSocketController) GetWebSocketStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"connected_clients": wsc.hub.GetClientCount(),
		"status":            "active",
	})
}
