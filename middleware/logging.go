package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"danceportal_go/database"
	"danceportal_go/models"
	"danceportal_go/services"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	requestIDHeader   = "X-Request-ID"
	activityLoggedKey = "activity_logged"
)

// RequestID tags every request with an id, reusing the caller's when present.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals("request_id", id)
		c.Set(requestIDHeader, id)
		return c.Next()
	}
}

// GetRequestID returns the id assigned by RequestID, or "".
func GetRequestID(c *fiber.Ctx) string {
	id, _ := c.Locals("request_id").(string)
	return id
}

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		// Process request
		err := c.Next()

		fields := logrus.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     c.Response().StatusCode(),
			"duration":   time.Since(start).String(),
			"ip":         c.IP(),
			"user_agent": c.Get("User-Agent"),
		}
		if id := GetRequestID(c); id != "" {
			fields["request_id"] = id
		}
		if claims, ok := c.Locals("claims").(*Claims); ok {
			fields["user_id"] = claims.UserID
		}
		logrus.WithFields(fields).Info("HTTP Request")

		return err
	}
}

// LogActivity records a user action. Logs are queued in Redis and flushed to
// the database by the scheduler; without Redis they go straight to the database.
func LogActivity(c *fiber.Ctx, action, resource string, resourceID uint, details interface{}) {
	c.Locals(activityLoggedKey, true)

	var userID uint
	if claims, err := GetCurrentClaims(c); err == nil {
		userID = claims.UserID
	}

	// fiber reuses request buffers and the log outlives the handler
	activityLog := models.ActivityLog{
		UserID:     userID,
		Action:     strings.Clone(action),
		Resource:   strings.Clone(resource),
		ResourceID: resourceID,
		IPAddress:  strings.Clone(c.IP()),
		UserAgent:  strings.Clone(c.Get("User-Agent")),
	}
	activityLog.CreatedAt = time.Now().UTC()

	requestDetails := map[string]interface{}{
		"details":        details,
		"integrity_hash": integrityHash(activityLog),
		"request_id":     GetRequestID(c),
		"method":         c.Method(),
		"path":           c.Path(),
		"status_code":    c.Response().StatusCode(),
		"forwarded_for":  c.Get("X-Forwarded-For"),
	}
	if raw, err := json.Marshal(requestDetails); err == nil {
		activityLog.Details = raw
	}

	go func(al models.ActivityLog) {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithField("panic", r).Error("panic recovered in LogActivity goroutine")
			}
		}()

		if err := queueActivityLog(context.Background(), al); err != nil {
			logrus.WithError(err).Debug("Activity log not queued, saving directly to database")
			if database.DB == nil {
				logrus.WithField("action", al.Action).Warn("No database for activity log")
				return
			}
			if dbErr := database.DB.Create(&al).Error; dbErr != nil {
				logrus.WithError(dbErr).Error("Failed to save activity log to database")
			}
		}
	}(activityLog)
}

// integrityHash fingerprints the fields of a log for tamper detection.
func integrityHash(log models.ActivityLog) string {
	data := fmt.Sprintf("%d:%s:%s:%d:%s:%s:%s",
		log.UserID,
		log.Action,
		log.Resource,
		log.ResourceID,
		log.IPAddress,
		log.UserAgent,
		log.CreatedAt.Format(time.RFC3339Nano),
	)
	return fmt.Sprintf("%x", sha256.Sum256([]byte(data)))
}

// queueActivityLog stores the log with a 24-hour TTL and adds its key to the flush queue.
func queueActivityLog(ctx context.Context, log models.ActivityLog) error {
	redisClient := database.GetRedisClient()
	if redisClient == nil {
		return fmt.Errorf("redis client is nil")
	}

	logData, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("failed to marshal log: %w", err)
	}

	cacheKey := fmt.Sprintf("log:%d:%s:%s", log.UserID, log.Action, uuid.NewString())
	if err := redisClient.Set(ctx, cacheKey, logData, 24*time.Hour).Err(); err != nil {
		return fmt.Errorf("failed to cache log: %w", err)
	}

	if err := redisClient.ZAdd(ctx, services.LogQueueKey, &redis.Z{
		Score:  float64(log.CreatedAt.Unix()),
		Member: cacheKey,
	}).Err(); err != nil {
		logrus.WithError(err).Error("Failed to add log to processing queue")
	}
	return nil
}

// LogActivityMiddleware automatically logs successful writes
func LogActivityMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Skip reads and auth endpoints
		if c.Method() == fiber.MethodGet || strings.Contains(c.Path(), "/auth/") {
			return c.Next()
		}

		err := c.Next()

		action := activityAction(c.Method())
		if action == "" {
			return err
		}

		// Handlers that logged with details already
		if logged, _ := c.Locals(activityLoggedKey).(bool); logged {
			return err
		}

		if c.Response().StatusCode() < 400 {
			LogActivity(c, action, resourceFromPath(c.Path()), resourceIDFromParams(c), nil)
		}
		return err
	}
}

func activityAction(method string) string {
	switch method {
	case fiber.MethodPost:
		return "CREATE"
	case fiber.MethodPut, fiber.MethodPatch:
		return "UPDATE"
	case fiber.MethodDelete:
		return "DELETE"
	}
	return ""
}

// resourceFromPath picks the resource out of /api/<area>/<resource>/... paths.
func resourceFromPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 3 && (parts[1] == "admin" || parts[1] == "portal") {
		return parts[2]
	}
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}

func resourceIDFromParams(c *fiber.Ctx) uint {
	id := c.Params("id")
	if id == "" {
		return 0
	}
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0
	}
	return uint(n)
}
