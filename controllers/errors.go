package controllers

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"danceportal_go/services"
	"danceportal_go/services/billing"
	"danceportal_go/storage"
	"danceportal_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// respondError maps service errors onto HTTP statuses.
func respondError(c *fiber.Ctx, err error) error {
	var verr *utils.ValidationError
	var ferr *fiber.Error
	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "Validation failed",
			"fields": verr.Fields,
		})
	case errors.As(err, &ferr):
		return c.Status(ferr.Code).JSON(fiber.Map{"error": ferr.Message})
	case errors.Is(err, services.ErrArchiveNotConfigured):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, billing.ErrNotFound), errors.Is(err, storage.ErrObjectNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, billing.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, billing.ErrInvalidState):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, billing.ErrUpstreamProcessor):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":     err.Error(),
			"retryable": billing.IsRetryable(err),
		})
	}

	logrus.WithError(err).WithFields(logrus.Fields{
		"method": c.Method(),
		"path":   c.Path(),
	}).Error("Unhandled request error")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Internal server error",
	})
}

func invalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", billing.ErrValidation, fmt.Sprintf(format, args...))
}

// parseBody decodes the JSON body into out and runs its validate tags.
func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return invalidRequest("invalid request body")
	}
	return utils.ValidateStruct(out)
}

// paramID reads a positive numeric route parameter.
func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := utils.ParseUint(c.Params(name))
	if err != nil {
		return 0, invalidRequest("invalid %s", name)
	}
	return id, nil
}

func queryInt(c *fiber.Ctx, name string, def int) int {
	v := c.Query(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryDate(c *fiber.Ctx, name string) (*time.Time, error) {
	v := c.Query(name)
	if v == "" {
		return nil, nil
	}
	t, err := utils.ParseDate(v)
	if err != nil {
		return nil, invalidRequest("%s must be YYYY-MM-DD", name)
	}
	return &t, nil
}

// queryMonth reads ?month=YYYY-MM, defaulting to the month of now.
func queryMonth(c *fiber.Ctx, now time.Time) (time.Time, error) {
	v := c.Query("month")
	if v == "" {
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	}
	m, err := utils.ParseMonth(v)
	if err != nil {
		return time.Time{}, invalidRequest("month must be YYYY-MM")
	}
	return m, nil
}

// sendFile writes a rendered export as an attachment.
func sendFile(c *fiber.Ctx, fileName, contentType string, content []byte) error {
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, fileName))
	return c.Send(content)
}
