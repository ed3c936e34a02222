package controllers

import (
	"time"

	"danceportal_go/services"

	"github.com/gofiber/fiber/v2"
)

// HealthController exposes liveness and readiness endpoints.
type HealthController struct {
	service *services.HealthService
}

// NewHealthController constructs a controller backed by the provided service.
func NewHealthController(service *services.HealthService) *HealthController {
	if service == nil {
		service = services.NewHealthService("", "", "", services.HealthDeps{})
	}
	return &HealthController{service: service}
}

// Liveness answers as long as the process serves requests.
func (hc *HealthController) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// GetHealthStatus returns the aggregated dependency report.
func (hc *HealthController) GetHealthStatus(c *fiber.Ctx) error {
	report := hc.service.GetHealthReport(c.UserContext())
	statusCode := hc.service.HTTPStatusForOverall(report.Status)
	return c.Status(statusCode).JSON(report)
}
