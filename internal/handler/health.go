package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler reports provider configuration and job store reachability
type HealthHandler struct {
	services map[string]bool
	ping     func(ctx context.Context) error
}

func NewHealthHandler(services map[string]bool, ping func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{services: services, ping: ping}
}

// Health handles GET /health
// @Summary      Health check
// @Tags         System
// @Produce      json
// @Success      200 {object} map[string]interface{}
// @Failure      503 {object} map[string]interface{}
// @Router       /health [get]
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	status := "ok"
	code := fiber.StatusOK
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}
	}

	return c.Status(code).JSON(fiber.Map{
		"status":   status,
		"services": h.services,
	})
}
