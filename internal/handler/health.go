package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler reports which optional integrations are configured
type HealthHandler struct {
	services map[string]bool
	ping     func(ctx context.Context) error
	now      func() time.Time
}

// NewHealthHandler takes a fixed map of integration flags and an optional
// Redis ping.
func NewHealthHandler(services map[string]bool, ping func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{services: services, ping: ping, now: time.Now}
}

// Root handles GET /
func (h *HealthHandler) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"timestamp": h.now().Unix(),
	})
}

// Health handles GET /health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	status := "ok"
	redisUp := true
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			status = "degraded"
			redisUp = false
		}
	}

	services := make(fiber.Map, len(h.services)+1)
	for name, ok := range h.services {
		services[name] = ok
	}
	services["redis"] = redisUp

	return c.JSON(fiber.Map{
		"status":   status,
		"services": services,
	})
}
