package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/makeasinger/modelgen/internal/auth"
	"github.com/makeasinger/modelgen/pkg/response"
)

// GatewayAuthMiddleware reads user identity from X-User-* headers
// set by Traefik ForwardAuth. With optional set, requests without
// identity headers pass through anonymously.
func GatewayAuthMiddleware(optional bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-Id")
		if userID == "" {
			if optional {
				return c.Next()
			}
			return response.Unauthorized(c, "Missing user identity headers")
		}

		setIdentity(c, &auth.Identity{
			UserID: userID,
			Email:  c.Get("X-User-Email"),
			Name:   c.Get("X-User-Name"),
		})
		return c.Next()
	}
}
