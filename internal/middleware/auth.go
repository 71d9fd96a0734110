package middleware

import (
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/makeasinger/modelgen/internal/auth"
	"github.com/makeasinger/modelgen/pkg/response"
)

const (
	localUserID = "userId"
	localEmail  = "email"
	localName   = "name"
)

// AuthMiddleware authenticates bearer tokens on API and WebSocket routes
type AuthMiddleware struct {
	authn *auth.Authenticator
}

func NewAuthMiddleware(authn *auth.Authenticator) *AuthMiddleware {
	return &AuthMiddleware{authn: authn}
}

// Authenticate rejects requests without a valid token
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := tokenFrom(c)
		if !ok {
			return response.Unauthorized(c, "Missing or malformed authorization header")
		}
		return m.attach(c, token)
	}
}

// Optional lets anonymous requests through. A token that is present must
// still be valid.
func (m *AuthMiddleware) Optional() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := tokenFrom(c)
		if !ok {
			return c.Next()
		}
		return m.attach(c, token)
	}
}

func (m *AuthMiddleware) attach(c *fiber.Ctx, token string) error {
	id, err := m.authn.Authenticate(token)
	if err != nil {
		if errors.Is(err, auth.ErrNotConfigured) {
			return response.Unauthorized(c, "Authentication not configured")
		}
		return response.Unauthorized(c, "Invalid or expired token")
	}
	setIdentity(c, id)
	return c.Next()
}

// tokenFrom reads the bearer token. Browsers cannot set headers on a
// WebSocket handshake, so upgrades may pass it as ?token=.
func tokenFrom(c *fiber.Ctx) (string, bool) {
	if token, ok := auth.BearerToken(c.Get(fiber.HeaderAuthorization)); ok {
		return token, true
	}
	if websocket.IsWebSocketUpgrade(c) {
		if token := c.Query("token"); token != "" {
			return token, true
		}
	}
	return "", false
}

func setIdentity(c *fiber.Ctx, id *auth.Identity) {
	c.Locals(localUserID, id.UserID)
	c.Locals(localEmail, id.Email)
	c.Locals(localName, id.Name)
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals(localUserID).(string); ok {
		return userID
	}
	return ""
}

// GetUserEmail extracts user email from context
func GetUserEmail(c *fiber.Ctx) string {
	if email, ok := c.Locals(localEmail).(string); ok {
		return email
	}
	return ""
}
