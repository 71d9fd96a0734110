package handler

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/makeasinger/modelgen/internal/middleware"
	"github.com/makeasinger/modelgen/internal/model"
	"github.com/makeasinger/modelgen/internal/orchestrator"
	"github.com/makeasinger/modelgen/internal/service"
	"github.com/makeasinger/modelgen/pkg/response"
)

const localStreamOwner = "streamOwner"

// SessionBackend is the part of service.SessionService the session API uses
type SessionBackend interface {
	Start(ctx context.Context, ownerID string, req *model.StartSessionRequest) (*model.SessionResponse, error)
	Get(ctx context.Context, id, ownerID string) (*model.SessionResponse, error)
	Cancel(ctx context.Context, id, ownerID string) (*model.SessionResponse, error)
}

// SessionStreamer serves a live WebSocket feed for one session
type SessionStreamer interface {
	HandleConnection(c *websocket.Conn, sessionID string, snapshot func() []byte)
}

type SessionHandler struct {
	service   SessionBackend
	hub       SessionStreamer
	validator *validator.Validate
}

func NewSessionHandler(svc SessionBackend, hub SessionStreamer, v *validator.Validate) *SessionHandler {
	return &SessionHandler{
		service:   svc,
		hub:       hub,
		validator: v,
	}
}

// Start handles POST /api/sessions
func (h *SessionHandler) Start(c *fiber.Ctx) error {
	var req model.StartSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, firstValidationMessage(err), formatValidationErrors(err))
	}

	resp, err := h.service.Start(c.UserContext(), middleware.GetUserID(c), &req)
	if err != nil {
		var verr *orchestrator.ValidationError
		switch {
		case errors.As(err, &verr):
			return response.ValidationError(c, verr.Message, map[string]string{verr.Field: "required"})
		case errors.Is(err, orchestrator.ErrClosed):
			return response.Unavailable(c, "Server is shutting down")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, resp)
}

// Get handles GET /api/sessions/:id
func (h *SessionHandler) Get(c *fiber.Ctx) error {
	resp, err := h.service.Get(c.UserContext(), c.Params("id"), middleware.GetUserID(c))
	if err != nil {
		return sessionError(c, err)
	}
	return response.OK(c, resp)
}

// Cancel handles POST /api/sessions/:id/cancel
func (h *SessionHandler) Cancel(c *fiber.Ctx) error {
	resp, err := h.service.Cancel(c.UserContext(), c.Params("id"), middleware.GetUserID(c))
	if err != nil {
		return sessionError(c, err)
	}
	return response.OK(c, resp)
}

// Upgrade checks the caller owns the session before the WebSocket handshake.
func (h *SessionHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	ownerID := middleware.GetUserID(c)
	if _, err := h.service.Get(c.UserContext(), c.Params("id"), ownerID); err != nil {
		return sessionError(c, err)
	}
	c.Locals(localStreamOwner, ownerID)
	return c.Next()
}

// Stream handles GET /ws/sessions/:id after Upgrade. The first message is
// the session snapshot read once the connection is subscribed.
func (h *SessionHandler) Stream() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		sessionID := c.Params("id")
		ownerID, _ := c.Locals(localStreamOwner).(string)
		h.hub.HandleConnection(c, sessionID, func() []byte {
			return h.snapshotMessage(sessionID, ownerID)
		})
	})
}

// snapshotMessage encodes the current snapshot, or nil when the session is gone
func (h *SessionHandler) snapshotMessage(sessionID, ownerID string) []byte {
	resp, err := h.service.Get(context.Background(), sessionID, ownerID)
	if err != nil {
		return nil
	}
	msg, err := json.Marshal(model.WSSnapshotMessage{
		Type:      model.WSMessageTypeSnapshot,
		SessionID: resp.ID,
		Snapshot:  resp.SessionSnapshot,
	})
	if err != nil {
		return nil
	}
	return msg
}

func sessionError(c *fiber.Ctx, err error) error {
	if errors.Is(err, service.ErrSessionNotFound) {
		return response.NotFound(c, "Session not found")
	}
	return response.ServiceError(c, err.Error())
}
