package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/makeasinger/modelgen/internal/model"
	"github.com/makeasinger/modelgen/internal/orchestrator"
	"github.com/makeasinger/modelgen/internal/service"
	"github.com/makeasinger/modelgen/pkg/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	startErr  error
	owner     string
	sessions  map[string]*model.SessionResponse
	lastStart *model.StartSessionRequest
}

func (f *fakeSessions) Start(_ context.Context, ownerID string, req *model.StartSessionRequest) (*model.SessionResponse, error) {
	f.lastStart = req
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &model.SessionResponse{SessionSnapshot: model.SessionSnapshot{ID: "s1", Phase: model.PhasePollingPreview}}, nil
}

func (f *fakeSessions) Get(_ context.Context, id, ownerID string) (*model.SessionResponse, error) {
	resp, ok := f.sessions[id]
	if !ok || ownerID != f.owner {
		return nil, service.ErrSessionNotFound
	}
	return resp, nil
}

func (f *fakeSessions) Cancel(ctx context.Context, id, ownerID string) (*model.SessionResponse, error) {
	resp, err := f.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	out := *resp
	out.Phase = model.PhaseIdle
	return &out, nil
}

type nopStreamer struct{}

func (nopStreamer) HandleConnection(*websocket.Conn, string, func() []byte) {}

func newSessionApp(backend SessionBackend, userID string) *fiber.App {
	h := NewSessionHandler(backend, nopStreamer{}, validator.New())
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("userId", userID)
		return c.Next()
	})
	api := app.Group("/api/sessions")
	api.Post("/", h.Start)
	api.Get("/:id", h.Get)
	api.Post("/:id/cancel", h.Cancel)
	app.Get("/ws/sessions/:id", h.Upgrade, h.Stream())
	return app
}

func sessionCall(t *testing.T, app *fiber.App, method, path, body string, out interface{}) int {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestSessionHandler_Start(t *testing.T) {
	backend := &fakeSessions{}
	app := newSessionApp(backend, "user-1")

	var resp model.SessionResponse
	status := sessionCall(t, app, fiber.MethodPost, "/api/sessions/", `{"prompt":"a castle","locale":"ko-KR"}`, &resp)
	assert.Equal(t, fiber.StatusAccepted, status)
	assert.Equal(t, "s1", resp.ID)
	assert.Equal(t, model.PhasePollingPreview, resp.Phase)
	assert.Equal(t, "ko-KR", backend.lastStart.Locale)
}

func TestSessionHandler_StartValidation(t *testing.T) {
	app := newSessionApp(&fakeSessions{}, "user-1")

	var errResp response.ErrorResponse
	status := sessionCall(t, app, fiber.MethodPost, "/api/sessions/", `{"prompt":""}`, &errResp)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, response.CodeValidationError, errResp.Error.Code)

	status = sessionCall(t, app, fiber.MethodPost, "/api/sessions/", `{"prompt":"x","locale":"not a tag!"}`, &errResp)
	assert.Equal(t, fiber.StatusBadRequest, status)

	blank := newSessionApp(&fakeSessions{startErr: &orchestrator.ValidationError{Field: "prompt", Message: "Please enter a prompt."}}, "user-1")
	status = sessionCall(t, blank, fiber.MethodPost, "/api/sessions/", `{"prompt":"  "}`, &errResp)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Please enter a prompt.", errResp.Error.Message)

	closed := newSessionApp(&fakeSessions{startErr: orchestrator.ErrClosed}, "user-1")
	status = sessionCall(t, closed, fiber.MethodPost, "/api/sessions/", `{"prompt":"a castle"}`, nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
}

func TestSessionHandler_GetAndCancel(t *testing.T) {
	backend := &fakeSessions{
		owner: "user-1",
		sessions: map[string]*model.SessionResponse{
			"s1": {SessionSnapshot: model.SessionSnapshot{ID: "s1", Phase: model.PhasePollingRefine}},
		},
	}

	var resp model.SessionResponse
	status := sessionCall(t, newSessionApp(backend, "user-1"), fiber.MethodGet, "/api/sessions/s1", "", &resp)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, model.PhasePollingRefine, resp.Phase)

	status = sessionCall(t, newSessionApp(backend, "user-1"), fiber.MethodPost, "/api/sessions/s1/cancel", "", &resp)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, model.PhaseIdle, resp.Phase)

	var errResp response.ErrorResponse
	status = sessionCall(t, newSessionApp(backend, "user-2"), fiber.MethodGet, "/api/sessions/s1", "", &errResp)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, response.CodeNotFound, errResp.Error.Code)
}

func TestSessionHandler_StreamRequiresUpgrade(t *testing.T) {
	app := newSessionApp(&fakeSessions{owner: "user-1"}, "user-1")

	req := httptest.NewRequest(fiber.MethodGet, "/ws/sessions/s1", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestSessionHandler_StreamChecksOwner(t *testing.T) {
	app := newSessionApp(&fakeSessions{owner: "user-1", sessions: map[string]*model.SessionResponse{}}, "user-1")

	req := httptest.NewRequest(fiber.MethodGet, "/ws/sessions/missing", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestSessionHandler_SnapshotMessageReadsCurrentState(t *testing.T) {
	backend := &fakeSessions{owner: "user-1", sessions: map[string]*model.SessionResponse{
		"s1": {SessionSnapshot: model.SessionSnapshot{ID: "s1", Phase: model.PhasePollingRefine, Progress: 30}},
	}}
	h := NewSessionHandler(backend, nopStreamer{}, validator.New())

	backend.sessions["s1"] = &model.SessionResponse{
		SessionSnapshot: model.SessionSnapshot{ID: "s1", Phase: model.PhaseCompleted, Progress: 100},
		ModelURL:        "https://cdn/x.glb",
	}

	var msg model.WSSnapshotMessage
	require.NoError(t, json.Unmarshal(h.snapshotMessage("s1", "user-1"), &msg))
	assert.Equal(t, model.WSMessageTypeSnapshot, msg.Type)
	assert.Equal(t, "s1", msg.SessionID)
	assert.Equal(t, model.PhaseCompleted, msg.Snapshot.Phase)
	assert.Equal(t, 100, msg.Snapshot.Progress)

	assert.Nil(t, h.snapshotMessage("s1", "user-2"))
	assert.Nil(t, h.snapshotMessage("gone", "user-1"))
}
