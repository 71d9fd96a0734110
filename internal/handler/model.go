package handler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/makeasinger/modelgen/internal/client"
	"github.com/makeasinger/modelgen/internal/middleware"
	"github.com/makeasinger/modelgen/internal/model"
	"github.com/makeasinger/modelgen/internal/service"
	"github.com/makeasinger/modelgen/pkg/response"
	"github.com/rs/zerolog"
)

// ModelBackend is the part of service.ModelService the model API uses
type ModelBackend interface {
	CreateTask(ctx context.Context, req *model.CreateTaskRequest, ownerID string) (string, error)
	GetTask(ctx context.Context, taskID, ownerID string) (*model.Task, error)
	CreateRefine(ctx context.Context, previewTaskID, ownerID string) (string, error)
	OpenDownload(ctx context.Context, encoded string) (*client.Asset, string, error)
}

// ModelHandler serves /api/model with {success, data, error} envelopes
type ModelHandler struct {
	service   ModelBackend
	validator *validator.Validate
	logger    zerolog.Logger
}

func NewModelHandler(svc ModelBackend, v *validator.Validate, logger zerolog.Logger) *ModelHandler {
	return &ModelHandler{
		service:   svc,
		validator: v,
		logger:    logger.With().Str("component", "model_handler").Logger(),
	}
}

// CreateTask handles POST /api/model/create-task
func (h *ModelHandler) CreateTask(c *fiber.Ctx) error {
	var req model.CreateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Failure(c, fiber.StatusBadRequest, "Invalid request body")
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if err := h.validator.Struct(&req); err != nil {
		return response.Failure(c, fiber.StatusBadRequest, firstValidationMessage(err))
	}

	taskID, err := h.service.CreateTask(c.UserContext(), &req, middleware.GetUserID(c))
	if err != nil {
		return h.upstreamFailure(c, "create-task", err)
	}

	return response.Success(c, model.CreateTaskData{Result: taskID})
}

// TaskStatus handles GET /api/model/task-status/:taskId
func (h *ModelHandler) TaskStatus(c *fiber.Ctx) error {
	taskID := c.Params("taskId")
	if taskID == "" {
		return response.Failure(c, fiber.StatusBadRequest, "taskId is required")
	}

	task, err := h.service.GetTask(c.UserContext(), taskID, middleware.GetUserID(c))
	if err != nil {
		if errors.Is(err, service.ErrTaskNotFound) {
			return response.Failure(c, fiber.StatusNotFound, "Task not found")
		}
		return h.upstreamFailure(c, "task-status", err)
	}

	return response.Success(c, task)
}

// CreateRefine handles POST /api/model/create-refine
func (h *ModelHandler) CreateRefine(c *fiber.Ctx) error {
	var req model.CreateRefineRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Failure(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.Failure(c, fiber.StatusBadRequest, firstValidationMessage(err))
	}

	taskID, err := h.service.CreateRefine(c.UserContext(), req.PreviewTaskID, middleware.GetUserID(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTaskNotFound):
			return response.Failure(c, fiber.StatusNotFound, "Preview task not found")
		case errors.Is(err, service.ErrPreviewNotReady):
			return response.Failure(c, fiber.StatusConflict, "Preview task has not succeeded yet")
		}
		return h.upstreamFailure(c, "create-refine", err)
	}

	return response.Success(c, model.CreateTaskData{Result: taskID})
}

// Download handles GET /api/model/download/:encoded and streams the
// model file as an attachment. The segment may be percent-encoded
// (encodeURIComponent of standard base64).
func (h *ModelHandler) Download(c *fiber.Ctx) error {
	encoded, err := url.PathUnescape(c.Params("encoded"))
	if err != nil {
		return response.Failure(c, fiber.StatusBadRequest, "Invalid download url")
	}

	asset, name, err := h.service.OpenDownload(c.UserContext(), encoded)
	if err != nil {
		if errors.Is(err, service.ErrInvalidDownload) {
			return response.Failure(c, fiber.StatusBadRequest, "Invalid download url")
		}
		return h.upstreamFailure(c, "download", err)
	}

	contentType := asset.ContentType
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = client.ModelContentType(name[strings.LastIndex(name, "."):])
	}
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, name))

	size := -1
	if asset.ContentLength >= 0 {
		size = int(asset.ContentLength)
	}
	// fasthttp closes the body once it has been sent.
	return c.SendStream(asset.Body, size)
}

func (h *ModelHandler) upstreamFailure(c *fiber.Ctx, op string, err error) error {
	h.logger.Warn().Err(err).Str("op", op).Msg("model request failed")

	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return response.Failure(c, fiber.StatusBadGateway, apiErr.Error())
	}
	return response.Failure(c, fiber.StatusInternalServerError, err.Error())
}
