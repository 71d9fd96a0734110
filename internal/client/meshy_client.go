package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/makeasinger/modelgen/internal/config"
	"github.com/makeasinger/modelgen/internal/model"
	"github.com/rs/zerolog"
)

// Meshy task statuses beyond the four shared with model.TaskStatus
const (
	meshyStatusExpired  = "EXPIRED"
	meshyStatusCanceled = "CANCELED"
)

const textTo3DPath = "/openapi/v2/text-to-3d"

// ModelGenerator defines the provider operations behind the model API
type ModelGenerator interface {
	CreatePreviewTask(ctx context.Context, prompt string) (string, error)
	CreateRefineTask(ctx context.Context, previewTaskID string) (string, error)
	GetTask(ctx context.Context, taskID string) (*MeshyTask, error)
}

// MeshyClient implements ModelGenerator for the Meshy text-to-3D API
type MeshyClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	artStyle   string
	aiModel    string
	logger     zerolog.Logger
}

// textTo3DRequest is the body of both preview and refine submissions
type textTo3DRequest struct {
	Mode          string `json:"mode"`
	Prompt        string `json:"prompt,omitempty"`
	ArtStyle      string `json:"art_style,omitempty"`
	AIModel       string `json:"ai_model,omitempty"`
	PreviewTaskID string `json:"preview_task_id,omitempty"`
}

type textTo3DResponse struct {
	Result string `json:"result"`
}

// MeshyTask is a text-to-3D task as reported by Meshy
type MeshyTask struct {
	ID           string              `json:"id"`
	Status       string              `json:"status"`
	Progress     int                 `json:"progress"`
	Prompt       string              `json:"prompt,omitempty"`
	ModelURLs    map[string]string   `json:"model_urls,omitempty"`
	ThumbnailURL string              `json:"thumbnail_url,omitempty"`
	TextureURLs  []model.TextureURLs `json:"texture_urls,omitempty"`
	TaskError    *struct {
		Message string `json:"message"`
	} `json:"task_error,omitempty"`
}

// NewMeshyClient creates a new Meshy API client
func NewMeshyClient(cfg *config.MeshyConfig, logger zerolog.Logger) *MeshyClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &MeshyClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		artStyle:   cfg.ArtStyle,
		aiModel:    cfg.AIModel,
		logger:     logger.With().Str("component", "meshy").Logger(),
	}
}

// CreatePreviewTask starts the untextured preview stage
func (c *MeshyClient) CreatePreviewTask(ctx context.Context, prompt string) (string, error) {
	req := textTo3DRequest{
		Mode:     "preview",
		Prompt:   prompt,
		ArtStyle: c.artStyle,
		AIModel:  c.aiModel,
	}
	var result textTo3DResponse
	if err := c.post(ctx, textTo3DPath, req, &result); err != nil {
		return "", err
	}
	return result.Result, nil
}

// CreateRefineTask starts the texturing stage for a succeeded preview
func (c *MeshyClient) CreateRefineTask(ctx context.Context, previewTaskID string) (string, error) {
	req := textTo3DRequest{
		Mode:          "refine",
		PreviewTaskID: previewTaskID,
	}
	var result textTo3DResponse
	if err := c.post(ctx, textTo3DPath, req, &result); err != nil {
		return "", err
	}
	return result.Result, nil
}

// GetTask retrieves the current state of a task
func (c *MeshyClient) GetTask(ctx context.Context, taskID string) (*MeshyTask, error) {
	var result MeshyTask
	if err := c.get(ctx, textTo3DPath+"/"+url.PathEscape(taskID), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *MeshyClient) IsConfigured() bool {
	return c.apiKey != ""
}

// ToTask normalizes a Meshy task into the shared task snapshot.
// EXPIRED and CANCELED become FAILED.
func (t *MeshyTask) ToTask(stage model.Stage) (*model.Task, error) {
	task := &model.Task{
		ID:       t.ID,
		Stage:    stage,
		Progress: t.Progress,
	}

	switch t.Status {
	case meshyStatusExpired, meshyStatusCanceled:
		task.Status = model.TaskStatusFailed
		task.ErrorMessage = fmt.Sprintf("task %s", strings.ToLower(t.Status))
	default:
		task.Status = model.TaskStatus(t.Status)
	}

	if task.Status == model.TaskStatusFailed && t.TaskError != nil && t.TaskError.Message != "" {
		task.ErrorMessage = t.TaskError.Message
	}

	if task.Status == model.TaskStatusSucceeded {
		result, err := json.Marshal(model.ModelResult{
			ID:           t.ID,
			ModelURLs:    t.ModelURLs,
			ThumbnailURL: t.ThumbnailURL,
			TextureURLs:  t.TextureURLs,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}
		task.Result = result
	}

	return task, nil
}

// post sends a POST request with JSON body
func (c *MeshyClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// get sends a GET request and parses JSON response
func (c *MeshyClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and parses the response
func (c *MeshyClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.Debug().Str("method", req.Method).Str("url", req.URL.String()).Msg("request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("method", req.Method).Str("url", req.URL.String()).Msg("request failed")
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug().
		Int("status", resp.StatusCode).
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Msg("response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Service: "meshy", StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}
