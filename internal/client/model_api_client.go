package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/makeasinger/modelgen/internal/model"
	"github.com/makeasinger/modelgen/internal/orchestrator"
	"github.com/rs/zerolog"
)

// ModelAPIClient talks to a remote /api/model backend. It implements
// orchestrator.TaskClient.
type ModelAPIClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     zerolog.Logger
}

var _ orchestrator.TaskClient = (*ModelAPIClient)(nil)

// NewModelAPIClient creates a client for the model API rooted at baseURL
// (scheme and host, without the /api/model suffix).
func NewModelAPIClient(baseURL, token string, logger zerolog.Logger) *ModelAPIClient {
	return &ModelAPIClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/") + "/api/model",
		token:      token,
		logger:     logger.With().Str("component", "model_api").Logger(),
	}
}

// CreatePreview submits the prompt and returns the preview task id
func (c *ModelAPIClient) CreatePreview(ctx context.Context, prompt string) (string, error) {
	var data model.CreateTaskData
	err := c.call(ctx, http.MethodPost, "/create-task", model.CreateTaskRequest{Prompt: prompt}, &data)
	if err != nil {
		return "", orchestrator.NewSubmissionError(string(model.StagePreview), err)
	}
	return data.Result, nil
}

// GetStatus fetches the current snapshot of a task
func (c *ModelAPIClient) GetStatus(ctx context.Context, taskID string) (*model.Task, error) {
	var task model.Task
	err := c.call(ctx, http.MethodGet, "/task-status/"+url.PathEscape(taskID), nil, &task)
	if err != nil {
		return nil, orchestrator.NewLookupError(taskID, err)
	}
	if task.ID == "" {
		task.ID = taskID
	}
	return &task, nil
}

// CreateRefine submits the refine stage for a succeeded preview
func (c *ModelAPIClient) CreateRefine(ctx context.Context, previewTaskID string) (string, error) {
	var data model.CreateTaskData
	err := c.call(ctx, http.MethodPost, "/create-refine", model.CreateRefineRequest{PreviewTaskID: previewTaskID}, &data)
	if err != nil {
		return "", orchestrator.NewSubmissionError(string(model.StageRefine), err)
	}
	return data.Result, nil
}

// call performs one request and unwraps the {success, data, error} envelope.
// A success=false envelope yields its error text regardless of HTTP status.
func (c *ModelAPIClient) call(ctx context.Context, method, endpoint string, body interface{}, data interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("method", method).Str("endpoint", endpoint).Msg("request failed")
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug().Int("status", resp.StatusCode).Str("method", method).Str("endpoint", endpoint).Msg("response")

	var env model.Envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &APIError{Service: "model", StatusCode: resp.StatusCode, Body: string(respBody)}
		}
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !env.Success {
		if env.Error != "" {
			return errors.New(env.Error)
		}
		return &APIError{Service: "model", StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if len(env.Data) == 0 {
		return errors.New("empty response data")
	}
	if err := json.Unmarshal(env.Data, data); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}
	return nil
}
