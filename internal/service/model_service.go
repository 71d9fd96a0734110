package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/makeasinger/modelgen/internal/client"
	"github.com/makeasinger/modelgen/internal/model"
	"github.com/makeasinger/modelgen/internal/orchestrator"
	"github.com/rs/zerolog"
)

const (
	ProviderMeshy = "meshy"
	ProviderMock  = "mock"
)

// ModelService creates and tracks preview/refine tasks. It talks to the
// provider when one is configured and runs simulated tasks otherwise.
type ModelService struct {
	store    TaskStore
	queue    Enqueuer
	provider client.ModelGenerator
	enhancer client.PromptEnhancer
	assets   *client.AssetFetcher
	logger   zerolog.Logger
	now      func() time.Time
}

// NewModelService wires the service. A nil provider selects simulated tasks.
func NewModelService(
	store TaskStore,
	queue Enqueuer,
	provider client.ModelGenerator,
	enhancer client.PromptEnhancer,
	assets *client.AssetFetcher,
	logger zerolog.Logger,
) *ModelService {
	if assets == nil {
		assets = client.NewAssetFetcher(0)
	}
	return &ModelService{
		store:    store,
		queue:    queue,
		provider: provider,
		enhancer: enhancer,
		assets:   assets,
		logger:   logger.With().Str("component", "model_service").Logger(),
		now:      time.Now,
	}
}

// Provider names the backend tasks are created on
func (s *ModelService) Provider() string {
	if s.provider != nil {
		return ProviderMeshy
	}
	return ProviderMock
}

// CreateTask creates a preview task and returns its id
func (s *ModelService) CreateTask(ctx context.Context, req *model.CreateTaskRequest, ownerID string) (string, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if req.Enhance {
		prompt = s.enhance(ctx, prompt)
	}

	var taskID string
	var err error
	if s.provider != nil {
		taskID, err = s.provider.CreatePreviewTask(ctx, prompt)
	} else {
		taskID, err = s.createSimulated(ctx, &model.SimulatedTask{Stage: model.StagePreview, Prompt: prompt})
	}
	if err != nil {
		return "", fmt.Errorf("failed to create preview task: %w", err)
	}
	if taskID == "" {
		return "", errors.New("provider returned no task id")
	}

	rec := &model.TaskRecord{
		ID:        taskID,
		Stage:     model.StagePreview,
		Prompt:    prompt,
		OwnerID:   ownerID,
		Provider:  s.Provider(),
		CreatedAt: s.now(),
	}
	if err := s.store.SaveRecord(ctx, rec); err != nil {
		return "", err
	}

	s.logger.Info().Str("task_id", taskID).Str("stage", string(model.StagePreview)).Str("provider", rec.Provider).Msg("task created")
	return taskID, nil
}

// GetTask returns the current snapshot of a task created through this service.
// A task created by a signed-in user is only visible to that user.
func (s *ModelService) GetTask(ctx context.Context, taskID, ownerID string) (*model.Task, error) {
	rec, err := s.ownedRecord(ctx, taskID, ownerID)
	if err != nil {
		return nil, err
	}
	return s.taskStatus(ctx, rec)
}

// ownedRecord loads a task record, reporting foreign tasks as not found
func (s *ModelService) ownedRecord(ctx context.Context, taskID, ownerID string) (*model.TaskRecord, error) {
	rec, err := s.store.GetRecord(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != "" && rec.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return rec, nil
}

func (s *ModelService) taskStatus(ctx context.Context, rec *model.TaskRecord) (*model.Task, error) {
	taskID := rec.ID
	if rec.Provider == ProviderMeshy {
		if s.provider == nil {
			return nil, fmt.Errorf("task %s belongs to an unconfigured provider", taskID)
		}
		mt, err := s.provider.GetTask(ctx, taskID)
		if err != nil {
			return nil, fmt.Errorf("failed to get task status: %w", err)
		}
		return mt.ToTask(rec.Stage)
	}

	sim, err := s.store.GetSimulated(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return &model.Task{
		ID:           sim.ID,
		Stage:        sim.Stage,
		Status:       sim.Status,
		Progress:     sim.Progress,
		Result:       sim.Result,
		ErrorMessage: sim.Error,
	}, nil
}

// CreateRefine creates the refine task for a succeeded preview
func (s *ModelService) CreateRefine(ctx context.Context, previewTaskID, ownerID string) (string, error) {
	preview, err := s.ownedRecord(ctx, previewTaskID, ownerID)
	if err != nil {
		return "", err
	}
	if preview.Stage != model.StagePreview {
		return "", fmt.Errorf("%w: %s is not a preview task", ErrPreviewNotReady, previewTaskID)
	}

	status, err := s.taskStatus(ctx, preview)
	if err != nil {
		return "", err
	}
	if status.Status != model.TaskStatusSucceeded {
		return "", fmt.Errorf("%w: status is %s", ErrPreviewNotReady, status.Status)
	}

	var taskID string
	if preview.Provider == ProviderMeshy && s.provider != nil {
		taskID, err = s.provider.CreateRefineTask(ctx, previewTaskID)
	} else {
		taskID, err = s.createSimulated(ctx, &model.SimulatedTask{
			Stage:         model.StageRefine,
			Prompt:        preview.Prompt,
			PreviewTaskID: previewTaskID,
		})
	}
	if err != nil {
		return "", fmt.Errorf("failed to create refine task: %w", err)
	}
	if taskID == "" {
		return "", errors.New("provider returned no task id")
	}

	rec := &model.TaskRecord{
		ID:            taskID,
		Stage:         model.StageRefine,
		Prompt:        preview.Prompt,
		PreviewTaskID: previewTaskID,
		OwnerID:       ownerID,
		Provider:      preview.Provider,
		CreatedAt:     s.now(),
	}
	if err := s.store.SaveRecord(ctx, rec); err != nil {
		return "", err
	}

	s.logger.Info().Str("task_id", taskID).Str("preview_task_id", previewTaskID).Str("stage", string(model.StageRefine)).Msg("task created")
	return taskID, nil
}

// OpenDownload decodes a download token and opens the upstream model file.
// The returned name is "model.glb" or "model.gltf".
func (s *ModelService) OpenDownload(ctx context.Context, encoded string) (*client.Asset, string, error) {
	raw, err := model.DecodeAssetURL(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidDownload, err)
	}
	if _, err := s.assets.Validate(raw); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidDownload, err)
	}

	asset, err := s.assets.Open(ctx, raw)
	if err != nil {
		return nil, "", err
	}
	return asset, "model" + model.ModelExtension(raw), nil
}

// TaskClient adapts the service to the orchestration contract for one owner
func (s *ModelService) TaskClient(ownerID string, enhance bool) orchestrator.TaskClient {
	return &localTaskClient{svc: s, ownerID: ownerID, enhance: enhance}
}

func (s *ModelService) enhance(ctx context.Context, prompt string) string {
	if s.enhancer == nil || !s.enhancer.IsConfigured() {
		return prompt
	}
	out, err := s.enhancer.EnhancePrompt(ctx, prompt)
	if err != nil {
		s.logger.Warn().Err(err).Msg("prompt enhancement failed, using original prompt")
		return prompt
	}
	return out
}

func (s *ModelService) createSimulated(ctx context.Context, task *model.SimulatedTask) (string, error) {
	now := s.now()
	task.ID = uuid.New().String()
	task.Status = model.TaskStatusPending
	task.CreatedAt = now
	task.UpdatedAt = now

	if err := s.store.SaveSimulated(ctx, task); err != nil {
		return "", err
	}

	job, err := newSimulateTask(task.ID)
	if err != nil {
		return "", err
	}
	if _, err := s.queue.Enqueue(job, simulateOptions()...); err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}
	return task.ID, nil
}

// localTaskClient runs a session against this process' ModelService
type localTaskClient struct {
	svc     *ModelService
	ownerID string
	enhance bool
}

func (c *localTaskClient) CreatePreview(ctx context.Context, prompt string) (string, error) {
	id, err := c.svc.CreateTask(ctx, &model.CreateTaskRequest{Prompt: prompt, Enhance: c.enhance}, c.ownerID)
	if err != nil {
		return "", orchestrator.NewSubmissionError(string(model.StagePreview), err)
	}
	return id, nil
}

func (c *localTaskClient) GetStatus(ctx context.Context, taskID string) (*model.Task, error) {
	task, err := c.svc.GetTask(ctx, taskID, c.ownerID)
	if err != nil {
		return nil, orchestrator.NewLookupError(taskID, err)
	}
	return task, nil
}

func (c *localTaskClient) CreateRefine(ctx context.Context, previewTaskID string) (string, error) {
	id, err := c.svc.CreateRefine(ctx, previewTaskID, c.ownerID)
	if err != nil {
		return "", orchestrator.NewSubmissionError(string(model.StageRefine), err)
	}
	return id, nil
}
