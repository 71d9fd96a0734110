package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/makeasinger/modelgen/internal/model"
	"github.com/makeasinger/modelgen/internal/service"
	"github.com/rs/zerolog"
)

// Sample assets served for simulated tasks
const (
	SamplePreviewModelURL = "https://modelviewer.dev/shared-assets/models/Astronaut.glb"
	SampleRefineModelURL  = "https://modelviewer.dev/shared-assets/models/NeilArmstrong.glb"
)

var simulatedProgress = []int{5, 15, 30, 45, 60, 75, 90}

// SimulateWorker advances mock provider tasks through scripted progress
type SimulateWorker struct {
	store    service.TaskStore
	stepWait time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewSimulateWorker creates a worker that waits stepWait between progress steps
func NewSimulateWorker(store service.TaskStore, stepWait time.Duration, logger zerolog.Logger) *SimulateWorker {
	return &SimulateWorker{
		store:    store,
		stepWait: stepWait,
		logger:   logger.With().Str("worker", service.TaskTypeSimulate).Logger(),
		now:      time.Now,
	}
}

// ProcessTask handles model:simulate tasks. A retried task resumes from
// its stored progress; finished tasks are left alone.
func (w *SimulateWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.SimulateJobPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	task, err := w.store.GetSimulated(ctx, payload.TaskID)
	if err != nil {
		if errors.Is(err, service.ErrTaskNotFound) {
			return fmt.Errorf("simulated task %s: %v: %w", payload.TaskID, err, asynq.SkipRetry)
		}
		return err
	}
	if task.Status.IsTerminal() {
		return nil
	}

	log := w.logger.With().Str("task_id", task.ID).Str("stage", string(task.Stage)).Logger()
	log.Info().Msg("simulating task")

	task.Status = model.TaskStatusInProgress
	for _, p := range simulatedProgress {
		if p <= task.Progress {
			continue
		}
		if err := w.wait(ctx); err != nil {
			log.Warn().Err(err).Msg("simulation interrupted")
			return err
		}
		task.Progress = p
		if err := w.save(ctx, task); err != nil {
			return err
		}
	}

	if err := w.wait(ctx); err != nil {
		return err
	}

	result, err := simulatedResult(task)
	if err != nil {
		task.Status = model.TaskStatusFailed
		task.Error = "could not build simulated result"
		_ = w.save(ctx, task)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	task.Status = model.TaskStatusSucceeded
	task.Progress = 100
	task.Result = result
	if err := w.save(ctx, task); err != nil {
		return err
	}

	log.Info().Msg("simulated task succeeded")
	return nil
}

func (w *SimulateWorker) save(ctx context.Context, task *model.SimulatedTask) error {
	task.UpdatedAt = w.now()
	return w.store.SaveSimulated(ctx, task)
}

func (w *SimulateWorker) wait(ctx context.Context) error {
	if w.stepWait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(w.stepWait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func simulatedResult(task *model.SimulatedTask) (json.RawMessage, error) {
	url := SamplePreviewModelURL
	if task.Stage == model.StageRefine {
		url = SampleRefineModelURL
	}
	return json.Marshal(model.ModelResult{
		ID:        task.ID,
		ModelURLs: map[string]string{"glb": url},
	})
}
