package service

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/makeasinger/modelgen/internal/model"
)

const (
	TaskTypeSimulate = "model:simulate"
	TaskTypeArchive  = "model:archive"

	QueueGenerate = "generate"
	QueueArchive  = "archive"
)

// Enqueuer is the part of *asynq.Client the services use
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

func newSimulateTask(taskID string) (*asynq.Task, error) {
	data, err := json.Marshal(model.SimulateJobPayload{TaskID: taskID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TaskTypeSimulate, data), nil
}

func newArchiveTask(payload model.ArchiveJobPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TaskTypeArchive, data), nil
}

func simulateOptions() []asynq.Option {
	return []asynq.Option{
		asynq.Queue(QueueGenerate),
		asynq.MaxRetry(1),
		asynq.Timeout(10 * time.Minute),
		asynq.Retention(time.Hour),
	}
}

func archiveOptions(sessionID string) []asynq.Option {
	return []asynq.Option{
		asynq.Queue(QueueArchive),
		asynq.MaxRetry(3),
		asynq.TaskID("archive:" + sessionID),
		asynq.Retention(RecordTTL),
	}
}
