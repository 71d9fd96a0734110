package model

import (
	"encoding/json"
	"time"
)

// TaskRecord is the server-side bookkeeping for a task created through the model API
type TaskRecord struct {
	ID            string    `json:"id"`
	Stage         Stage     `json:"stage"`
	Prompt        string    `json:"prompt,omitempty"`
	PreviewTaskID string    `json:"previewTaskId,omitempty"`
	OwnerID       string    `json:"ownerId,omitempty"`
	Provider      string    `json:"provider"`
	CreatedAt     time.Time `json:"createdAt"`
}

// SimulatedTask is a task of the mock provider, advanced by the simulate worker
type SimulatedTask struct {
	ID            string          `json:"id"`
	Stage         Stage           `json:"stage"`
	Prompt        string          `json:"prompt,omitempty"`
	PreviewTaskID string          `json:"previewTaskId,omitempty"`
	Status        TaskStatus      `json:"status"`
	Progress      int             `json:"progress"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// SimulateJobPayload is the asynq payload of a mock generation task
type SimulateJobPayload struct {
	TaskID string `json:"taskId"`
}

// ArchiveJobPayload is the asynq payload of an archive task
type ArchiveJobPayload struct {
	SessionID string `json:"sessionId"`
	ModelURL  string `json:"modelUrl"`
	Extension string `json:"extension"`
}

// ArchiveRecord points at the copy of a session's model in object storage
type ArchiveRecord struct {
	SessionID  string    `json:"sessionId"`
	Store      string    `json:"store"`
	Key        string    `json:"key"`
	URL        string    `json:"url,omitempty"`
	ArchivedAt time.Time `json:"archivedAt"`
}
