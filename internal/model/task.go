package model

import "encoding/json"

// TaskStatus mirrors the status reported by the generation service
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusSucceeded  TaskStatus = "SUCCEEDED"
	TaskStatusFailed     TaskStatus = "FAILED"
)

// IsTerminal reports whether no further status change is expected
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed
}

// Valid reports whether s is one of the four known statuses
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusSucceeded, TaskStatusFailed:
		return true
	}
	return false
}

// Stage is one phase of the two-phase pipeline
type Stage string

const (
	StageNone    Stage = ""
	StagePreview Stage = "preview"
	StageRefine  Stage = "refine"
)

// Task is the last-seen snapshot of one remote unit of work
type Task struct {
	ID           string          `json:"id"`
	Stage        Stage           `json:"stage,omitempty"`
	Status       TaskStatus      `json:"status"`
	Progress     int             `json:"progress"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}
