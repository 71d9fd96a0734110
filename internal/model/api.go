package model

import "encoding/json"

// Envelope is the response wrapper of the model API
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// CreateTaskRequest represents POST /api/model/create-task
type CreateTaskRequest struct {
	Prompt  string `json:"prompt" validate:"required,max=600"`
	Enhance bool   `json:"enhance"`
}

// CreateRefineRequest represents POST /api/model/create-refine
type CreateRefineRequest struct {
	PreviewTaskID string `json:"previewTaskId" validate:"required,max=128"`
}

// CreateTaskData is the data of a task creation response
type CreateTaskData struct {
	Result string `json:"result"`
}
