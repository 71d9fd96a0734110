package model

import (
	"encoding/json"
	"time"
)

// Phase is the orchestration state of a session
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseSubmittingPreview Phase = "submitting_preview"
	PhasePollingPreview    Phase = "polling_preview"
	PhaseSubmittingRefine  Phase = "submitting_refine"
	PhasePollingRefine     Phase = "polling_refine"
	PhaseCompleted         Phase = "completed"
	PhaseFailed            Phase = "failed"
)

// IsTerminal reports whether the phase ends a run
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// IsActive reports whether a run is in flight
func (p Phase) IsActive() bool {
	return p != PhaseIdle && !p.IsTerminal()
}

// SessionSnapshot is the externally observable state of a session
type SessionSnapshot struct {
	ID            string          `json:"id,omitempty"`
	Phase         Phase           `json:"phase"`
	Stage         Stage           `json:"stage,omitempty"`
	ActiveTaskID  string          `json:"activeTaskId,omitempty"`
	PreviewTaskID string          `json:"previewTaskId,omitempty"`
	RefineTaskID  string          `json:"refineTaskId,omitempty"`
	Progress      int             `json:"progress"`
	StatusMessage string          `json:"statusMessage"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// StartSessionRequest represents the request to start an orchestration session
type StartSessionRequest struct {
	Prompt  string `json:"prompt" validate:"required,max=600"`
	Locale  string `json:"locale" validate:"omitempty,bcp47_language_tag"`
	Enhance bool   `json:"enhance"`
}

// SessionResponse is a snapshot enriched with download locators
type SessionResponse struct {
	SessionSnapshot
	ModelURL    string `json:"modelUrl,omitempty"`
	DownloadURL string `json:"downloadUrl,omitempty"`
	ArchiveURL  string `json:"archiveUrl,omitempty"`
}
