package orchestrator

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks against the typed errors below.
var (
	ErrValidation = errors.New("validation error")
	ErrSubmission = errors.New("submission error")
	ErrLookup     = errors.New("lookup error")
	ErrRemoteTask = errors.New("remote task failure")
	ErrClosed     = errors.New("session closed")
)

// ValidationError is returned for bad input; no remote call has been made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// SubmissionError means a task could not be created.
type SubmissionError struct {
	Stage   string
	Message string
	Err     error
}

func (e *SubmissionError) Error() string { return e.Message }

func (e *SubmissionError) Unwrap() error { return e.Err }

func (e *SubmissionError) Is(target error) bool { return target == ErrSubmission }

// LookupError means a status fetch failed.
type LookupError struct {
	TaskID  string
	Message string
	Err     error
}

func (e *LookupError) Error() string { return e.Message }

func (e *LookupError) Unwrap() error { return e.Err }

func (e *LookupError) Is(target error) bool { return target == ErrLookup }

// RemoteTaskFailure means the service itself reported FAILED for a task.
type RemoteTaskFailure struct {
	TaskID  string
	Stage   string
	Message string
}

func (e *RemoteTaskFailure) Error() string { return e.Message }

func (e *RemoteTaskFailure) Is(target error) bool { return target == ErrRemoteTask }

// NewSubmissionError builds a SubmissionError whose message is the underlying error text.
func NewSubmissionError(stage string, err error) *SubmissionError {
	msg := fmt.Sprintf("could not create %s task", stage)
	if err != nil {
		msg = err.Error()
	}
	return &SubmissionError{Stage: stage, Message: msg, Err: err}
}

// NewLookupError builds a LookupError whose message is the underlying error text.
func NewLookupError(taskID string, err error) *LookupError {
	msg := "could not get task status"
	if err != nil {
		msg = err.Error()
	}
	return &LookupError{TaskID: taskID, Message: msg, Err: err}
}
