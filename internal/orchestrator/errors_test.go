package orchestrator

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	cause := errors.New("connection refused")

	sub := NewSubmissionError("preview", cause)
	assert.ErrorIs(t, sub, ErrSubmission)
	assert.ErrorIs(t, sub, cause)
	assert.Equal(t, "connection refused", sub.Error())

	lookup := NewLookupError("task-1", nil)
	assert.ErrorIs(t, lookup, ErrLookup)
	assert.NotErrorIs(t, lookup, ErrSubmission)
	assert.Equal(t, "could not get task status", lookup.Error())

	remote := &RemoteTaskFailure{TaskID: "task-1", Message: "bad prompt"}
	wrapped := fmt.Errorf("run: %w", remote)
	assert.ErrorIs(t, wrapped, ErrRemoteTask)

	var target *RemoteTaskFailure
	assert.True(t, errors.As(wrapped, &target))
	assert.Equal(t, "task-1", target.TaskID)

	assert.ErrorIs(t, &ValidationError{Field: "prompt"}, ErrValidation)
}
