package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/makeasinger/modelgen/internal/model"
)

// Decision tells the session what to do after the machine consumed an event.
type Decision int

const (
	// DecisionIgnore: the event did not apply to the current state.
	DecisionIgnore Decision = iota
	// DecisionContinue: keep polling the active task.
	DecisionContinue
	// DecisionRefine: stop polling and submit the refine task.
	DecisionRefine
	// DecisionComplete: the run succeeded.
	DecisionComplete
	// DecisionFail: the run failed.
	DecisionFail
)

func (d Decision) String() string {
	switch d {
	case DecisionIgnore:
		return "ignore"
	case DecisionContinue:
		return "continue"
	case DecisionRefine:
		return "refine"
	case DecisionComplete:
		return "complete"
	case DecisionFail:
		return "fail"
	}
	return fmt.Sprintf("decision(%d)", int(d))
}

// transitions lists every legal phase edge. Edges to idle are cancellations.
var transitions = map[model.Phase][]model.Phase{
	model.PhaseIdle:              {model.PhaseSubmittingPreview},
	model.PhaseSubmittingPreview: {model.PhasePollingPreview, model.PhaseFailed, model.PhaseIdle},
	model.PhasePollingPreview:    {model.PhaseSubmittingRefine, model.PhaseFailed, model.PhaseIdle},
	model.PhaseSubmittingRefine:  {model.PhasePollingRefine, model.PhaseFailed, model.PhaseIdle},
	model.PhasePollingRefine:     {model.PhaseCompleted, model.PhaseFailed, model.PhaseIdle},
	model.PhaseCompleted:         nil,
	model.PhaseFailed:            nil,
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to model.Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// State is the bookkeeping of one run.
type State struct {
	Phase         model.Phase
	Stage         model.Stage
	ActiveTaskID  string
	PreviewTaskID string
	RefineTaskID  string
	Result        json.RawMessage
	Err           error
}

// StageMachine decides what each polled snapshot means for the run.
// It performs no I/O and is not safe for concurrent use; Session serializes it.
type StageMachine struct {
	labels   Labels
	progress Progress
	state    State
}

// NewStageMachine returns a machine in the idle phase.
func NewStageMachine(labels Labels) *StageMachine {
	return &StageMachine{
		labels: labels,
		state:  State{Phase: model.PhaseIdle},
	}
}

func (m *StageMachine) State() State { return m.state }

func (m *StageMachine) Progress() int { return m.progress.Value() }

func (m *StageMachine) Message() string { return m.progress.Message() }

// Begin resets the run and enters submitting_preview.
func (m *StageMachine) Begin() {
	m.state = State{Phase: model.PhaseIdle}
	m.progress.Reset(m.labels.CreatingPreview)
	m.transition(model.PhaseSubmittingPreview)
}

// PreviewSubmitted consumes the result of CreatePreview.
func (m *StageMachine) PreviewSubmitted(taskID string, err error) Decision {
	if m.state.Phase != model.PhaseSubmittingPreview {
		return DecisionIgnore
	}
	if err != nil {
		m.fail(asSubmissionError(string(model.StagePreview), err))
		return DecisionFail
	}
	if strings.TrimSpace(taskID) == "" {
		m.fail(&SubmissionError{Stage: string(model.StagePreview), Message: m.labels.PreviewNotCreated})
		return DecisionFail
	}

	m.state.Stage = model.StagePreview
	m.state.PreviewTaskID = taskID
	m.state.ActiveTaskID = taskID
	m.progress.SetMessage(m.labels.GeneratingPreview)
	m.transition(model.PhasePollingPreview)
	return DecisionContinue
}

// Observe consumes one polled snapshot of the active task.
func (m *StageMachine) Observe(task *model.Task) Decision {
	if !m.polling() || task == nil || task.ID != m.state.ActiveTaskID {
		return DecisionIgnore
	}

	switch task.Status {
	case model.TaskStatusPending, model.TaskStatusInProgress:
		m.progress.Update(task.Progress, "")
		return DecisionContinue

	case model.TaskStatusSucceeded:
		if m.state.Stage == model.StagePreview {
			m.state.ActiveTaskID = ""
			m.progress.SetMessage(m.labels.CreatingRefine)
			m.transition(model.PhaseSubmittingRefine)
			return DecisionRefine
		}
		m.state.ActiveTaskID = ""
		m.state.Result = task.Result
		m.progress.Complete(m.labels.Completed)
		m.transition(model.PhaseCompleted)
		return DecisionComplete

	case model.TaskStatusFailed:
		msg := task.ErrorMessage
		if msg == "" {
			msg = m.labels.TaskFailed
		}
		m.fail(&RemoteTaskFailure{TaskID: task.ID, Stage: string(m.state.Stage), Message: msg})
		return DecisionFail
	}

	// Unknown statuses are not interpreted; keep polling.
	return DecisionContinue
}

// RefineSubmitted consumes the result of CreateRefine.
func (m *StageMachine) RefineSubmitted(taskID string, err error) Decision {
	if m.state.Phase != model.PhaseSubmittingRefine {
		return DecisionIgnore
	}
	if err != nil {
		m.fail(asSubmissionError(string(model.StageRefine), err))
		return DecisionFail
	}
	if strings.TrimSpace(taskID) == "" {
		m.fail(&SubmissionError{Stage: string(model.StageRefine), Message: m.labels.RefineNotCreated})
		return DecisionFail
	}

	m.state.Stage = model.StageRefine
	m.state.RefineTaskID = taskID
	m.state.ActiveTaskID = taskID
	m.progress.Reset(m.labels.GeneratingRefine)
	m.transition(model.PhasePollingRefine)
	return DecisionContinue
}

// LookupFailed consumes a status fetch error. It fails the run like a FAILED status.
func (m *StageMachine) LookupFailed(err error) Decision {
	if !m.polling() {
		return DecisionIgnore
	}
	var lookupErr *LookupError
	if !errors.As(err, &lookupErr) {
		lookupErr = &LookupError{TaskID: m.state.ActiveTaskID, Message: m.labels.StatusUnavailable, Err: err}
	}
	m.fail(lookupErr)
	return DecisionFail
}

// Cancel drops an active run back to idle without finalizing it.
// Terminal and idle runs are left untouched.
func (m *StageMachine) Cancel() bool {
	if !m.state.Phase.IsActive() {
		return false
	}
	m.transition(model.PhaseIdle)
	m.state = State{Phase: model.PhaseIdle}
	m.progress.Reset("")
	return true
}

func (m *StageMachine) polling() bool {
	return m.state.Phase == model.PhasePollingPreview || m.state.Phase == model.PhasePollingRefine
}

func (m *StageMachine) fail(err error) {
	m.state.ActiveTaskID = ""
	m.state.Err = err
	m.progress.SetMessage(m.labels.Failed)
	m.transition(model.PhaseFailed)
}

func (m *StageMachine) transition(to model.Phase) {
	if !CanTransition(m.state.Phase, to) {
		panic(fmt.Sprintf("orchestrator: illegal transition %s -> %s", m.state.Phase, to))
	}
	m.state.Phase = to
}

// Snapshot renders the machine state for observers.
func (m *StageMachine) Snapshot() model.SessionSnapshot {
	snap := model.SessionSnapshot{
		Phase:         m.state.Phase,
		Stage:         m.state.Stage,
		ActiveTaskID:  m.state.ActiveTaskID,
		PreviewTaskID: m.state.PreviewTaskID,
		RefineTaskID:  m.state.RefineTaskID,
		Progress:      m.progress.Value(),
		StatusMessage: m.progress.Message(),
	}
	if m.state.Phase == model.PhaseCompleted {
		snap.Result = m.state.Result
	}
	if m.state.Phase == model.PhaseFailed && m.state.Err != nil {
		snap.Error = m.state.Err.Error()
	}
	return snap
}

func asSubmissionError(stage string, err error) *SubmissionError {
	var subErr *SubmissionError
	if errors.As(err, &subErr) {
		return subErr
	}
	return NewSubmissionError(stage, err)
}
