package orchestrator

import (
	"context"
	"sync"

	"github.com/makeasinger/modelgen/internal/model"
)

type statusStep struct {
	task model.Task
	err  error
}

// fakeClient replays scripted status sequences per task id. The last step
// of a sequence repeats.
type fakeClient struct {
	mu sync.Mutex

	previewIDs []string
	previewErr error
	refineID   string
	refineErr  error
	statuses   map[string][]statusStep

	// release, when set, holds every GetStatus call until it is closed,
	// regardless of context cancellation.
	release chan struct{}

	previewCalls []string
	refineCalls  []string
	statusCalls  map[string]int
	inflight     int
	maxInflight  int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		statuses:    make(map[string][]statusStep),
		statusCalls: make(map[string]int),
	}
}

func (f *fakeClient) script(taskID string, steps ...statusStep) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[taskID] = steps
}

func (f *fakeClient) CreatePreview(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.previewCalls = append(f.previewCalls, prompt)
	if f.previewErr != nil {
		return "", f.previewErr
	}
	if len(f.previewIDs) == 0 {
		return "", nil
	}
	id := f.previewIDs[0]
	if len(f.previewIDs) > 1 {
		f.previewIDs = f.previewIDs[1:]
	}
	return id, nil
}

func (f *fakeClient) GetStatus(ctx context.Context, taskID string) (*model.Task, error) {
	f.mu.Lock()
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	f.statusCalls[taskID]++
	release := f.release
	f.mu.Unlock()

	if release != nil {
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight--

	steps := f.statuses[taskID]
	if len(steps) == 0 {
		return &model.Task{ID: taskID, Status: model.TaskStatusPending}, nil
	}
	step := steps[0]
	if len(steps) > 1 {
		f.statuses[taskID] = steps[1:]
	}
	if step.err != nil {
		return nil, step.err
	}
	task := step.task
	if task.ID == "" {
		task.ID = taskID
	}
	return &task, nil
}

func (f *fakeClient) CreateRefine(ctx context.Context, previewTaskID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refineCalls = append(f.refineCalls, previewTaskID)
	if f.refineErr != nil {
		return "", f.refineErr
	}
	return f.refineID, nil
}

func (f *fakeClient) refines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.refineCalls...)
}

func (f *fakeClient) previews() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.previewCalls...)
}

func (f *fakeClient) calls(taskID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls[taskID]
}

func (f *fakeClient) inFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inflight
}

func (f *fakeClient) peakInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInflight
}

func pending(progress int) statusStep {
	return statusStep{task: model.Task{Status: model.TaskStatusPending, Progress: progress}}
}

func inProgress(progress int) statusStep {
	return statusStep{task: model.Task{Status: model.TaskStatusInProgress, Progress: progress}}
}

func succeeded(result string) statusStep {
	step := statusStep{task: model.Task{Status: model.TaskStatusSucceeded, Progress: 100}}
	if result != "" {
		step.task.Result = []byte(result)
	}
	return step
}

func failed(msg string) statusStep {
	return statusStep{task: model.Task{Status: model.TaskStatusFailed, ErrorMessage: msg}}
}

// recorder collects every snapshot an observer receives.
type recorder struct {
	mu    sync.Mutex
	snaps []model.SessionSnapshot
}

func (r *recorder) observe(s model.SessionSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) all() []model.SessionSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.SessionSnapshot(nil), r.snaps...)
}
