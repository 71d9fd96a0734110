package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/makeasinger/modelgen/internal/model"
	"github.com/makeasinger/modelgen/internal/orchestrator"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testInterval = 5 * time.Millisecond

// stubClient completes each stage on its first poll.
type stubClient struct {
	previewErr error
	failWith   string
	result     string
}

func (c *stubClient) CreatePreview(ctx context.Context, prompt string) (string, error) {
	if c.previewErr != nil {
		return "", c.previewErr
	}
	return "preview-1", nil
}

func (c *stubClient) GetStatus(ctx context.Context, taskID string) (*model.Task, error) {
	if c.failWith != "" {
		return &model.Task{ID: taskID, Status: model.TaskStatusFailed, ErrorMessage: c.failWith}, nil
	}
	task := &model.Task{ID: taskID, Status: model.TaskStatusSucceeded, Progress: 100}
	if taskID == "refine-1" {
		task.Result = json.RawMessage(c.result)
	}
	return task, nil
}

func (c *stubClient) CreateRefine(ctx context.Context, previewTaskID string) (string, error) {
	return "refine-1", nil
}

// blockingClient never finishes a task.
type blockingClient struct{}

func (blockingClient) CreatePreview(ctx context.Context, prompt string) (string, error) {
	return "preview-1", nil
}

func (blockingClient) GetStatus(ctx context.Context, taskID string) (*model.Task, error) {
	return &model.Task{ID: taskID, Status: model.TaskStatusInProgress, Progress: 10}, nil
}

func (blockingClient) CreateRefine(ctx context.Context, previewTaskID string) (string, error) {
	return "refine-1", nil
}

type sessionFixture struct {
	svc   *SessionService
	hub   *broadcastSpy
	queue *fakeQueue
	store *memStore
}

func newSessionFixture(t *testing.T, tc orchestrator.TaskClient, opts SessionOptions) *sessionFixture {
	t.Helper()
	if opts.PollInterval == 0 {
		opts.PollInterval = testInterval
	}
	f := &sessionFixture{hub: &broadcastSpy{}, queue: &fakeQueue{}, store: newMemStore()}
	f.svc = NewSessionService(
		func(ownerID string, enhance bool) orchestrator.TaskClient { return tc },
		f.hub, nil, f.queue, f.store, opts, zerolog.Nop(),
	)
	t.Cleanup(f.svc.Close)
	return f
}

func (f *sessionFixture) waitPhase(t *testing.T, id, owner string, phase model.Phase) *model.SessionResponse {
	t.Helper()
	var resp *model.SessionResponse
	require.Eventually(t, func() bool {
		r, err := f.svc.Get(context.Background(), id, owner)
		if err != nil {
			return false
		}
		resp = r
		return r.Phase == phase
	}, 2*time.Second, testInterval)
	return resp
}

func TestSessionService_RunsToCompletion(t *testing.T) {
	tc := &stubClient{result: sampleResult}
	f := newSessionFixture(t, tc, SessionOptions{Archive: true})

	resp, err := f.svc.Start(context.Background(), "user-1", &model.StartSessionRequest{Prompt: "a castle"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.ID)
	assert.Equal(t, model.PhasePollingPreview, resp.Phase)

	done := f.waitPhase(t, resp.ID, "user-1", model.PhaseCompleted)
	assert.Equal(t, 100, done.Progress)
	assert.Equal(t, "https://assets.example/castle.glb", done.ModelURL)
	assert.Equal(t, "/api/model/download/"+model.EncodeAssetURL("https://assets.example/castle.glb"), done.DownloadURL)
	assert.Empty(t, done.ArchiveURL)

	require.Eventually(t, func() bool { return len(f.queue.ofType(TaskTypeArchive)) == 1 }, time.Second, testInterval)
	var payload model.ArchiveJobPayload
	require.NoError(t, json.Unmarshal(f.queue.ofType(TaskTypeArchive)[0].Payload(), &payload))
	assert.Equal(t, resp.ID, payload.SessionID)
	assert.Equal(t, ".glb", payload.Extension)

	assert.Equal(t, []string{"https://assets.example/castle.glb"}, f.hub.completed())
}

func TestSessionService_ArchiveURLInResponse(t *testing.T) {
	f := newSessionFixture(t, &stubClient{result: sampleResult}, SessionOptions{})

	resp, err := f.svc.Start(context.Background(), "user-1", &model.StartSessionRequest{Prompt: "a castle"})
	require.NoError(t, err)
	f.waitPhase(t, resp.ID, "user-1", model.PhaseCompleted)

	require.NoError(t, f.store.SaveArchive(context.Background(), &model.ArchiveRecord{SessionID: resp.ID, URL: "https://cdn.example/models/x/model.glb"}))
	got, err := f.svc.Get(context.Background(), resp.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/models/x/model.glb", got.ArchiveURL)
	assert.Empty(t, f.queue.ofType(TaskTypeArchive))
}

func TestSessionService_RemoteFailure(t *testing.T) {
	f := newSessionFixture(t, &stubClient{failWith: "bad prompt"}, SessionOptions{})

	resp, err := f.svc.Start(context.Background(), "user-1", &model.StartSessionRequest{Prompt: "a castle"})
	require.NoError(t, err)

	failed := f.waitPhase(t, resp.ID, "user-1", model.PhaseFailed)
	assert.Equal(t, "bad prompt", failed.Error)
	require.Eventually(t, func() bool { return len(f.hub.failures()) == 1 }, time.Second, testInterval)
	assert.Equal(t, "GENERATION_FAILED: bad prompt", f.hub.failures()[0])
}

func TestSessionService_SubmissionFailureIsReported(t *testing.T) {
	f := newSessionFixture(t, &stubClient{previewErr: assert.AnError}, SessionOptions{})

	resp, err := f.svc.Start(context.Background(), "user-1", &model.StartSessionRequest{Prompt: "a castle"})
	require.NoError(t, err)
	assert.Equal(t, model.PhaseFailed, resp.Phase)
	assert.NotEmpty(t, resp.Error)
}

func TestSessionService_EmptyPromptIsRejected(t *testing.T) {
	f := newSessionFixture(t, &stubClient{}, SessionOptions{})

	_, err := f.svc.Start(context.Background(), "user-1", &model.StartSessionRequest{Prompt: "   "})
	assert.ErrorIs(t, err, orchestrator.ErrValidation)
	assert.Equal(t, 0, f.svc.Count())
}

func TestSessionService_OwnerIsChecked(t *testing.T) {
	f := newSessionFixture(t, blockingClient{}, SessionOptions{})

	resp, err := f.svc.Start(context.Background(), "user-1", &model.StartSessionRequest{Prompt: "a castle"})
	require.NoError(t, err)

	_, err = f.svc.Get(context.Background(), resp.ID, "user-2")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.svc.Cancel(context.Background(), resp.ID, "user-2")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.svc.Get(context.Background(), "missing", "user-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	snap, err := f.svc.Snapshot(resp.ID)
	require.NoError(t, err)
	assert.Equal(t, resp.ID, snap.ID)
}

func TestSessionService_CancelReturnsToIdle(t *testing.T) {
	f := newSessionFixture(t, blockingClient{}, SessionOptions{})

	resp, err := f.svc.Start(context.Background(), "user-1", &model.StartSessionRequest{Prompt: "a castle"})
	require.NoError(t, err)

	canceled, err := f.svc.Cancel(context.Background(), resp.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.PhaseIdle, canceled.Phase)
	assert.Empty(t, canceled.ActiveTaskID)

	again, err := f.svc.Cancel(context.Background(), resp.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.PhaseIdle, again.Phase)
}

func TestSessionService_FinishedSessionsAreEvicted(t *testing.T) {
	f := newSessionFixture(t, &stubClient{result: sampleResult}, SessionOptions{Retention: 30 * time.Millisecond})

	resp, err := f.svc.Start(context.Background(), "user-1", &model.StartSessionRequest{Prompt: "a castle"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := f.svc.Get(context.Background(), resp.ID, "user-1")
		return err == ErrSessionNotFound
	}, 2*time.Second, testInterval)
	assert.Equal(t, 0, f.svc.Count())
}

func TestSessionService_CloseRejectsNewSessions(t *testing.T) {
	f := newSessionFixture(t, blockingClient{}, SessionOptions{})

	_, err := f.svc.Start(context.Background(), "user-1", &model.StartSessionRequest{Prompt: "a castle"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.svc.Count())

	f.svc.Close()
	assert.Equal(t, 0, f.svc.Count())

	_, err = f.svc.Start(context.Background(), "user-1", &model.StartSessionRequest{Prompt: "a castle"})
	assert.ErrorIs(t, err, orchestrator.ErrClosed)
}

func TestSessionService_LocaleSelectsLabels(t *testing.T) {
	f := newSessionFixture(t, blockingClient{}, SessionOptions{DefaultLocale: "ko"})

	resp, err := f.svc.Start(context.Background(), "user-1", &model.StartSessionRequest{Prompt: "a castle"})
	require.NoError(t, err)
	assert.Equal(t, orchestrator.KoreanLabels.GeneratingPreview, resp.StatusMessage)

	resp, err = f.svc.Start(context.Background(), "user-1", &model.StartSessionRequest{Prompt: "a castle", Locale: "en-US"})
	require.NoError(t, err)
	assert.Equal(t, orchestrator.EnglishLabels.GeneratingPreview, resp.StatusMessage)
}
