package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/makeasinger/modelgen/internal/client"
	"github.com/makeasinger/modelgen/internal/model"
)

type memStore struct {
	mu        sync.Mutex
	records   map[string]model.TaskRecord
	simulated map[string]model.SimulatedTask
	archives  map[string]model.ArchiveRecord
}

func newMemStore() *memStore {
	return &memStore{
		records:   make(map[string]model.TaskRecord),
		simulated: make(map[string]model.SimulatedTask),
		archives:  make(map[string]model.ArchiveRecord),
	}
}

func (m *memStore) SaveRecord(_ context.Context, rec *model.TaskRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = *rec
	return nil
}

func (m *memStore) GetRecord(_ context.Context, id string) (*model.TaskRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return &rec, nil
}

func (m *memStore) SaveSimulated(_ context.Context, task *model.SimulatedTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.simulated[task.ID] = *task
	return nil
}

func (m *memStore) GetSimulated(_ context.Context, id string) (*model.SimulatedTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.simulated[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return &task, nil
}

func (m *memStore) SaveArchive(_ context.Context, rec *model.ArchiveRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archives[rec.SessionID] = *rec
	return nil
}

func (m *memStore) GetArchive(_ context.Context, id string) (*model.ArchiveRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.archives[id]
	if !ok {
		return nil, ErrArchiveNotFound
	}
	return &rec, nil
}

// finish marks a simulated task as done, the way the simulate worker would.
func (m *memStore) finish(id string, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task := m.simulated[id]
	task.Status = model.TaskStatusSucceeded
	task.Progress = 100
	task.Result = json.RawMessage(result)
	m.simulated[id] = task
}

type enqueued struct {
	task *asynq.Task
	opts []asynq.Option
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []enqueued
	err  error
}

func (q *fakeQueue) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	q.jobs = append(q.jobs, enqueued{task: task, opts: opts})
	return &asynq.TaskInfo{ID: task.Type(), Type: task.Type(), Payload: task.Payload()}, nil
}

func (q *fakeQueue) ofType(typ string) []*asynq.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*asynq.Task
	for _, j := range q.jobs {
		if j.task.Type() == typ {
			out = append(out, j.task)
		}
	}
	return out
}

type fakeGenerator struct {
	mu        sync.Mutex
	previewID string
	refineID  string
	tasks     map[string]*client.MeshyTask
	prompts   []string
	refined   []string
}

func (g *fakeGenerator) CreatePreviewTask(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return g.previewID, nil
}

func (g *fakeGenerator) CreateRefineTask(_ context.Context, previewTaskID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refined = append(g.refined, previewTaskID)
	return g.refineID, nil
}

func (g *fakeGenerator) GetTask(_ context.Context, taskID string) (*client.MeshyTask, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[taskID]
	if !ok {
		return nil, &client.APIError{Service: "meshy", StatusCode: 404, Body: "not found"}
	}
	return t, nil
}

type fakeEnhancer struct {
	out string
	err error
}

func (e *fakeEnhancer) EnhancePrompt(_ context.Context, prompt string) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	return e.out, nil
}

func (e *fakeEnhancer) IsConfigured() bool { return true }

type broadcastSpy struct {
	mu        sync.Mutex
	snapshots []model.SessionSnapshot
	completes []string
	errors    []string
}

func (b *broadcastSpy) BroadcastSnapshot(snap model.SessionSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshots = append(b.snapshots, snap)
}

func (b *broadcastSpy) BroadcastComplete(sessionID, modelURL, downloadURL string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completes = append(b.completes, modelURL)
}

func (b *broadcastSpy) BroadcastError(sessionID, code, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errors = append(b.errors, code+": "+message)
}

func (b *broadcastSpy) completed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.completes...)
}

func (b *broadcastSpy) failures() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.errors...)
}
