package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/makeasinger/modelgen/internal/model"
	"github.com/makeasinger/modelgen/internal/service"
)

type memStore struct {
	mu         sync.Mutex
	records    map[string]model.TaskRecord
	simulated  map[string]model.SimulatedTask
	archives   map[string]model.ArchiveRecord
	saves      []model.SimulatedTask
	archiveErr error
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
		return nil, service.ErrTaskNotFound
	}
	return &rec, nil
}

func (m *memStore) SaveSimulated(_ context.Context, task *model.SimulatedTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.simulated[task.ID] = *task
	m.saves = append(m.saves, *task)
	return nil
}

func (m *memStore) GetSimulated(_ context.Context, id string) (*model.SimulatedTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.simulated[id]
	if !ok {
		return nil, service.ErrTaskNotFound
	}
	return &task, nil
}

func (m *memStore) SaveArchive(_ context.Context, rec *model.ArchiveRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.archiveErr != nil {
		return m.archiveErr
	}
	m.archives[rec.SessionID] = *rec
	return nil
}

func (m *memStore) GetArchive(_ context.Context, id string) (*model.ArchiveRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.archives[id]
	if !ok {
		return nil, service.ErrArchiveNotFound
	}
	return &rec, nil
}

func (m *memStore) progressHistory() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, 0, len(m.saves))
	for _, s := range m.saves {
		out = append(out, s.Progress)
	}
	return out
}

type memObject struct {
	data        []byte
	contentType string
}

type memStorage struct {
	mu        sync.Mutex
	publicURL string
	objects   map[string]memObject
	deleted   []string
	uploadErr error
}

func newMemStorage(publicURL string) *memStorage {
	return &memStorage{publicURL: publicURL, objects: make(map[string]memObject)}
}

func (s *memStorage) Name() string { return "mem" }

func (s *memStorage) Upload(_ context.Context, key string, body io.Reader, _ int64, contentType string) (string, error) {
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.objects[key] = memObject{data: buf.Bytes(), contentType: contentType}
	s.mu.Unlock()
	return s.GetPublicURL(key), nil
}

func (s *memStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *memStorage) GetSignedURL(_ context.Context, key string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("https://signed.example/%s?expires=%d", key, int(expiry.Seconds())), nil
}

func (s *memStorage) GetPublicURL(key string) string {
	if s.publicURL == "" {
		return ""
	}
	return s.publicURL + "/" + key
}

func (s *memStorage) object(key string) (memObject, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	return obj, ok
}

type archivedEvent struct {
	sessionID string
	url       string
}

type notifierSpy struct {
	mu     sync.Mutex
	events []archivedEvent
}

func (n *notifierSpy) BroadcastArchived(sessionID, archiveURL string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, archivedEvent{sessionID, archiveURL})
}

func (n *notifierSpy) all() []archivedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]archivedEvent(nil), n.events...)
}
