package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/makeasinger/modelgen/internal/events"
	"github.com/makeasinger/modelgen/internal/model"
	"github.com/makeasinger/modelgen/internal/orchestrator"
	"github.com/rs/zerolog"
)

// Broadcaster pushes session updates to live subscribers
type Broadcaster interface {
	BroadcastSnapshot(snap model.SessionSnapshot)
	BroadcastComplete(sessionID, modelURL, downloadURL string)
	BroadcastError(sessionID, code, message string)
}

// ClientFactory returns the TaskClient a new session runs against
type ClientFactory func(ownerID string, enhance bool) orchestrator.TaskClient

// SessionOptions tunes a SessionService
type SessionOptions struct {
	PollInterval  time.Duration
	Retention     time.Duration
	DefaultLocale string
	// Archive enables the archive job on completion
	Archive bool
}

type sessionEntry struct {
	session *orchestrator.Session
	ownerID string
	evict   *time.Timer
}

// SessionService hosts orchestration sessions in memory, one per submission
type SessionService struct {
	newClient ClientFactory
	hub       Broadcaster
	publisher events.Publisher
	queue     Enqueuer
	store     TaskStore
	opts      SessionOptions
	logger    zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*sessionEntry
	closed   bool
}

func NewSessionService(
	newClient ClientFactory,
	hub Broadcaster,
	publisher events.Publisher,
	queue Enqueuer,
	store TaskStore,
	opts SessionOptions,
	logger zerolog.Logger,
) *SessionService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if opts.Retention <= 0 {
		opts.Retention = 30 * time.Minute
	}
	return &SessionService{
		newClient: newClient,
		hub:       hub,
		publisher: publisher,
		queue:     queue,
		store:     store,
		opts:      opts,
		logger:    logger.With().Str("component", "session_service").Logger(),
		sessions:  make(map[string]*sessionEntry),
	}
}

// Start creates a session and submits its preview task. Validation errors
// are returned as is; any other failure is reported in the snapshot.
func (s *SessionService) Start(ctx context.Context, ownerID string, req *model.StartSessionRequest) (*model.SessionResponse, error) {
	id := uuid.New().String()
	locale := req.Locale
	if locale == "" {
		locale = s.opts.DefaultLocale
	}

	session := orchestrator.NewSession(s.newClient(ownerID, req.Enhance),
		orchestrator.WithID(id),
		orchestrator.WithInterval(s.opts.PollInterval),
		orchestrator.WithLabels(orchestrator.LabelsFor(locale)),
		orchestrator.WithLogger(s.logger),
		orchestrator.WithObserver(func(snap model.SessionSnapshot) { s.observe(ownerID, snap) }),
	)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		session.Close()
		return nil, orchestrator.ErrClosed
	}
	s.sessions[id] = &sessionEntry{session: session, ownerID: ownerID}
	s.mu.Unlock()

	err := session.Start(ctx, req.Prompt)
	if errors.Is(err, orchestrator.ErrValidation) {
		s.remove(id)
		return nil, err
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", id).Msg("session failed to start")
	}

	return s.response(ctx, session.Snapshot()), nil
}

// Get returns the current state of a session owned by ownerID
func (s *SessionService) Get(ctx context.Context, id, ownerID string) (*model.SessionResponse, error) {
	session, err := s.lookup(id, ownerID)
	if err != nil {
		return nil, err
	}
	return s.response(ctx, session.Snapshot()), nil
}

// Cancel stops an active session; finished sessions are returned unchanged
func (s *SessionService) Cancel(ctx context.Context, id, ownerID string) (*model.SessionResponse, error) {
	session, err := s.lookup(id, ownerID)
	if err != nil {
		return nil, err
	}
	session.Cancel()
	return s.response(ctx, session.Snapshot()), nil
}

// Snapshot returns the state of a session without an ownership check
func (s *SessionService) Snapshot(id string) (model.SessionSnapshot, error) {
	s.mu.Lock()
	entry, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return model.SessionSnapshot{}, ErrSessionNotFound
	}
	return entry.session.Snapshot(), nil
}

// Count returns the number of hosted sessions
func (s *SessionService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close cancels every session and waits for their polling to stop
func (s *SessionService) Close() {
	s.mu.Lock()
	s.closed = true
	entries := make([]*sessionEntry, 0, len(s.sessions))
	for id, e := range s.sessions {
		if e.evict != nil {
			e.evict.Stop()
		}
		entries = append(entries, e)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, e := range entries {
		e.session.Close()
	}
	s.publisher.Close()
}

func (s *SessionService) lookup(id, ownerID string) (*orchestrator.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[id]
	if !ok || entry.ownerID != ownerID {
		return nil, ErrSessionNotFound
	}
	return entry.session, nil
}

func (s *SessionService) remove(id string) {
	s.mu.Lock()
	entry, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if ok {
		entry.session.Close()
		s.logger.Debug().Str("session_id", id).Msg("session evicted")
	}
}

// observe runs on the session's notification path and must not call back
// into the session.
func (s *SessionService) observe(ownerID string, snap model.SessionSnapshot) {
	if s.hub != nil {
		s.hub.BroadcastSnapshot(snap)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.publisher.Publish(ctx, events.SessionEvent{
		SessionID: snap.ID,
		OwnerID:   ownerID,
		Snapshot:  snap,
		SentAt:    snap.UpdatedAt,
	}); err != nil {
		s.logger.Warn().Err(err).Str("session_id", snap.ID).Msg("failed to publish session event")
	}

	switch snap.Phase {
	case model.PhaseCompleted:
		s.completed(ctx, snap)
		s.scheduleEviction(snap.ID)
	case model.PhaseFailed:
		if s.hub != nil {
			s.hub.BroadcastError(snap.ID, "GENERATION_FAILED", snap.Error)
		}
		s.scheduleEviction(snap.ID)
	case model.PhaseIdle:
		s.scheduleEviction(snap.ID)
	}
}

func (s *SessionService) completed(ctx context.Context, snap model.SessionSnapshot) {
	result, err := model.ParseModelResult(snap.Result)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", snap.ID).Msg("unreadable model result")
		return
	}
	modelURL := result.ModelURL()

	if s.hub != nil {
		s.hub.BroadcastComplete(snap.ID, modelURL, result.DownloadPath())
	}

	if !s.opts.Archive || s.queue == nil || modelURL == "" {
		return
	}
	task, err := newArchiveTask(model.ArchiveJobPayload{
		SessionID: snap.ID,
		ModelURL:  modelURL,
		Extension: result.Extension(),
	})
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", snap.ID).Msg("failed to build archive task")
		return
	}
	if _, err := s.queue.Enqueue(task, archiveOptions(snap.ID)...); err != nil {
		s.logger.Warn().Err(err).Str("session_id", snap.ID).Msg("failed to enqueue archive task")
	}
}

func (s *SessionService) scheduleEviction(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[id]
	if !ok || s.closed {
		return
	}
	if entry.evict != nil {
		entry.evict.Stop()
	}
	entry.evict = time.AfterFunc(s.opts.Retention, func() { s.remove(id) })
}

func (s *SessionService) response(ctx context.Context, snap model.SessionSnapshot) *model.SessionResponse {
	resp := &model.SessionResponse{SessionSnapshot: snap}
	if snap.Phase != model.PhaseCompleted {
		return resp
	}

	if result, err := model.ParseModelResult(snap.Result); err == nil {
		resp.ModelURL = result.ModelURL()
		resp.DownloadURL = result.DownloadPath()
	}
	if s.store != nil {
		if rec, err := s.store.GetArchive(ctx, snap.ID); err == nil {
			resp.ArchiveURL = rec.URL
		}
	}
	return resp
}
