package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/makeasinger/modelgen/internal/model"
	"github.com/rs/zerolog"
)

// ErrCanceled is returned by Start when the run was cancelled before the
// preview task id came back.
var ErrCanceled = errors.New("session canceled")

// TaskClient performs the remote operations the orchestration needs.
type TaskClient interface {
	CreatePreview(ctx context.Context, prompt string) (string, error)
	GetStatus(ctx context.Context, taskID string) (*model.Task, error)
	CreateRefine(ctx context.Context, previewTaskID string) (string, error)
}

// Observer receives a snapshot after every state change, in order.
// Observers must not call back into the Session synchronously.
type Observer func(model.SessionSnapshot)

// Option configures a Session.
type Option func(*Session)

func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

func WithInterval(d time.Duration) Option {
	return func(s *Session) { s.interval = d }
}

func WithLabels(l Labels) Option {
	return func(s *Session) { s.labels = l }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

func WithObserver(o Observer) Option {
	return func(s *Session) { s.observers = append(s.observers, o) }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session drives one preview → refine chain per Start call.
type Session struct {
	id        string
	client    TaskClient
	interval  time.Duration
	labels    Labels
	logger    zerolog.Logger
	observers []Observer
	now       func() time.Time
	sched     *Scheduler

	mu        sync.Mutex
	notifyMu  sync.Mutex
	machine   *StageMachine
	epoch     uint64
	runCtx    context.Context
	runCancel context.CancelFunc
	done      chan struct{}
	closed    bool
	updatedAt time.Time
}

// NewSession creates an idle session bound to client.
func NewSession(client TaskClient, opts ...Option) *Session {
	s := &Session{
		client:   client,
		interval: DefaultPollInterval,
		labels:   EnglishLabels,
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.With().Str("session_id", s.id).Logger()
	s.machine = NewStageMachine(s.labels)
	s.sched = NewScheduler(client.GetStatus, s.interval, s.logger)
	s.done = make(chan struct{})
	close(s.done)
	s.updatedAt = s.now()
	return s
}

func (s *Session) ID() string { return s.id }

// Start validates prompt, abandons any previous run and submits the preview task.
// It returns once the preview task exists (polling has begun) or the run failed.
func (s *Session) Start(ctx context.Context, prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return &ValidationError{Field: "prompt", Message: s.labels.EmptyPrompt}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.abandonLocked()
	epoch := s.epoch
	runCtx, runCancel := context.WithCancel(context.Background())
	s.runCtx, s.runCancel = runCtx, runCancel
	s.done = make(chan struct{})
	s.machine.Begin()
	s.publishLocked()

	s.logger.Info().Msg("submitting preview task")

	callCtx, cancelCall := context.WithCancel(ctx)
	stopAfter := context.AfterFunc(runCtx, cancelCall)
	taskID, err := s.client.CreatePreview(callCtx, prompt)
	stopAfter()
	cancelCall()

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return ErrCanceled
	}
	switch s.machine.PreviewSubmitted(taskID, err) {
	case DecisionFail:
		runErr := s.machine.State().Err
		s.logger.Warn().Err(runErr).Msg("preview submission failed")
		s.finishLocked()
		s.publishLocked()
		return runErr
	case DecisionContinue:
		s.logger.Info().Str("task_id", taskID).Str("stage", string(model.StagePreview)).Msg("polling task")
		s.pollLocked(epoch, taskID)
	}
	s.publishLocked()
	return nil
}

// Cancel stops polling and returns an active run to idle. In-flight
// responses are ignored when they arrive. Safe to call at any time.
func (s *Session) Cancel() {
	s.mu.Lock()
	if !s.machine.State().Phase.IsActive() {
		s.mu.Unlock()
		return
	}
	s.abandonLocked()
	s.logger.Info().Msg("session canceled")
	s.publishLocked()
}

// Close tears the session down: the active run is cancelled, every polling
// goroutine has exited when Close returns, and Start fails afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	active := s.machine.State().Phase.IsActive()
	s.abandonLocked()
	if active {
		s.publishLocked()
	} else {
		s.mu.Unlock()
	}
	s.sched.Wait()
}

// Snapshot returns the current observable state.
func (s *Session) Snapshot() model.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Wait blocks until the current run reaches a terminal phase or is
// cancelled, then returns the snapshot at that point.
func (s *Session) Wait(ctx context.Context) (model.SessionSnapshot, error) {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
		return s.Snapshot(), nil
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}
}

// ActiveTaskID returns the task id being polled, or "".
func (s *Session) ActiveTaskID() string {
	return s.sched.ActiveTaskID()
}

func (s *Session) pollLocked(epoch uint64, taskID string) {
	s.sched.Start(s.runCtx, taskID,
		func(task *model.Task) { s.onTick(epoch, task) },
		func(err error) { s.onError(epoch, err) },
	)
}

func (s *Session) onTick(epoch uint64, task *model.Task) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}

	decision := s.machine.Observe(task)
	switch decision {
	case DecisionIgnore:
		s.mu.Unlock()
		return
	case DecisionContinue:
		s.publishLocked()
		return
	case DecisionComplete:
		s.sched.Stop()
		s.logger.Info().Str("task_id", task.ID).Msg("session completed")
		s.finishLocked()
		s.publishLocked()
		return
	case DecisionFail:
		s.sched.Stop()
		s.logger.Warn().Str("task_id", task.ID).Err(s.machine.State().Err).Msg("task failed")
		s.finishLocked()
		s.publishLocked()
		return
	}

	// DecisionRefine
	s.sched.Stop()
	previewID := s.machine.State().PreviewTaskID
	runCtx := s.runCtx
	s.logger.Info().Str("task_id", previewID).Msg("preview succeeded, submitting refine task")
	s.publishLocked()

	refineID, err := s.client.CreateRefine(runCtx, previewID)

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	switch s.machine.RefineSubmitted(refineID, err) {
	case DecisionFail:
		s.logger.Warn().Err(s.machine.State().Err).Msg("refine submission failed")
		s.finishLocked()
	case DecisionContinue:
		s.logger.Info().Str("task_id", refineID).Str("stage", string(model.StageRefine)).Msg("polling task")
		s.pollLocked(epoch, refineID)
	}
	s.publishLocked()
}

func (s *Session) onError(epoch uint64, err error) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	if s.machine.LookupFailed(err) != DecisionFail {
		s.mu.Unlock()
		return
	}
	s.sched.Stop()
	s.logger.Warn().Err(err).Msg("status lookup failed")
	s.finishLocked()
	s.publishLocked()
}

// abandonLocked invalidates the current run so late results are dropped.
func (s *Session) abandonLocked() {
	s.sched.Stop()
	s.epoch++
	s.machine.Cancel()
	s.finishLocked()
}

// finishLocked releases the run's context and wakes waiters.
func (s *Session) finishLocked() {
	if s.runCancel != nil {
		s.runCancel()
		s.runCancel = nil
	}
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func (s *Session) snapshotLocked() model.SessionSnapshot {
	snap := s.machine.Snapshot()
	snap.ID = s.id
	snap.UpdatedAt = s.updatedAt
	return snap
}

// publishLocked stamps the change, releases s.mu and notifies observers.
// notifyMu is taken before s.mu is released so deliveries keep state order.
func (s *Session) publishLocked() {
	s.updatedAt = s.now()
	snap := s.snapshotLocked()
	if len(s.observers) == 0 {
		s.mu.Unlock()
		return
	}
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()
	for _, o := range s.observers {
		o(snap)
	}
}
