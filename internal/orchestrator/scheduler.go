package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/makeasinger/modelgen/internal/model"
	"github.com/rs/zerolog"
)

// DefaultPollInterval is the status check interval for model tasks.
const DefaultPollInterval = 5 * time.Second

var errEmptyStatus = errors.New("empty status response")

// StatusFunc fetches the current snapshot of a task.
type StatusFunc func(ctx context.Context, taskID string) (*model.Task, error)

// Scheduler polls exactly one task id at a fixed interval.
//
// The first check runs one interval after Start. Checks run on the loop
// goroutine, so at most one is outstanding; ticks that fire during a slow
// check collapse into one. A result that arrives after Stop, or after a
// newer Start, is dropped without calling back.
type Scheduler struct {
	interval time.Duration
	fetch    StatusFunc
	logger   zerolog.Logger

	mu     sync.Mutex
	gen    uint64
	taskID string
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler. A non-positive interval selects DefaultPollInterval.
func NewScheduler(fetch StatusFunc, interval time.Duration, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Scheduler{
		interval: interval,
		fetch:    fetch,
		logger:   logger,
	}
}

// Start stops any previous target and begins polling taskID.
// onTick and onError run on the polling goroutine and may call Stop or Start.
func (s *Scheduler) Start(parent context.Context, taskID string, onTick func(*model.Task), onError func(error)) {
	s.mu.Lock()
	s.stopLocked()
	gen := s.gen
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.taskID = taskID
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(ctx, gen, taskID, onTick, onError)
}

// Stop cancels the current target. It is idempotent and does not wait for
// an outstanding check to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()
}

// ActiveTaskID returns the polled task id, or "" when stopped.
func (s *Scheduler) ActiveTaskID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taskID
}

// Wait blocks until every polling goroutine has exited. Must not be called from a callback.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.taskID = ""
	s.gen++
}

func (s *Scheduler) live(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

func (s *Scheduler) run(ctx context.Context, gen uint64, taskID string, onTick func(*model.Task), onError func(error)) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		attempt++
		task, err := s.fetch(ctx, taskID)
		if err == nil && task == nil {
			err = errEmptyStatus
		}
		if !s.live(gen) {
			s.logger.Debug().Str("task_id", taskID).Int("attempt", attempt).Msg("poll result dropped after stop")
			return
		}

		if err != nil {
			s.logger.Debug().Str("task_id", taskID).Int("attempt", attempt).Err(err).Msg("poll failed")
			onError(err)
			continue
		}

		s.logger.Debug().
			Str("task_id", taskID).
			Int("attempt", attempt).
			Str("status", string(task.Status)).
			Int("progress", task.Progress).
			Msg("poll")
		onTick(task)
	}
}
