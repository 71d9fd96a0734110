package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/makeasinger/modelgen/internal/model"
	"github.com/redis/go-redis/v9"
)

// RecordTTL bounds how long task and archive bookkeeping is kept
const RecordTTL = 24 * time.Hour

// TaskStore persists task bookkeeping between requests and workers
type TaskStore interface {
	SaveRecord(ctx context.Context, rec *model.TaskRecord) error
	GetRecord(ctx context.Context, taskID string) (*model.TaskRecord, error)
	SaveSimulated(ctx context.Context, task *model.SimulatedTask) error
	GetSimulated(ctx context.Context, taskID string) (*model.SimulatedTask, error)
	SaveArchive(ctx context.Context, rec *model.ArchiveRecord) error
	GetArchive(ctx context.Context, sessionID string) (*model.ArchiveRecord, error)
}

// RedisTaskStore keeps JSON records under modeltask:, simtask: and archive: keys
type RedisTaskStore struct {
	redis redis.UniversalClient
	ttl   time.Duration
}

func NewRedisTaskStore(redisClient redis.UniversalClient) *RedisTaskStore {
	return &RedisTaskStore{redis: redisClient, ttl: RecordTTL}
}

func recordKey(taskID string) string { return "modeltask:" + taskID }
func simulatedKey(taskID string) string { return "simtask:" + taskID }
func archiveKey(sessionID string) string { return "archive:" + sessionID }

func (s *RedisTaskStore) SaveRecord(ctx context.Context, rec *model.TaskRecord) error {
	return s.save(ctx, recordKey(rec.ID), rec)
}

func (s *RedisTaskStore) GetRecord(ctx context.Context, taskID string) (*model.TaskRecord, error) {
	var rec model.TaskRecord
	if err := s.load(ctx, recordKey(taskID), &rec, ErrTaskNotFound); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *RedisTaskStore) SaveSimulated(ctx context.Context, task *model.SimulatedTask) error {
	return s.save(ctx, simulatedKey(task.ID), task)
}

func (s *RedisTaskStore) GetSimulated(ctx context.Context, taskID string) (*model.SimulatedTask, error) {
	var task model.SimulatedTask
	if err := s.load(ctx, simulatedKey(taskID), &task, ErrTaskNotFound); err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *RedisTaskStore) SaveArchive(ctx context.Context, rec *model.ArchiveRecord) error {
	return s.save(ctx, archiveKey(rec.SessionID), rec)
}

func (s *RedisTaskStore) GetArchive(ctx context.Context, sessionID string) (*model.ArchiveRecord, error) {
	var rec model.ArchiveRecord
	if err := s.load(ctx, archiveKey(sessionID), &rec, ErrArchiveNotFound); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *RedisTaskStore) save(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := s.redis.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

func (s *RedisTaskStore) load(ctx context.Context, key string, v interface{}, notFound error) error {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return notFound
		}
		return fmt.Errorf("failed to load %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}
