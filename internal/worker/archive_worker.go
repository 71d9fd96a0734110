package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/makeasinger/modelgen/internal/client"
	"github.com/makeasinger/modelgen/internal/model"
	"github.com/makeasinger/modelgen/internal/service"
	"github.com/rs/zerolog"
)

// signedURLExpiry is used when the store has no public URL
const signedURLExpiry = 7 * 24 * time.Hour

// ArchiveNotifier tells live subscribers where an archive landed
type ArchiveNotifier interface {
	BroadcastArchived(sessionID, archiveURL string)
}

// ArchiveWorker copies a generated model into object storage
type ArchiveWorker struct {
	store    service.TaskStore
	storage  client.StorageClient
	assets   *client.AssetFetcher
	notifier ArchiveNotifier
	logger   zerolog.Logger
	now      func() time.Time
}

func NewArchiveWorker(
	store service.TaskStore,
	storage client.StorageClient,
	assets *client.AssetFetcher,
	notifier ArchiveNotifier,
	logger zerolog.Logger,
) *ArchiveWorker {
	if assets == nil {
		assets = client.NewAssetFetcher(0)
	}
	return &ArchiveWorker{
		store:    store,
		storage:  storage,
		assets:   assets,
		notifier: notifier,
		logger:   logger.With().Str("worker", service.TaskTypeArchive).Logger(),
		now:      time.Now,
	}
}

// ArchiveKey is the object key of a session's model
func ArchiveKey(sessionID, ext string) string {
	if ext == "" {
		ext = ".glb"
	}
	return fmt.Sprintf("models/%s/model%s", sessionID, ext)
}

// ProcessTask handles model:archive tasks
func (w *ArchiveWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.ArchiveJobPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	log := w.logger.With().Str("session_id", payload.SessionID).Logger()

	if _, err := w.store.GetArchive(ctx, payload.SessionID); err == nil {
		log.Debug().Msg("already archived")
		return nil
	} else if !errors.Is(err, service.ErrArchiveNotFound) {
		return err
	}

	asset, err := w.assets.Open(ctx, payload.ModelURL)
	if err != nil {
		if errors.Is(err, client.ErrInvalidAssetURL) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}
	defer asset.Body.Close()

	key := ArchiveKey(payload.SessionID, payload.Extension)
	url, err := w.storage.Upload(ctx, key, asset.Body, asset.ContentLength, client.ModelContentType(payload.Extension))
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("upload failed")
		return err
	}
	if url == "" {
		url, err = w.storage.GetSignedURL(ctx, key, signedURLExpiry)
		if err != nil {
			return err
		}
	}

	rec := &model.ArchiveRecord{
		SessionID:  payload.SessionID,
		Store:      w.storage.Name(),
		Key:        key,
		URL:        url,
		ArchivedAt: w.now(),
	}
	if err := w.store.SaveArchive(ctx, rec); err != nil {
		if delErr := w.storage.Delete(ctx, key); delErr != nil {
			log.Warn().Err(delErr).Str("key", key).Msg("failed to remove orphaned archive")
		}
		return err
	}

	if w.notifier != nil {
		w.notifier.BroadcastArchived(payload.SessionID, url)
	}
	log.Info().Str("store", rec.Store).Str("key", key).Msg("model archived")
	return nil
}
