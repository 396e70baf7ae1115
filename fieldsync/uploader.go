// Copyright 2026 FieldOps
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fieldops/fieldsync/fieldstore"
)

// RetentionDays bounds local photo storage: uploaded photos older than this
// are purged by the sweep. Photos that have not been uploaded are kept
// forever.
const RetentionDays = 7

// Uploader persists captured photos and moves their binaries to the server,
// immediately when online and through the action queue otherwise.
type Uploader struct {
	store  fieldstore.Backend
	remote Remote
	queue  *Queue
	online func() bool
	logger *slog.Logger
	now    func() time.Time
}

// NewUploader builds a blob uploader. online reports current connectivity
// (typically Monitor.Online).
func NewUploader(store fieldstore.Backend, remote Remote, queue *Queue, online func() bool, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{
		store:  store,
		remote: remote,
		queue:  queue,
		online: online,
		logger: logger,
		now:    time.Now,
	}
}

// Capture persists a freshly taken photo. When online it attempts the
// upload immediately; when offline (or when the immediate attempt fails) it
// enqueues an upload-photo action so the transfer runs under the queue's
// retry policy.
func (u *Uploader) Capture(ctx context.Context, orderID string, data []byte) (*fieldstore.Photo, error) {
	photo := &fieldstore.Photo{
		ID:        uuid.New().String(),
		OrderID:   orderID,
		Data:      data,
		CreatedAt: u.now(),
	}
	// Durability first: the photo must exist locally before any transfer.
	if err := u.store.PutPhoto(ctx, photo); err != nil {
		return nil, fmt.Errorf("failed to persist captured photo: %w", err)
	}

	if u.online != nil && u.online() {
		err := u.Upload(ctx, photo)
		if err == nil {
			return photo, nil
		}
		u.logger.Warn("immediate photo upload failed, deferring to queue",
			"photo", photo.ID, "order", orderID, "error", err)
	}

	if _, err := u.queue.Enqueue(ctx, ActionUploadPhoto, PhotoUploadPayload{PhotoID: photo.ID}); err != nil {
		return nil, fmt.Errorf("failed to enqueue photo upload: %w", err)
	}
	return photo, nil
}

// Upload transmits one photo and marks it uploaded on success.
func (u *Uploader) Upload(ctx context.Context, photo *fieldstore.Photo) error {
	if photo.Uploaded {
		return nil
	}
	if err := u.remote.UploadPhoto(ctx, photo); err != nil {
		return err
	}
	if err := u.store.MarkPhotoUploaded(ctx, photo.ID); err != nil {
		return fmt.Errorf("failed to mark photo %s uploaded: %w", photo.ID, err)
	}
	return nil
}

// UploadPending pushes every photo still waiting for transfer. Per-photo
// failures are contained; auth failures abort since every subsequent
// attempt would fail the same way.
func (u *Uploader) UploadPending(ctx context.Context) error {
	photos, err := u.store.PhotosByUploadState(ctx, false)
	if err != nil {
		return fmt.Errorf("failed to query pending photos: %w", err)
	}
	for _, photo := range photos {
		if err := u.Upload(ctx, photo); err != nil {
			if ClassOf(err) == ClassAuth {
				return err
			}
			u.logger.Warn("photo upload failed", "photo", photo.ID, "order", photo.OrderID, "error", err)
		}
	}
	return nil
}

// Sweep deletes uploaded photos older than the retention window and returns
// how many were purged. Photos with Uploaded=false are never touched.
func (u *Uploader) Sweep(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.AddDate(0, 0, -RetentionDays)
	photos, err := u.store.PhotosByUploadState(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("failed to query uploaded photos: %w", err)
	}
	purged := 0
	for _, photo := range photos {
		if !photo.CreatedAt.Before(cutoff) {
			continue
		}
		if err := u.store.DeletePhoto(ctx, photo.ID); err != nil {
			return purged, fmt.Errorf("failed to purge photo %s: %w", photo.ID, err)
		}
		purged++
	}
	if purged > 0 {
		u.logger.Info("purged uploaded photos past retention", "count", purged)
	}
	return purged, nil
}
