package fieldsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fieldops/fieldsync/fieldstore"
)

func newTestUploader(t *testing.T, online bool) (*Uploader, fieldstore.Backend, *Queue, *fakeRemote) {
	t.Helper()
	store := fieldstore.NewFlatStore()
	remote := &fakeRemote{}
	queue := NewQueue(store)
	uploader := NewUploader(store, remote, queue, func() bool { return online }, nil)
	return uploader, store, queue, remote
}

func TestCaptureOfflinePersistsAndEnqueues(t *testing.T) {
	ctx := context.Background()
	uploader, store, queue, remote := newTestUploader(t, false)

	photo, err := uploader.Capture(ctx, "ord-42", []byte{0xff, 0xd8})
	require.NoError(t, err)
	require.NotEmpty(t, photo.ID)

	stored, err := store.GetPhoto(ctx, photo.ID)
	require.NoError(t, err)
	require.False(t, stored.Uploaded)
	require.Equal(t, []byte{0xff, 0xd8}, stored.Data)

	actions, err := queue.DequeueAll(ctx)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, ActionUploadPhoto, actions[0].Type)

	require.Empty(t, remote.photos, "no transfer may happen while offline")
}

func TestCaptureOnlineUploadsImmediately(t *testing.T) {
	ctx := context.Background()
	uploader, store, queue, remote := newTestUploader(t, true)

	photo, err := uploader.Capture(ctx, "ord-42", []byte{1})
	require.NoError(t, err)

	require.Equal(t, []string{photo.ID}, remote.photos)
	stored, err := store.GetPhoto(ctx, photo.ID)
	require.NoError(t, err)
	require.True(t, stored.Uploaded)

	actions, err := queue.DequeueAll(ctx)
	require.NoError(t, err)
	require.Empty(t, actions, "successful immediate upload needs no queue entry")
}

func TestCaptureOnlineFallsBackToQueueOnFailure(t *testing.T) {
	ctx := context.Background()
	uploader, store, queue, remote := newTestUploader(t, true)
	remote.photoErr = &RemoteError{Class: ClassTransient, Status: 503, Msg: "unavailable"}

	photo, err := uploader.Capture(ctx, "ord-42", []byte{1})
	require.NoError(t, err, "capture itself must succeed even when the transfer fails")

	stored, err := store.GetPhoto(ctx, photo.ID)
	require.NoError(t, err)
	require.False(t, stored.Uploaded)

	actions, err := queue.DequeueAll(ctx)
	require.NoError(t, err)
	require.Len(t, actions, 1)
}

func TestSweepPurgesOnlyUploadedPhotosPastRetention(t *testing.T) {
	ctx := context.Background()
	uploader, store, _, _ := newTestUploader(t, true)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -(RetentionDays + 1))
	boundary := now.AddDate(0, 0, -RetentionDays) // exactly at the window edge: kept

	photos := []*fieldstore.Photo{
		{ID: "old-uploaded", OrderID: "1", Data: []byte{1}, Uploaded: true, CreatedAt: old},
		{ID: "old-pending", OrderID: "1", Data: []byte{2}, Uploaded: false, CreatedAt: old},
		{ID: "edge-uploaded", OrderID: "1", Data: []byte{3}, Uploaded: true, CreatedAt: boundary},
		{ID: "fresh-uploaded", OrderID: "1", Data: []byte{4}, Uploaded: true, CreatedAt: now.Add(-time.Hour)},
	}
	for _, p := range photos {
		require.NoError(t, store.PutPhoto(ctx, p))
	}

	purged, err := uploader.Sweep(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, purged)

	_, err = store.GetPhoto(ctx, "old-uploaded")
	require.ErrorIs(t, err, fieldstore.ErrNotFound)

	for _, id := range []string{"old-pending", "edge-uploaded", "fresh-uploaded"} {
		_, err := store.GetPhoto(ctx, id)
		require.NoError(t, err, "photo %s must survive the sweep", id)
	}
}

func TestUploadPendingContainsPerPhotoFailures(t *testing.T) {
	ctx := context.Background()
	uploader, store, _, remote := newTestUploader(t, true)

	now := time.Now()
	require.NoError(t, store.PutPhoto(ctx, &fieldstore.Photo{ID: "a", OrderID: "1", Data: []byte{1}, CreatedAt: now}))
	require.NoError(t, store.PutPhoto(ctx, &fieldstore.Photo{ID: "b", OrderID: "1", Data: []byte{2}, CreatedAt: now.Add(time.Second)}))

	// All transfers fail transiently: both photos stay pending, no error out.
	remote.photoErr = &RemoteError{Class: ClassTransient, Status: 500, Msg: "boom"}
	require.NoError(t, uploader.UploadPending(ctx))
	pending, err := store.PhotosByUploadState(ctx, false)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	// Auth failures abort instead.
	remote.photoErr = &RemoteError{Class: ClassAuth, Status: 401, Msg: "expired"}
	require.Error(t, uploader.UploadPending(ctx))

	remote.photoErr = nil
	require.NoError(t, uploader.UploadPending(ctx))
	pending, err = store.PhotosByUploadState(ctx, false)
	require.NoError(t, err)
	require.Empty(t, pending)
}
