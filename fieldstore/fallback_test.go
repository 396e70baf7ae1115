package fieldstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFlatStoreReportsDegradedCapabilities(t *testing.T) {
	store := NewFlatStore()
	caps := store.Capabilities()
	require.False(t, caps.Durable)
	require.False(t, caps.Indexed)
}

// The fallback must behave like the SQLite store apart from durability, so
// the engine can run on top of either.
func TestFlatStoreBehaviorParity(t *testing.T) {
	ctx := context.Background()
	store := NewFlatStore()

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.PutOrder(ctx, &ServiceOrder{
		ID: "ord-1", Status: OrderPending, SyncStatus: SyncPending, LastModified: now,
	}))
	require.NoError(t, store.PutOrder(ctx, &ServiceOrder{
		ID: "ord-2", Status: OrderCompleted, SyncStatus: SyncSynced, LastModified: now,
	}))

	dirty, err := store.OrdersBySyncStatus(ctx, SyncPending)
	require.NoError(t, err)
	require.Len(t, dirty, 1)
	require.Equal(t, "ord-1", dirty[0].ID)

	require.NoError(t, store.ApplyServerOrder(ctx, &ServiceOrder{
		ID: "ord-1", Status: OrderInProgress, SyncStatus: SyncPending, LastModified: now,
	}))
	got, err := store.GetOrder(ctx, "ord-1")
	require.NoError(t, err)
	require.Equal(t, SyncSynced, got.SyncStatus)

	_, err = store.GetOrder(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	// Action sequence ids are assigned and FIFO order holds.
	a1 := &OfflineAction{Type: "update-status", Timestamp: now}
	a2 := &OfflineAction{Type: "complete-order", Timestamp: now.Add(time.Second)}
	require.NoError(t, store.AppendAction(ctx, a1))
	require.NoError(t, store.AppendAction(ctx, a2))
	require.Equal(t, int64(1), a1.ID)
	require.Equal(t, int64(2), a2.ID)

	actions, err := store.ActionsByTimestamp(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, []int64{actions[0].ID, actions[1].ID})

	require.NoError(t, store.DeleteAction(ctx, 1))
	actions, err = store.ActionsByTimestamp(ctx)
	require.NoError(t, err)
	require.Len(t, actions, 1)

	// Photos.
	require.NoError(t, store.PutPhoto(ctx, &Photo{ID: "ph-1", OrderID: "ord-1", Data: []byte{1}, CreatedAt: now}))
	pending, err := store.PhotosByUploadState(ctx, false)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, store.MarkPhotoUploaded(ctx, "ph-1"))
	uploaded, err := store.PhotosByUploadState(ctx, true)
	require.NoError(t, err)
	require.Len(t, uploaded, 1)

	// Sync watermark.
	require.NoError(t, store.SetLastSyncAt(ctx, now))
	at, err := store.LastSyncAt(ctx)
	require.NoError(t, err)
	require.True(t, now.Equal(at))
}

func TestFlatStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewFlatStore()

	order := &ServiceOrder{
		ID: "ord-1", Status: OrderPending, SyncStatus: SyncPending,
		Cabinets: []Cabinet{{ID: "cab-1", Executed: false}},
	}
	require.NoError(t, store.PutOrder(ctx, order))

	got, err := store.GetOrder(ctx, "ord-1")
	require.NoError(t, err)
	got.Cabinets[0].Executed = true
	got.Status = OrderCompleted

	again, err := store.GetOrder(ctx, "ord-1")
	require.NoError(t, err)
	require.False(t, again.Cabinets[0].Executed, "mutating a returned record must not affect the store")
	require.Equal(t, OrderPending, again.Status)
}
