package fieldsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fieldops/fieldsync/fieldstore"
)

func TestQueueFIFOOrdering(t *testing.T) {
	ctx := context.Background()
	queue := NewQueue(fieldstore.NewFlatStore())

	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := base
	queue.now = func() time.Time {
		t := clock
		clock = clock.Add(time.Second)
		return t
	}

	_, err := queue.Enqueue(ctx, ActionUpdateStatus, StatusUpdatePayload{OrderID: "1", Status: fieldstore.OrderInProgress})
	require.NoError(t, err)
	_, err = queue.Enqueue(ctx, ActionCompleteOrder, StatusUpdatePayload{OrderID: "1"})
	require.NoError(t, err)
	_, err = queue.Enqueue(ctx, ActionLocationUpdate, LocationPayload{Latitude: 60.17, Longitude: 24.94, RecordedAt: base})
	require.NoError(t, err)

	actions, err := queue.DequeueAll(ctx)
	require.NoError(t, err)
	require.Len(t, actions, 3)
	require.Equal(t, ActionUpdateStatus, actions[0].Type)
	require.Equal(t, ActionCompleteOrder, actions[1].Type)
	require.Equal(t, ActionLocationUpdate, actions[2].Type)
	for _, a := range actions {
		require.Zero(t, a.RetryCount)
	}
}

func TestQueueEnqueueAssignsSequenceAndTimestamp(t *testing.T) {
	ctx := context.Background()
	queue := NewQueue(fieldstore.NewFlatStore())

	action, err := queue.Enqueue(ctx, ActionExecuteDelivery, ExecutePayload{OrderID: "42"})
	require.NoError(t, err)
	require.NotZero(t, action.ID)
	require.False(t, action.Timestamp.IsZero())
	require.JSONEq(t, `{"order_id":"42","cabinets":null}`, string(action.Payload))
}

func TestQueueIncrementRetryExhaustsAfterMax(t *testing.T) {
	ctx := context.Background()
	queue := NewQueue(fieldstore.NewFlatStore())

	action, err := queue.Enqueue(ctx, ActionUpdateStatus, StatusUpdatePayload{OrderID: "1"})
	require.NoError(t, err)

	for i := 1; i <= MaxRetries; i++ {
		exhausted, err := queue.IncrementRetry(ctx, action)
		require.NoError(t, err)
		require.False(t, exhausted, "attempt %d should stay within budget", i)

		persisted, err := queue.DequeueAll(ctx)
		require.NoError(t, err)
		require.Equal(t, i, persisted[0].RetryCount)
	}

	// The 4th failure exceeds the budget.
	exhausted, err := queue.IncrementRetry(ctx, action)
	require.NoError(t, err)
	require.True(t, exhausted)
}

func TestQueueRemove(t *testing.T) {
	ctx := context.Background()
	queue := NewQueue(fieldstore.NewFlatStore())

	action, err := queue.Enqueue(ctx, ActionUpdateStatus, StatusUpdatePayload{OrderID: "1"})
	require.NoError(t, err)
	require.NoError(t, queue.Remove(ctx, action.ID))

	actions, err := queue.DequeueAll(ctx)
	require.NoError(t, err)
	require.Empty(t, actions)
}
