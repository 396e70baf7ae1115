package fieldsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fieldops/fieldsync/fieldstore"
)

func TestServerWinsIsDeterministic(t *testing.T) {
	t1 := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	local := &fieldstore.ServiceOrder{
		ID: "7", Status: fieldstore.OrderInProgress,
		SyncStatus: fieldstore.SyncPending, LastModified: t1,
	}
	server := &fieldstore.ServiceOrder{
		ID: "7", Status: fieldstore.OrderCompleted,
		SyncStatus: fieldstore.SyncPending, LastModified: t1.Add(time.Hour),
	}

	for i := 0; i < 3; i++ {
		resolved := ServerWins{}.Resolve(local, server)
		require.Equal(t, server.Status, resolved.Status)
		require.True(t, server.LastModified.Equal(resolved.LastModified))
		require.Equal(t, fieldstore.SyncSynced, resolved.SyncStatus)
	}
}

func TestServerWinsReturnsCopy(t *testing.T) {
	server := &fieldstore.ServiceOrder{
		ID: "7", Status: fieldstore.OrderCompleted,
		Cabinets: []fieldstore.Cabinet{{ID: "cab-1"}},
	}
	resolved := ServerWins{}.Resolve(nil, server)
	resolved.Cabinets[0].Executed = true
	require.False(t, server.Cabinets[0].Executed)
}
