package sessionstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreForgetsExpiredSessions(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Revoke(ctx, "sid-1", now.Add(time.Hour)))
	require.NoError(t, store.Revoke(ctx, "sid-past", now.Add(-time.Minute)))

	revoked, err := store.Revoked(ctx, "sid-1")
	require.NoError(t, err)
	require.True(t, revoked)
	revoked, err = store.Revoked(ctx, "sid-past")
	require.NoError(t, err)
	require.False(t, revoked)
	revoked, err = store.Revoked(ctx, "unknown")
	require.NoError(t, err)
	require.False(t, revoked)

	now = now.Add(2 * time.Hour)
	revoked, err = store.Revoked(ctx, "sid-1")
	require.NoError(t, err)
	require.False(t, revoked)

	require.NoError(t, store.Revoke(ctx, "sid-2", now.Add(time.Hour)))
	require.NotContains(t, store.revoked, "sid-1")
}
