package marketcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryCacheExpiresEntries(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "news:AAPL", []byte(`[]`), time.Minute))
	require.NoError(t, c.Set(ctx, "overview:AAPL", []byte(`{}`), 0))

	got, ok, err := c.Get(ctx, "news:AAPL")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte(`[]`), got)

	now = now.Add(2 * time.Minute)
	_, ok, err = c.Get(ctx, "news:AAPL")
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = c.Get(ctx, "overview:AAPL")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryCacheCopiesPayload(t *testing.T) {
	t.Parallel()
	c := NewMemoryCache()
	value := []byte("abc")
	require.NoError(t, c.Set(context.Background(), "k", value, time.Minute))
	value[0] = 'x'

	got, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "abc", string(got))
}
