package summaryarchive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/cashtags/internal/domain/summarizer"
)

func TestObjectKeys(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		prefix  string
		subject string
		isTopic bool
		want    string
	}{
		{name: "ticker", prefix: "summaries", subject: "AAPL", want: "summaries/ticker/AAPL/latest.json"},
		{name: "topic with spaces", prefix: "summaries", subject: "AI Revolution", isTopic: true, want: "summaries/topic/AI%20Revolution/latest.json"},
		{name: "no prefix", subject: "BRK.B", want: "ticker/BRK.B/latest.json"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, latestKey(tt.prefix, tt.subject, tt.isTopic))
		})
	}
}

func TestSanitizeEndpoint(t *testing.T) {
	t.Parallel()
	require.Equal(t, "acct.r2.cloudflarestorage.com", sanitizeEndpoint("https://acct.r2.cloudflarestorage.com/bucket"))
	require.Equal(t, "localhost:9000", sanitizeEndpoint(" http://localhost:9000 "))
	require.Equal(t, "", sanitizeEndpoint(""))
}

func TestMemoryArchiveKeepsLatestPerSubject(t *testing.T) {
	t.Parallel()
	archive := NewMemoryArchive()
	ctx := context.Background()

	require.NoError(t, archive.Save(ctx, summarizer.Record{Subject: "AAPL", Summary: "first", CreatedAt: time.Now()}))
	require.NoError(t, archive.Save(ctx, summarizer.Record{Subject: "AAPL", Summary: "second", CreatedAt: time.Now()}))
	require.NoError(t, archive.Save(ctx, summarizer.Record{Subject: "AAPL", IsTopic: true, Summary: "topic"}))

	rec, ok, err := archive.Latest(ctx, "AAPL", false)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "second", rec.Summary)

	rec, ok, err = archive.Latest(ctx, "AAPL", true)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "topic", rec.Summary)

	_, ok, err = archive.Latest(ctx, "TSLA", false)
	require.NoError(t, err)
	require.False(t, ok)
}
