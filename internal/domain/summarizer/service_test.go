package summarizer_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/cashtags/internal/domain/summarizer"
	apperrors "github.com/yanqian/cashtags/pkg/errors"
)

func TestStreamSummaryForwardsDeltasAndArchives(t *testing.T) {
	client := &stubChatClient{deltas: []string{"Apple ", "", "is ", "up."}}
	archive := newStubArchive()
	svc := summarizer.NewService(testConfig(), client, wordCounter{}, archive, newTestLogger())

	stream, err := svc.StreamSummary(context.Background(), summarizer.Request{
		Ticker: "$aapl",
		Posts: []summarizer.Post{
			{Hours: 1, Text: "iPhone sales beat"},
			{Hours: 5, Text: "Services revenue up"},
		},
	})
	require.NoError(t, err)

	var got []string
	for chunk := range stream {
		require.NoError(t, chunk.Err)
		got = append(got, chunk.Text)
	}
	require.Equal(t, []string{"Apple ", "is ", "up."}, got)

	req := client.lastRequest()
	require.Len(t, req.Messages, 2)
	require.Equal(t, "system", req.Messages[0].Role)
	require.Contains(t, req.Messages[0].Content, "ticker AAPL")
	require.Equal(t, "- (1h ago) iPhone sales beat\n- (5h ago) Services revenue up", req.Messages[1].Content)

	require.Eventually(t, func() bool {
		rec, ok := archive.get("AAPL", false)
		return ok && rec.Summary == "Apple is up."
	}, time.Second, 10*time.Millisecond)
}

func TestStreamSummaryUsesTopicPrompt(t *testing.T) {
	client := &stubChatClient{deltas: []string{"ok"}}
	svc := summarizer.NewService(testConfig(), client, wordCounter{}, nil, newTestLogger())

	stream, err := svc.StreamSummary(context.Background(), summarizer.Request{
		Ticker:  "AI Revolution",
		IsTopic: true,
		Posts:   []summarizer.Post{{Hours: 2, Text: "agents everywhere"}},
	})
	require.NoError(t, err)
	for range stream {
	}

	require.Contains(t, client.lastRequest().Messages[0].Content, "topic AI Revolution")
}

func TestStreamSummaryRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		req  summarizer.Request
		msg  string
	}{
		{name: "missing ticker", req: summarizer.Request{Posts: []summarizer.Post{{Text: "x"}}}, msg: "missing posts or ticker"},
		{name: "missing posts", req: summarizer.Request{Ticker: "AAPL"}, msg: "missing posts or ticker"},
		{name: "blank posts", req: summarizer.Request{Ticker: "AAPL", Posts: []summarizer.Post{{Text: " \n "}}}, msg: "posts contain no text"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := &stubChatClient{}
			svc := summarizer.NewService(testConfig(), client, wordCounter{}, nil, newTestLogger())
			_, err := svc.StreamSummary(context.Background(), tt.req)
			require.Error(t, err)
			require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
			require.Contains(t, err.Error(), tt.msg)
			require.Zero(t, client.calls())
		})
	}
}

func TestStreamSummaryReportsMidStreamFailure(t *testing.T) {
	client := &stubChatClient{deltas: []string{"partial"}, failAfter: errors.New("connection reset")}
	archive := newStubArchive()
	svc := summarizer.NewService(testConfig(), client, wordCounter{}, archive, newTestLogger())

	stream, err := svc.StreamSummary(context.Background(), summarizer.Request{
		Ticker: "TSLA",
		Posts:  []summarizer.Post{{Hours: 1, Text: "deliveries"}},
	})
	require.NoError(t, err)

	var chunks []summarizer.StreamChunk
	for chunk := range stream {
		chunks = append(chunks, chunk)
	}
	require.Len(t, chunks, 2)
	require.Equal(t, "partial", chunks[0].Text)
	require.Error(t, chunks[1].Err)
	require.True(t, apperrors.IsCode(chunks[1].Err, apperrors.CodeLLM))

	time.Sleep(20 * time.Millisecond)
	_, ok := archive.get("TSLA", false)
	require.False(t, ok)
}

func TestStreamSummaryStopsWhenClientLeaves(t *testing.T) {
	client := &stubChatClient{deltas: []string{"a", "b", "c"}}
	svc := summarizer.NewService(testConfig(), client, wordCounter{}, nil, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := svc.StreamSummary(ctx, summarizer.Request{
		Ticker: "MSFT",
		Posts:  []summarizer.Post{{Hours: 1, Text: "cloud"}},
	})
	require.NoError(t, err)

	first := <-stream
	require.Equal(t, "a", first.Text)
	cancel()

	require.Eventually(t, func() bool {
		_, open := <-stream
		return !open
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, client.streamClosed, time.Second, 5*time.Millisecond)
}

func TestStreamSummaryWrapsOpenFailure(t *testing.T) {
	client := &stubChatClient{openErr: errors.New("401 unauthorized")}
	svc := summarizer.NewService(testConfig(), client, wordCounter{}, nil, newTestLogger())

	_, err := svc.StreamSummary(context.Background(), summarizer.Request{
		Ticker: "NVDA",
		Posts:  []summarizer.Post{{Text: "chips"}},
	})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, apperrors.CodeLLM))
}

func TestSummarizeReturnsUsage(t *testing.T) {
	client := &stubChatClient{completion: "  Apple is up on strong sales.  "}
	svc := summarizer.NewService(testConfig(), client, wordCounter{}, nil, newTestLogger())

	resp, err := svc.Summarize(context.Background(), summarizer.Request{
		Ticker: "AAPL",
		Posts:  []summarizer.Post{{Hours: 1, Text: "sales beat"}},
	})
	require.NoError(t, err)
	require.Equal(t, "AAPL", resp.Subject)
	require.Equal(t, "Apple is up on strong sales.", resp.Summary)
	require.NotNil(t, resp.TokenUsage)
	require.Equal(t, 6, resp.TokenUsage.CompletionTokens)
	require.Equal(t, resp.TokenUsage.PromptTokens+6, resp.TokenUsage.TotalTokens)
}

func TestSummarizeRespectsTokenBudget(t *testing.T) {
	cfg := testConfig()
	cfg.MaxInputTokens = 20
	client := &stubChatClient{completion: "fine"}
	svc := summarizer.NewService(cfg, client, wordCounter{}, nil, newTestLogger())

	posts := make([]summarizer.Post, 0, 10)
	for i := 0; i < 10; i++ {
		posts = append(posts, summarizer.Post{Hours: float64(i + 1), Text: "one two three"})
	}
	_, err := svc.Summarize(context.Background(), summarizer.Request{Ticker: "AMD", Posts: posts})
	require.NoError(t, err)

	user := client.lastRequest().Messages[1].Content
	lines := strings.Split(user, "\n")
	require.Less(t, len(lines), 10)
	require.True(t, strings.HasPrefix(lines[0], "- (1h ago)"))
}

func TestLatestReadsArchive(t *testing.T) {
	archive := newStubArchive()
	require.NoError(t, archive.Save(context.Background(), summarizer.Record{Subject: "AAPL", Summary: "cached"}))
	svc := summarizer.NewService(testConfig(), &stubChatClient{}, wordCounter{}, archive, newTestLogger())

	rec, ok, err := svc.Latest(context.Background(), "$aapl", false)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "cached", rec.Summary)

	_, ok, err = svc.Latest(context.Background(), "TSLA", false)
	require.NoError(t, err)
	require.False(t, ok)

	_, _, err = svc.Latest(context.Background(), " ", false)
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
}

func testConfig() summarizer.Config {
	return summarizer.Config{
		Model:          "gpt-4o-mini",
		Temperature:    0.2,
		TickerPrompt:   "Summarize chatter about ticker {subject}.",
		TopicPrompt:    "Summarize chatter about topic {subject}.",
		MaxInputTokens: 4000,
	}
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type wordCounter struct{}

func (wordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

type stubChatClient struct {
	mu         sync.Mutex
	requests   []summarizer.ChatRequest
	deltas     []string
	completion string
	openErr    error
	failAfter  error
	closed     bool
}

func (c *stubChatClient) Complete(_ context.Context, req summarizer.ChatRequest) (string, error) {
	c.record(req)
	return c.completion, c.openErr
}

func (c *stubChatClient) Stream(ctx context.Context, req summarizer.ChatRequest) (summarizer.TextStream, error) {
	c.record(req)
	if c.openErr != nil {
		return nil, c.openErr
	}
	return &stubStream{ctx: ctx, client: c, deltas: append([]string(nil), c.deltas...), failAfter: c.failAfter}, nil
}

func (c *stubChatClient) record(req summarizer.ChatRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
}

func (c *stubChatClient) lastRequest() summarizer.ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[len(c.requests)-1]
}

func (c *stubChatClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func (c *stubChatClient) streamClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type stubStream struct {
	ctx       context.Context
	client    *stubChatClient
	deltas    []string
	failAfter error
}

func (s *stubStream) Recv() (string, error) {
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if len(s.deltas) == 0 {
		if s.failAfter != nil {
			return "", s.failAfter
		}
		return "", io.EOF
	}
	next := s.deltas[0]
	s.deltas = s.deltas[1:]
	return next, nil
}

func (s *stubStream) Close() error {
	s.client.mu.Lock()
	defer s.client.mu.Unlock()
	s.client.closed = true
	return nil
}

type stubArchive struct {
	mu      sync.Mutex
	records map[string]summarizer.Record
}

func newStubArchive() *stubArchive {
	return &stubArchive{records: make(map[string]summarizer.Record)}
}

func (a *stubArchive) Save(_ context.Context, rec summarizer.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records[key(rec.Subject, rec.IsTopic)] = rec
	return nil
}

func (a *stubArchive) Latest(_ context.Context, subject string, isTopic bool) (summarizer.Record, bool, error) {
	rec, ok := a.get(subject, isTopic)
	return rec, ok, nil
}

func (a *stubArchive) get(subject string, isTopic bool) (summarizer.Record, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.records[key(subject, isTopic)]
	return rec, ok
}

func key(subject string, isTopic bool) string {
	if isTopic {
		return "topic:" + subject
	}
	return "ticker:" + subject
}
