package summarysession_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/yanqian/cashtags/internal/domain/summarizer"
	"github.com/yanqian/cashtags/internal/domain/summarysession"
)

const waitFor = 2 * time.Second

func TestSelectStreamsChunksInOrder(t *testing.T) {
	t.Parallel()
	dispatcher := newFakeDispatcher()
	rec := &recorder{}
	sess := newSession(dispatcher, rec)

	items := samplePosts(3)
	sess.Select(context.Background(), "AAPL", items, summarysession.ModeTicker)

	stream := dispatcher.next(t)
	stream.send("Apple ")
	stream.send("is ")
	stream.send("up.")
	stream.finish()

	waitForPhase(t, sess, summarysession.PhaseComplete)

	call := dispatcher.call(0)
	require.Equal(t, "token-123", call.credential)
	require.Equal(t, "AAPL", call.req.Ticker)
	require.False(t, call.req.IsTopic)
	require.Equal(t, items, call.req.Posts)

	states := rec.all()
	buffers := make([]string, 0, len(states))
	streaming := make([]bool, 0, len(states))
	for _, st := range states {
		buffers = append(buffers, st.Buffer)
		streaming = append(streaming, st.Streaming)
	}
	require.Equal(t, []string{"", "Apple ", "Apple is ", "Apple is up.", "Apple is up."}, buffers)
	require.Equal(t, []bool{true, true, true, true, false}, streaming)

	final := sess.Snapshot()
	require.Equal(t, "Apple is up.", final.Buffer)
	require.False(t, final.Streaming)
}

func TestReselectAbortsPreviousStream(t *testing.T) {
	t.Parallel()
	dispatcher := newFakeDispatcher()
	rec := &recorder{}
	sess := newSession(dispatcher, rec)

	sess.Select(context.Background(), "AAPL", samplePosts(2), summarysession.ModeTicker)
	aapl := dispatcher.next(t)

	sess.Select(context.Background(), "TSLA", samplePosts(2), summarysession.ModeTicker)
	require.True(t, aapl.aborted())
	tsla := dispatcher.next(t)

	require.Error(t, aapl.trySend("Apple "))
	tsla.send("Tesla ")
	tsla.send("rallies.")
	tsla.finish()

	waitForPhase(t, sess, summarysession.PhaseComplete)
	require.Equal(t, "Tesla rallies.", sess.Snapshot().Buffer)
	require.Equal(t, 2, dispatcher.calls())
	require.Equal(t, "TSLA", dispatcher.call(1).req.Ticker)

	for _, st := range rec.all() {
		require.NotEqual(t, summarysession.PhaseFailed, st.Phase)
		if st.Subject == "TSLA" {
			require.NotContains(t, st.Buffer, "Apple")
		}
	}
}

func TestReselectClearsPartialBuffer(t *testing.T) {
	t.Parallel()
	dispatcher := newFakeDispatcher()
	sess := newSession(dispatcher, nil)

	sess.Select(context.Background(), "AAPL", samplePosts(1), summarysession.ModeTicker)
	aapl := dispatcher.next(t)
	aapl.send("Apple ")
	waitForBuffer(t, sess, "Apple ")

	sess.Select(context.Background(), "TSLA", samplePosts(1), summarysession.ModeTicker)
	state := sess.Snapshot()
	require.Equal(t, "TSLA", state.Subject)
	require.Empty(t, state.Buffer)
	require.True(t, state.Streaming)

	// Back to AAPL is a brand-new request.
	dispatcher.next(t)
	sess.Select(context.Background(), "AAPL", samplePosts(1), summarysession.ModeTicker)
	again := dispatcher.next(t)
	require.Empty(t, sess.Snapshot().Buffer)
	again.send("fresh")
	again.finish()
	waitForPhase(t, sess, summarysession.PhaseComplete)
	require.Equal(t, "fresh", sess.Snapshot().Buffer)
	require.Equal(t, 3, dispatcher.calls())
}

func TestEmptySourcesShowPlaceholder(t *testing.T) {
	tests := []struct {
		name string
		mode summarysession.Mode
		want string
	}{
		{name: "topic", mode: summarysession.ModeTopic, want: "Click a Topic to see the summary"},
		{name: "ticker", mode: summarysession.ModeTicker, want: "Click a Cashtag to see the summary"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dispatcher := newFakeDispatcher()
			sess := newSession(dispatcher, nil)

			sess.Select(context.Background(), "AI Revolution", nil, tt.mode)

			state := sess.Snapshot()
			require.Equal(t, summarysession.PhasePlaceholder, state.Phase)
			require.Equal(t, tt.want, state.Buffer)
			require.False(t, state.Streaming)
			require.Zero(t, dispatcher.calls())
		})
	}
}

func TestMissingCredentialRequiresLogin(t *testing.T) {
	tests := []struct {
		name        string
		credentials summarysession.CredentialSource
	}{
		{name: "nil source", credentials: nil},
		{name: "not signed in", credentials: summarysession.CredentialFunc(func(context.Context) (string, error) {
			return "", summarysession.ErrNoCredential
		})},
		{name: "blank token", credentials: summarysession.CredentialFunc(func(context.Context) (string, error) {
			return "  ", nil
		})},
		{name: "lookup error", credentials: summarysession.CredentialFunc(func(context.Context) (string, error) {
			return "", errors.New("keyring locked")
		})},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dispatcher := newFakeDispatcher()
			sess := summarysession.New(dispatcher, tt.credentials, discardLogger())

			sess.Select(context.Background(), "AAPL", samplePosts(2), summarysession.ModeTicker)

			state := sess.Snapshot()
			require.Equal(t, summarysession.PhaseAuthRequired, state.Phase)
			require.Equal(t, "Log in to see the AI summary.", state.Buffer)
			require.False(t, state.Streaming)
			require.Zero(t, dispatcher.calls())
		})
	}
}

func TestMidStreamFailureShowsFixedMessage(t *testing.T) {
	t.Parallel()
	dispatcher := newFakeDispatcher()
	rec := &recorder{}
	sess := newSession(dispatcher, rec)

	sess.Select(context.Background(), "NVDA", samplePosts(2), summarysession.ModeTicker)
	stream := dispatcher.next(t)
	stream.send("Nvidia ")
	stream.fail(errors.New("connection reset by peer"))

	waitForPhase(t, sess, summarysession.PhaseFailed)
	state := sess.Snapshot()
	require.Equal(t, "Failed to generate summary due to an error.", state.Buffer)
	require.False(t, state.Streaming)

	// Still usable after a failure.
	sess.Select(context.Background(), "NVDA", samplePosts(2), summarysession.ModeTicker)
	retry := dispatcher.next(t)
	retry.send("ok")
	retry.finish()
	waitForPhase(t, sess, summarysession.PhaseComplete)
	require.Equal(t, "ok", sess.Snapshot().Buffer)
}

func TestDispatchFailureShowsFixedMessage(t *testing.T) {
	t.Parallel()
	dispatcher := newFakeDispatcher()
	dispatcher.openErr = errors.New("summary request failed: 502 Bad Gateway")
	sess := newSession(dispatcher, nil)

	sess.Select(context.Background(), "AMD", samplePosts(1), summarysession.ModeTicker)

	waitForPhase(t, sess, summarysession.PhaseFailed)
	require.Equal(t, "Failed to generate summary due to an error.", sess.Snapshot().Buffer)
}

func TestSameSubjectWhileStreamingIsNoop(t *testing.T) {
	t.Parallel()
	dispatcher := newFakeDispatcher()
	sess := newSession(dispatcher, nil)

	sess.Select(context.Background(), "X", samplePosts(1), summarysession.ModeTicker)
	stream := dispatcher.next(t)
	stream.send("partial ")
	waitForBuffer(t, sess, "partial ")

	sess.Select(context.Background(), "X", samplePosts(1), summarysession.ModeTicker)
	require.False(t, stream.aborted())
	require.Equal(t, "partial ", sess.Snapshot().Buffer)

	stream.send("done")
	stream.finish()
	waitForPhase(t, sess, summarysession.PhaseComplete)
	require.Equal(t, 1, dispatcher.calls())
	require.Equal(t, "partial done", sess.Snapshot().Buffer)
}

func TestSameSubjectInOtherModeRestarts(t *testing.T) {
	t.Parallel()
	dispatcher := newFakeDispatcher()
	sess := newSession(dispatcher, nil)

	sess.Select(context.Background(), "AI", samplePosts(1), summarysession.ModeTicker)
	first := dispatcher.next(t)
	sess.Select(context.Background(), "AI", samplePosts(1), summarysession.ModeTopic)
	require.True(t, first.aborted())
	dispatcher.next(t)
	require.Equal(t, 2, dispatcher.calls())
	require.True(t, dispatcher.call(1).req.IsTopic)
	sess.Cancel()
}

func TestCancelIsIdempotent(t *testing.T) {
	t.Parallel()
	dispatcher := newFakeDispatcher()
	rec := &recorder{}
	sess := newSession(dispatcher, rec)

	sess.Cancel()
	sess.Cancel()
	require.Empty(t, rec.all())
	require.Equal(t, summarysession.State{Phase: summarysession.PhaseIdle}, sess.Snapshot())

	sess.Select(context.Background(), "AAPL", samplePosts(1), summarysession.ModeTicker)
	stream := dispatcher.next(t)
	stream.send("Apple ")
	waitForBuffer(t, sess, "Apple ")

	sess.Cancel()
	require.True(t, stream.aborted())
	state := sess.Snapshot()
	require.False(t, state.Streaming)
	require.Equal(t, "Apple ", state.Buffer)

	count := len(rec.all())
	sess.Cancel()
	require.Len(t, rec.all(), count)

	require.Error(t, stream.trySend("late"))
	require.Equal(t, "Apple ", sess.Snapshot().Buffer)
	for _, st := range rec.all() {
		require.NotEqual(t, summarysession.PhaseFailed, st.Phase)
	}
}

func TestCancelDuringReselectClearsStreaming(t *testing.T) {
	t.Parallel()
	dispatcher := newFakeDispatcher()
	creds := &gatedCredentials{}
	sess := summarysession.New(dispatcher, creds, discardLogger())

	sess.Select(context.Background(), "AAPL", samplePosts(1), summarysession.ModeTicker)
	aapl := dispatcher.next(t)
	aapl.send("Apple ")
	waitForBuffer(t, sess, "Apple ")

	release := creds.hold()
	selected := make(chan struct{})
	go func() {
		defer close(selected)
		sess.Select(context.Background(), "TSLA", samplePosts(1), summarysession.ModeTicker)
	}()
	require.Eventually(t, aapl.aborted, waitFor, time.Millisecond)
	creds.waitBlocked(t)

	sess.Cancel()
	close(release)
	<-selected

	state := sess.Snapshot()
	require.False(t, state.Streaming)
	require.Equal(t, summarysession.PhaseIdle, state.Phase)
	require.Equal(t, 1, dispatcher.calls())
}

func TestCompletionFlipsStreamingOnce(t *testing.T) {
	t.Parallel()
	dispatcher := newFakeDispatcher()
	rec := &recorder{}
	sess := newSession(dispatcher, rec)

	sess.Select(context.Background(), "MSFT", samplePosts(1), summarysession.ModeTicker)
	stream := dispatcher.next(t)
	stream.send("Cloud ")
	stream.send("growth.")
	stream.finish()
	waitForPhase(t, sess, summarysession.PhaseComplete)

	sess.Cancel()

	transitions := 0
	prev := false
	for _, st := range rec.all() {
		if prev && !st.Streaming {
			transitions++
		}
		prev = st.Streaming
	}
	require.Equal(t, 1, transitions)
	require.Equal(t, summarysession.PhaseComplete, sess.Snapshot().Phase)
}

func TestSplitRunesAreReassembled(t *testing.T) {
	t.Parallel()
	dispatcher := newFakeDispatcher()
	sess := newSession(dispatcher, nil)

	sess.Select(context.Background(), "SAP", samplePosts(1), summarysession.ModeTicker)
	stream := dispatcher.next(t)
	word := []byte("café ok")
	stream.sendBytes(word[:4])
	stream.sendBytes(word[4:])
	stream.finish()

	waitForPhase(t, sess, summarysession.PhaseComplete)
	require.Equal(t, "café ok", sess.Snapshot().Buffer)
}

func TestBlankSubjectIsIgnored(t *testing.T) {
	t.Parallel()
	dispatcher := newFakeDispatcher()
	rec := &recorder{}
	sess := newSession(dispatcher, rec)

	sess.Select(context.Background(), "   ", samplePosts(1), summarysession.ModeTicker)
	require.Empty(t, rec.all())
	require.Zero(t, dispatcher.calls())
}

func TestWithMessagesOverridesDefaults(t *testing.T) {
	t.Parallel()
	sess := summarysession.New(newFakeDispatcher(), nil, discardLogger(),
		summarysession.WithMessages(summarysession.Messages{AuthRequired: "sign in first"}))

	sess.Select(context.Background(), "AAPL", nil, summarysession.ModeTicker)
	require.Equal(t, "Click a Cashtag to see the summary", sess.Snapshot().Buffer)

	sess.Select(context.Background(), "AAPL", samplePosts(1), summarysession.ModeTicker)
	require.Equal(t, "sign in first", sess.Snapshot().Buffer)
}

func TestRapidSelectionsKeepOnlyLatestStream(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		subjects := rapid.SliceOfN(rapid.SampledFrom([]string{"AAPL", "TSLA", "NVDA", "AI Revolution"}), 1, 8).Draw(rt, "subjects")
		chunks := rapid.IntRange(1, 4).Draw(rt, "chunks")

		dispatcher := newFakeDispatcher()
		dispatcher.autoChunks = chunks
		sess := newSession(dispatcher, nil)

		for _, subject := range subjects {
			sess.Select(context.Background(), subject, samplePosts(1), summarysession.ModeTicker)
		}

		require.Eventually(rt, func() bool {
			return sess.Snapshot().Phase == summarysession.PhaseComplete
		}, waitFor, 5*time.Millisecond)

		last := dispatcher.calls() - 1
		var want strings.Builder
		for k := 0; k < chunks; k++ {
			fmt.Fprintf(&want, "%d:%d|", last, k)
		}
		state := sess.Snapshot()
		require.Equal(rt, want.String(), state.Buffer)
		require.Equal(rt, subjects[len(subjects)-1], state.Subject)
	})
}

func newSession(dispatcher *fakeDispatcher, rec *recorder) *summarysession.Session {
	opts := []summarysession.Option{}
	if rec != nil {
		opts = append(opts, summarysession.WithObserver(rec.observe))
	}
	creds := summarysession.CredentialFunc(func(context.Context) (string, error) {
		return "token-123", nil
	})
	return summarysession.New(dispatcher, creds, discardLogger(), opts...)
}

func samplePosts(n int) []summarizer.Post {
	posts := make([]summarizer.Post, 0, n)
	for i := 0; i < n; i++ {
		posts = append(posts, summarizer.Post{Hours: float64(i + 1), Text: fmt.Sprintf("post %d", i)})
	}
	return posts
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitForPhase(t *testing.T, sess *summarysession.Session, phase summarysession.Phase) {
	t.Helper()
	require.Eventually(t, func() bool {
		return sess.Snapshot().Phase == phase
	}, waitFor, 5*time.Millisecond)
}

func waitForBuffer(t *testing.T, sess *summarysession.Session, buffer string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return sess.Snapshot().Buffer == buffer
	}, waitFor, 5*time.Millisecond)
}

type recorder struct {
	mu     sync.Mutex
	states []summarysession.State
}

func (r *recorder) observe(st summarysession.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, st)
}

func (r *recorder) all() []summarysession.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]summarysession.State(nil), r.states...)
}

type dispatchCall struct {
	credential string
	req        summarizer.Request
}

type fakeDispatcher struct {
	mu         sync.Mutex
	log        []dispatchCall
	streams    chan *fakeStream
	openErr    error
	autoChunks int
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{streams: make(chan *fakeStream, 16)}
}

func (d *fakeDispatcher) OpenStream(ctx context.Context, credential string, req summarizer.Request) (io.ReadCloser, error) {
	d.mu.Lock()
	id := len(d.log)
	d.log = append(d.log, dispatchCall{credential: credential, req: req})
	openErr := d.openErr
	auto := d.autoChunks
	d.mu.Unlock()

	if openErr != nil {
		return nil, openErr
	}

	stream := newFakeStream(ctx)
	if auto > 0 {
		go func() {
			for k := 0; k < auto; k++ {
				if stream.trySend(fmt.Sprintf("%d:%d|", id, k)) != nil {
					return
				}
			}
			stream.finish()
		}()
	} else {
		d.streams <- stream
	}
	return stream.reader, nil
}

func (d *fakeDispatcher) next(t *testing.T) *fakeStream {
	t.Helper()
	select {
	case s := <-d.streams:
		return s
	case <-time.After(waitFor):
		t.Fatal("no stream was opened")
		return nil
	}
}

func (d *fakeDispatcher) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.log)
}

func (d *fakeDispatcher) call(i int) dispatchCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.log[i]
}

// fakeStream is a response body fed by the test. Cancelling the request context breaks the pipe
// the way an aborted HTTP body does.
type fakeStream struct {
	ctx    context.Context
	reader *io.PipeReader
	writer *io.PipeWriter
}

func newFakeStream(ctx context.Context) *fakeStream {
	pr, pw := io.Pipe()
	s := &fakeStream{ctx: ctx, reader: pr, writer: pw}
	go func() {
		<-ctx.Done()
		_ = pw.CloseWithError(ctx.Err())
	}()
	return s
}

func (s *fakeStream) send(chunk string) {
	s.sendBytes([]byte(chunk))
}

func (s *fakeStream) sendBytes(chunk []byte) {
	if _, err := s.writer.Write(chunk); err != nil {
		panic(err)
	}
}

func (s *fakeStream) trySend(chunk string) error {
	if s.aborted() {
		return s.ctx.Err()
	}
	_, err := s.writer.Write([]byte(chunk))
	return err
}

func (s *fakeStream) finish() {
	_ = s.writer.Close()
}

func (s *fakeStream) fail(err error) {
	_ = s.writer.CloseWithError(err)
}

func (s *fakeStream) aborted() bool {
	return s.ctx.Err() != nil
}

// gatedCredentials blocks Credential calls while a gate is held.
type gatedCredentials struct {
	mu      sync.Mutex
	gate    chan struct{}
	blocked chan struct{}
}

func (c *gatedCredentials) hold() chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gate = make(chan struct{})
	c.blocked = make(chan struct{})
	return c.gate
}

func (c *gatedCredentials) waitBlocked(t *testing.T) {
	t.Helper()
	c.mu.Lock()
	blocked := c.blocked
	c.mu.Unlock()
	select {
	case <-blocked:
	case <-time.After(waitFor):
		t.Fatal("credential lookup never started")
	}
}

func (c *gatedCredentials) Credential(ctx context.Context) (string, error) {
	c.mu.Lock()
	gate, blocked := c.gate, c.blocked
	c.mu.Unlock()
	if gate != nil {
		close(blocked)
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "token-123", nil
}
