package summarysession

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/yanqian/cashtags/internal/domain/summarizer"
)

const readBufferSize = 4096

// Session renders the summary of the currently selected subject. At most one stream is open at a
// time and only the latest selection may write to the buffer.
type Session struct {
	dispatcher  Dispatcher
	credentials CredentialSource
	messages    Messages
	observers   []Observer
	logger      *slog.Logger

	// selectMu serialises Select so teardown of the previous stream finishes before the next opens.
	selectMu sync.Mutex

	mu         sync.Mutex
	state      State
	generation uint64
	handle     *streamHandle
}

type streamHandle struct {
	subject    string
	mode       Mode
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
}

// New builds a Session. credentials may be nil, in which case every selection requires login.
func New(dispatcher Dispatcher, credentials CredentialSource, logger *slog.Logger, opts ...Option) *Session {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Session{
		dispatcher:  dispatcher,
		credentials: credentials,
		messages:    DefaultMessages(),
		logger:      logger.With("component", "summarysession.session"),
		state:       State{Phase: PhaseIdle},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select switches the session to subject. Any open stream for another subject is aborted and
// awaited first. Re-selecting the subject that is still streaming does nothing.
func (s *Session) Select(ctx context.Context, subject string, items []summarizer.Post, mode Mode) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		s.logger.Warn("ignoring selection with empty subject")
		return
	}

	s.selectMu.Lock()
	defer s.selectMu.Unlock()

	s.mu.Lock()
	if h := s.handle; h != nil && h.subject == subject && h.mode == mode {
		s.mu.Unlock()
		s.logger.Debug("subject already streaming", "subject", subject, "mode", mode.String())
		return
	}
	s.generation++
	gen := s.generation
	prev := s.handle
	s.handle = nil
	s.mu.Unlock()

	if prev != nil {
		prev.cancel()
		<-prev.done
		s.logger.Debug("previous stream aborted", "subject", prev.subject)
	}

	if len(items) == 0 {
		s.publish(gen, State{
			Subject: subject,
			Mode:    mode,
			Buffer:  s.messages.placeholder(mode),
			Phase:   PhasePlaceholder,
		})
		return
	}

	credential, err := s.credential(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoCredential) {
			s.logger.Warn("credential lookup failed", "subject", subject, "error", err)
		}
		s.publish(gen, State{
			Subject: subject,
			Mode:    mode,
			Buffer:  s.messages.AuthRequired,
			Phase:   PhaseAuthRequired,
		})
		return
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &streamHandle{
		subject:    subject,
		mode:       mode,
		generation: gen,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	req := summarizer.Request{
		Posts:   append([]summarizer.Post(nil), items...),
		Ticker:  subject,
		IsTopic: mode.IsTopic(),
	}

	s.mu.Lock()
	if s.generation != gen {
		// Cancel ran while the credential was being fetched.
		s.mu.Unlock()
		cancel()
		return
	}
	s.handle = h
	s.setLocked(State{Subject: subject, Mode: mode, Streaming: true, Phase: PhaseStreaming})
	s.mu.Unlock()

	s.logger.Info("summary stream opening", "subject", subject, "mode", mode.String(), "items", len(items))
	go s.run(streamCtx, h, credential, req)
}

// Cancel aborts the open stream and waits for it to stop. It is safe to call at any time,
// including teardown, and does nothing when no stream is open.
func (s *Session) Cancel() {
	s.mu.Lock()
	// A selection still fetching its credential sees the bump and never opens its stream.
	s.generation++
	h := s.handle
	s.handle = nil
	if s.state.Streaming {
		// A Select between teardown and dispatch leaves the old stream's state behind.
		next := s.state
		next.Streaming = false
		next.Phase = PhaseIdle
		s.setLocked(next)
	}
	s.mu.Unlock()
	if h == nil {
		return
	}

	h.cancel()
	<-h.done
	s.logger.Debug("stream cancelled", "subject", h.subject)
}

// Snapshot returns the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) credential(ctx context.Context) (string, error) {
	if s.credentials == nil {
		return "", ErrNoCredential
	}
	credential, err := s.credentials.Credential(ctx)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(credential) == "" {
		return "", ErrNoCredential
	}
	return credential, nil
}

func (s *Session) run(ctx context.Context, h *streamHandle, credential string, req summarizer.Request) {
	defer close(h.done)
	defer h.cancel()

	body, err := s.dispatcher.OpenStream(ctx, credential, req)
	if err != nil {
		s.fail(ctx, h, err)
		return
	}
	defer body.Close()

	reader := transform.NewReader(body, unicode.UTF8.NewDecoder())
	buf := make([]byte, readBufferSize)
	chunks := 0
	for {
		n, readErr := reader.Read(buf)
		if n > 0 {
			if !s.appendChunk(h, string(buf[:n])) {
				return
			}
			chunks++
		}
		if errors.Is(readErr, io.EOF) {
			s.complete(h, chunks)
			return
		}
		if readErr != nil {
			s.fail(ctx, h, readErr)
			return
		}
	}
}

func (s *Session) appendChunk(h *streamHandle, chunk string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != h.generation {
		return false
	}
	next := s.state
	next.Buffer += chunk
	s.setLocked(next)
	return true
}

func (s *Session) complete(h *streamHandle, chunks int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != h.generation {
		return
	}
	s.handle = nil
	next := s.state
	next.Streaming = false
	next.Phase = PhaseComplete
	s.setLocked(next)
	s.logger.Info("summary stream complete", "subject", h.subject, "chunks", chunks)
}

func (s *Session) fail(ctx context.Context, h *streamHandle, err error) {
	if ctx.Err() != nil {
		s.logger.Debug("summary stream stopped after cancel", "subject", h.subject)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != h.generation {
		return
	}
	s.handle = nil
	s.setLocked(State{
		Subject: h.subject,
		Mode:    h.mode,
		Buffer:  s.messages.Failure,
		Phase:   PhaseFailed,
	})
	s.logger.Warn("summary stream failed", "subject", h.subject, "error", err)
}

func (s *Session) publish(gen uint64, next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return
	}
	s.setLocked(next)
}

// setLocked stores next and notifies observers. Caller holds s.mu.
func (s *Session) setLocked(next State) {
	s.state = next
	for _, observe := range s.observers {
		observe(next)
	}
}
