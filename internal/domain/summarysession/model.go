package summarysession

import (
	"context"
	"errors"
	"io"

	"github.com/yanqian/cashtags/internal/domain/summarizer"
)

// Mode tells the backend which prompt variant to use.
type Mode int

const (
	ModeTicker Mode = iota
	ModeTopic
)

// IsTopic reports whether the mode maps to the topic prompt.
func (m Mode) IsTopic() bool {
	return m == ModeTopic
}

func (m Mode) String() string {
	if m == ModeTopic {
		return "topic"
	}
	return "ticker"
}

// Phase describes what the buffer currently holds.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhasePlaceholder  Phase = "placeholder"
	PhaseStreaming    Phase = "streaming"
	PhaseComplete     Phase = "complete"
	PhaseAuthRequired Phase = "auth_required"
	PhaseFailed       Phase = "failed"
)

// State is an immutable snapshot handed to observers.
type State struct {
	Subject   string
	Mode      Mode
	Buffer    string
	Streaming bool
	Phase     Phase
}

// Dispatcher performs the summary request and returns the raw response body.
// Implementations must abort the request when ctx is cancelled.
type Dispatcher interface {
	OpenStream(ctx context.Context, credential string, req summarizer.Request) (io.ReadCloser, error)
}

// ErrNoCredential is returned by a CredentialSource when the user is not signed in.
var ErrNoCredential = errors.New("no credential available")

// CredentialSource yields the bearer credential attached to each request.
type CredentialSource interface {
	Credential(ctx context.Context) (string, error)
}

// CredentialFunc adapts a function to CredentialSource.
type CredentialFunc func(ctx context.Context) (string, error)

func (f CredentialFunc) Credential(ctx context.Context) (string, error) {
	return f(ctx)
}

// Messages are the fixed texts shown for non-summary states.
type Messages struct {
	TickerPlaceholder string
	TopicPlaceholder  string
	Failure           string
	AuthRequired      string
}

// DefaultMessages returns the dashboard's wording.
func DefaultMessages() Messages {
	return Messages{
		TickerPlaceholder: "Click a Cashtag to see the summary",
		TopicPlaceholder:  "Click a Topic to see the summary",
		Failure:           "Failed to generate summary due to an error.",
		AuthRequired:      "Log in to see the AI summary.",
	}
}

func (m Messages) placeholder(mode Mode) string {
	if mode.IsTopic() {
		return m.TopicPlaceholder
	}
	return m.TickerPlaceholder
}

// Observer receives every state change in order. It runs while the session holds its lock and
// must not call back into the Session.
type Observer func(State)

// Option customises a Session.
type Option func(*Session)

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// WithMessages overrides the fixed texts. Empty fields keep their defaults.
func WithMessages(m Messages) Option {
	return func(s *Session) {
		if m.TickerPlaceholder != "" {
			s.messages.TickerPlaceholder = m.TickerPlaceholder
		}
		if m.TopicPlaceholder != "" {
			s.messages.TopicPlaceholder = m.TopicPlaceholder
		}
		if m.Failure != "" {
			s.messages.Failure = m.Failure
		}
		if m.AuthRequired != "" {
			s.messages.AuthRequired = m.AuthRequired
		}
	}
}
