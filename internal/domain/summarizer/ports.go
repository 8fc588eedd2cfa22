package summarizer

import "context"

// ChatClient is the language model backend.
type ChatClient interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
	Stream(ctx context.Context, req ChatRequest) (TextStream, error)
}

// TextStream yields content deltas until io.EOF.
type TextStream interface {
	Recv() (string, error)
	Close() error
}

// TokenCounter estimates prompt sizes.
type TokenCounter interface {
	Count(text string) int
}

// Archive keeps the last generated summary per subject.
type Archive interface {
	Save(ctx context.Context, rec Record) error
	Latest(ctx context.Context, subject string, isTopic bool) (Record, bool, error)
}
