package tokenizer

import (
	"log/slog"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/yanqian/cashtags/internal/domain/summarizer"
)

const defaultEncoding = "cl100k_base"

// Counter counts prompt tokens with tiktoken. When the encoding cannot be loaded it falls back
// to an estimate of four bytes per token.
type Counter struct {
	encoding *tiktoken.Tiktoken
}

// New loads the encoding for model, then the named encoding, then falls back to estimation.
func New(model, encoding string, logger *slog.Logger) *Counter {
	logger = logger.With("component", "tokenizer")
	if enc, err := tiktoken.EncodingForModel(model); err == nil {
		return &Counter{encoding: enc}
	}
	if strings.TrimSpace(encoding) == "" {
		encoding = defaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		logger.Warn("tiktoken encoding unavailable, estimating token counts", "encoding", encoding, "error", err)
		return &Counter{}
	}
	return &Counter{encoding: enc}
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.encoding == nil {
		return estimate(text)
	}
	return len(c.encoding.Encode(text, nil, nil))
}

func estimate(text string) int {
	return (len(text) + 3) / 4
}

var _ summarizer.TokenCounter = (*Counter)(nil)
