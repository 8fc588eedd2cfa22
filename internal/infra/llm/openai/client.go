package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"

	"github.com/yanqian/cashtags/internal/domain/summarizer"
)

// Options configures the client.
type Options struct {
	APIKey     string
	BaseURL    string
	MaxRetries int
	Timeout    time.Duration
}

// Client adapts the OpenAI chat completions API to summarizer.ChatClient.
type Client struct {
	client openai.Client
}

// NewClient constructs an OpenAI client.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai api key cannot be empty")
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(opts.MaxRetries),
	}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		reqOpts = append(reqOpts, option.WithBaseURL(base))
	}
	if opts.Timeout > 0 {
		// No client-wide timeout: it would cut long streams. Dial and header waits are bounded.
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: opts.Timeout,
				IdleConnTimeout:       90 * time.Second,
			},
		}))
	}
	return &Client{client: openai.NewClient(reqOpts...)}, nil
}

// Complete runs a non streaming chat completion and returns the first choice.
func (c *Client) Complete(ctx context.Context, req summarizer.ChatRequest) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, toParams(req))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream opens a streaming chat completion. The first frame is read eagerly so that request
// failures surface here instead of on the first Recv.
func (c *Client) Stream(ctx context.Context, req summarizer.ChatRequest) (summarizer.TextStream, error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, toParams(req))
	s := &textStream{stream: stream}
	if !stream.Next() {
		err := stream.Err()
		_ = stream.Close()
		if err == nil {
			return &textStream{done: true}, nil
		}
		return nil, err
	}
	s.primed = true
	return s, nil
}

type textStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	primed bool
	done   bool
}

// Recv returns the next content delta, or io.EOF when the model is done.
func (s *textStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for {
		if s.primed {
			s.primed = false
		} else if !s.stream.Next() {
			s.done = true
			if err := s.stream.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		if delta := deltaText(s.stream.Current()); delta != "" {
			return delta, nil
		}
	}
}

func (s *textStream) Close() error {
	if s.stream == nil {
		return nil
	}
	return s.stream.Close()
}

func deltaText(chunk openai.ChatCompletionChunk) string {
	if len(chunk.Choices) == 0 {
		return ""
	}
	return chunk.Choices[0].Delta.Content
}

func toParams(req summarizer.ChatRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(msg.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}
	return openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(req.Model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	}
}

var _ summarizer.ChatClient = (*Client)(nil)
