package summarizer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/yanqian/cashtags/pkg/errors"
	"github.com/yanqian/cashtags/pkg/metrics"
	"github.com/yanqian/cashtags/pkg/util"
)

const archiveTimeout = 10 * time.Second

// Service exposes summarization capabilities.
type Service interface {
	Summarize(ctx context.Context, req Request) (Response, error)
	StreamSummary(ctx context.Context, req Request) (<-chan StreamChunk, error)
	Latest(ctx context.Context, subject string, isTopic bool) (Record, bool, error)
}

type service struct {
	cfg     Config
	client  ChatClient
	counter TokenCounter
	archive Archive
	logger  *slog.Logger
}

// NewService is a wire provider for the summarizer domain. archive may be nil.
func NewService(cfg Config, client ChatClient, counter TokenCounter, archive Archive, logger *slog.Logger) Service {
	return &service{
		cfg:     cfg,
		client:  client,
		counter: counter,
		archive: archive,
		logger:  logger.With("component", "summarizer.service"),
	}
}

func (s *service) Summarize(ctx context.Context, req Request) (Response, error) {
	prompt, err := s.preparePrompt(req)
	if err != nil {
		return Response{}, err
	}

	start := time.Now()
	content, err := s.client.Complete(ctx, s.chatRequest(prompt))
	if err != nil {
		return Response{}, apperrors.Wrap(apperrors.CodeLLM, "summary request failed", err)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return Response{}, apperrors.Wrap(apperrors.CodeLLM, "model returned an empty summary", nil)
	}

	usage := metrics.NewTokenUsage(prompt.tokens, s.counter.Count(content))
	s.saveAsync(ctx, Record{
		Subject: prompt.subject,
		IsTopic: req.IsTopic,
		Summary: content,
		Model:   s.cfg.Model,
		Usage:   usage,
	})

	return Response{
		Subject:    prompt.subject,
		IsTopic:    req.IsTopic,
		Summary:    content,
		DurationMs: time.Since(start).Milliseconds(),
		TokenUsage: &usage,
	}, nil
}

func (s *service) StreamSummary(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	prompt, err := s.preparePrompt(req)
	if err != nil {
		return nil, err
	}

	s.logger.Info("summary stream starting", "subject", prompt.subject, "isTopic", req.IsTopic, "posts", prompt.posts, "promptTokens", prompt.tokens)

	stream, err := s.client.Stream(ctx, s.chatRequest(prompt))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeLLM, "summary stream request failed", err)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer stream.Close()

		send := func(chunk StreamChunk) bool {
			select {
			case out <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var (
			builder strings.Builder
			chunks  int
		)
		for {
			delta, recvErr := stream.Recv()
			if errors.Is(recvErr, io.EOF) {
				break
			}
			if recvErr != nil {
				if ctx.Err() != nil {
					s.logger.Info("summary stream cancelled by client", "subject", prompt.subject, "chunks", chunks)
					return
				}
				s.logger.Error("summary stream recv failed", "subject", prompt.subject, "chunks", chunks, "error", recvErr)
				send(StreamChunk{Err: apperrors.Wrap(apperrors.CodeLLM, "summary stream interrupted", recvErr)})
				return
			}
			if delta == "" {
				continue
			}
			chunks++
			builder.WriteString(delta)
			if !send(StreamChunk{Text: delta}) {
				s.logger.Info("summary stream cancelled by client", "subject", prompt.subject, "chunks", chunks)
				return
			}
		}

		content := builder.String()
		s.logger.Info("summary stream complete", "subject", prompt.subject, "chunks", chunks)
		if strings.TrimSpace(content) == "" {
			return
		}
		s.saveAsync(ctx, Record{
			Subject: prompt.subject,
			IsTopic: req.IsTopic,
			Summary: content,
			Model:   s.cfg.Model,
			Usage:   metrics.NewTokenUsage(prompt.tokens, s.counter.Count(content)),
		})
	}()

	return out, nil
}

func (s *service) Latest(ctx context.Context, subject string, isTopic bool) (Record, bool, error) {
	subject = normalizeSubject(subject, isTopic)
	if subject == "" {
		return Record{}, false, apperrors.Wrap(apperrors.CodeInvalidInput, "subject cannot be empty", nil)
	}
	if s.archive == nil {
		return Record{}, false, nil
	}
	rec, ok, err := s.archive.Latest(ctx, subject, isTopic)
	if err != nil {
		return Record{}, false, apperrors.Wrap(apperrors.CodeStorage, "failed to load archived summary", err)
	}
	return rec, ok, nil
}

// saveAsync archives off the request path so the response is not held open by storage latency.
func (s *service) saveAsync(ctx context.Context, rec Record) {
	if s.archive == nil {
		return
	}
	rec.CreatedAt = util.NowUTC()
	go func() {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
		defer cancel()
		if err := s.archive.Save(saveCtx, rec); err != nil {
			s.logger.Warn("summary archive failed", "subject", rec.Subject, "error", err)
		}
	}()
}

func (s *service) chatRequest(p preparedPrompt) ChatRequest {
	return ChatRequest{
		Model: s.cfg.Model,
		Messages: []Message{
			{Role: "system", Content: p.system},
			{Role: "user", Content: p.user},
		},
		Temperature: s.cfg.Temperature,
	}
}
