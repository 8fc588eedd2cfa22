package topics

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/yanqian/cashtags/internal/domain/summarizer"
	apperrors "github.com/yanqian/cashtags/pkg/errors"
)

const maxTopicLength = 120

// Repository loads the posts collected for a topic.
type Repository interface {
	Posts(ctx context.Context, topic string) ([]summarizer.Post, error)
}

// Service exposes topic feeds.
type Service interface {
	Posts(ctx context.Context, topic string) ([]summarizer.Post, error)
}

type service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService wires the topics domain.
func NewService(repo Repository, logger *slog.Logger) Service {
	return &service{repo: repo, logger: logger.With("component", "topics.service")}
}

// Posts returns the topic's posts, newest first (ascending hours ago).
func (s *service) Posts(ctx context.Context, topic string) ([]summarizer.Post, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" || utf8.RuneCountInString(topic) > maxTopicLength {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "invalid topic", nil)
	}
	posts, err := s.repo.Posts(ctx, topic)
	if err != nil {
		s.logger.Error("topic posts query failed", "topic", topic, "error", err)
		return nil, apperrors.Wrap(apperrors.CodeTopic, "Failed to fetch topic posts", err)
	}
	out := make([]summarizer.Post, len(posts))
	copy(out, posts)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Hours < out[j].Hours
	})
	return out, nil
}
