package topicrepo

import (
	"context"
	"sync"

	"github.com/yanqian/cashtags/internal/domain/summarizer"
	"github.com/yanqian/cashtags/internal/domain/topics"
)

// MemoryRepository serves topic posts from process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	posts map[string][]summarizer.Post
}

// NewMemoryRepository constructs an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{posts: make(map[string][]summarizer.Post)}
}

// Add appends posts to a topic.
func (r *MemoryRepository) Add(topic string, posts ...summarizer.Post) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts[topic] = append(r.posts[topic], posts...)
}

func (r *MemoryRepository) Posts(_ context.Context, topic string) ([]summarizer.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]summarizer.Post(nil), r.posts[topic]...), nil
}

var _ topics.Repository = (*MemoryRepository)(nil)
