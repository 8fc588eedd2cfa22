package topicrepo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/cashtags/internal/domain/summarizer"
	"github.com/yanqian/cashtags/internal/domain/topics"
)

// PostgresRepository reads topic posts from frontend_topics_posts.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Posts returns every post stored for topic.
func (r *PostgresRepository) Posts(ctx context.Context, topic string) ([]summarizer.Post, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT hours, text, tweet_id
		FROM frontend_topics_posts
		WHERE topic = $1
	`, topic)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []summarizer.Post
	for rows.Next() {
		var (
			post    summarizer.Post
			tweetID *int64
		)
		if err := rows.Scan(&post.Hours, &post.Text, &tweetID); err != nil {
			return nil, err
		}
		post.TweetID = tweetID
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

var _ topics.Repository = (*PostgresRepository)(nil)
