package summarizer

import (
	"time"

	"github.com/yanqian/cashtags/pkg/metrics"
)

// Config configures prompt construction and model parameters.
type Config struct {
	Model          string
	Temperature    float64
	TickerPrompt   string
	TopicPrompt    string
	MaxInputTokens int
	MaxPosts       int
}

// Post is one source item (a social post or a news headline) fed to the summary.
type Post struct {
	Hours      float64 `json:"hours"`
	Text       string  `json:"text"`
	TweetID    *int64  `json:"tweet_id,omitempty"`
	ArticleURL string  `json:"article_url,omitempty"`
}

// Request is the summary payload shared by the HTTP endpoint and its clients.
type Request struct {
	Posts   []Post `json:"posts"`
	Ticker  string `json:"ticker"`
	IsTopic bool   `json:"isTopic"`
}

// Response is returned by the sync endpoint.
type Response struct {
	Subject    string              `json:"subject"`
	IsTopic    bool                `json:"isTopic"`
	Summary    string              `json:"summary"`
	DurationMs int64               `json:"durationMs,omitempty"`
	TokenUsage *metrics.TokenUsage `json:"tokenUsage,omitempty"`
}

// StreamChunk carries either a text delta or the terminal error of a stream.
type StreamChunk struct {
	Text string
	Err  error
}

// Record is an archived, fully generated summary.
type Record struct {
	Subject   string             `json:"subject"`
	IsTopic   bool               `json:"isTopic"`
	Summary   string             `json:"summary"`
	Model     string             `json:"model"`
	Usage     metrics.TokenUsage `json:"usage"`
	CreatedAt time.Time          `json:"createdAt"`
}

// Message is a single chat turn sent to the language model.
type Message struct {
	Role    string
	Content string
}

// ChatRequest is the provider neutral completion request.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
}
