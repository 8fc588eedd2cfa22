package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/cashtags/internal/domain/auth"
	"github.com/yanqian/cashtags/internal/domain/market"
	"github.com/yanqian/cashtags/internal/domain/subscription"
	"github.com/yanqian/cashtags/internal/domain/summarizer"
	"github.com/yanqian/cashtags/internal/domain/tape"
	"github.com/yanqian/cashtags/internal/domain/topics"
	"github.com/yanqian/cashtags/internal/infra/config"
)

// Handler wires the HTTP transport to domain services.
type Handler struct {
	summarizerSvc   summarizer.Service
	authSvc         auth.Service
	subscriptionSvc subscription.Service
	marketSvc       market.Service
	topicsSvc       topics.Service
	tapeSvc         *tape.Service
	authCfg         config.AuthConfig
	logger          *slog.Logger
}

// NewHandler constructs the root HTTP handler.
func NewHandler(
	summarySvc summarizer.Service,
	authSvc auth.Service,
	subscriptionSvc subscription.Service,
	marketSvc market.Service,
	topicsSvc topics.Service,
	tapeSvc *tape.Service,
	cfg *config.Config,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		summarizerSvc:   summarySvc,
		authSvc:         authSvc,
		subscriptionSvc: subscriptionSvc,
		marketSvc:       marketSvc,
		topicsSvc:       topicsSvc,
		tapeSvc:         tapeSvc,
		authCfg:         cfg.Auth,
		logger:          logger.With("component", "http.handler"),
	}
}

// Summarize handles the sync summarization endpoint.
func (h *Handler) Summarize(c *gin.Context) {
	var req summarizer.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "Missing posts or ticker", err))
		return
	}

	resp, err := h.summarizerSvc.Summarize(c.Request.Context(), req)
	if err != nil {
		abortWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// SummarizeStream writes the summary as plain text while the model generates it. Nothing is
// written until the first chunk arrives, so early failures still get a JSON error. A failure after
// that aborts the connection and the client sees a truncated body.
func (h *Handler) SummarizeStream(c *gin.Context) {
	var req summarizer.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "Missing posts or ticker", err))
		return
	}

	stream, err := h.summarizerSvc.StreamSummary(c.Request.Context(), req)
	if err != nil {
		abortWithAppError(c, err)
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "stream_unsupported", "streaming not supported", nil))
		return
	}

	started := false
	start := func() {
		started = true
		c.Writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Status(http.StatusOK)
		c.Writer.WriteHeaderNow()
	}

	for chunk := range stream {
		if chunk.Err != nil {
			if !started {
				abortWithAppError(c, chunk.Err)
				return
			}
			h.logger.Warn("summary stream failed mid-response", "subject", req.Ticker, "error", chunk.Err)
			panic(http.ErrAbortHandler)
		}
		if chunk.Text == "" {
			continue
		}
		if !started {
			start()
		}
		if _, err := c.Writer.WriteString(chunk.Text); err != nil {
			h.logger.Debug("client left during summary stream", "subject", req.Ticker, "error", err)
			return
		}
		flusher.Flush()
	}
	if !started {
		start()
	}
}

// LatestSummary returns the archived summary for a ticker or, with ?topic=true, a topic.
func (h *Handler) LatestSummary(c *gin.Context) {
	subject := c.Param("subject")
	isTopic, _ := strconv.ParseBool(c.Query("topic"))
	rec, ok, err := h.summarizerSvc.Latest(c.Request.Context(), subject, isTopic)
	if err != nil {
		abortWithAppError(c, err)
		return
	}
	if !ok {
		abortWithError(c, NewHTTPError(http.StatusNotFound, "not_found", "No summary available yet", nil))
		return
	}
	c.JSON(http.StatusOK, rec)
}

// TopicPosts returns the posts of a named topic. The route shares the :ticker segment with the market routes.
func (h *Handler) TopicPosts(c *gin.Context) {
	posts, err := h.topicsSvc.Posts(c.Request.Context(), c.Param("ticker"))
	if err != nil {
		abortWithAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, posts)
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
