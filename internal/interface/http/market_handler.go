package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Overview returns name, description and market cap for a ticker.
func (h *Handler) Overview(c *gin.Context) {
	overview, err := h.marketSvc.Overview(c.Request.Context(), c.Param("ticker"))
	if err != nil {
		abortWithAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

// Series returns a week of hourly closes.
func (h *Handler) Series(c *gin.Context) {
	series, err := h.marketSvc.Series(c.Request.Context(), c.Param("ticker"))
	if err != nil {
		abortWithAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

// Bars returns the latest minute bars.
func (h *Handler) Bars(c *gin.Context) {
	bars, err := h.marketSvc.Bars(c.Request.Context(), c.Param("ticker"))
	if err != nil {
		abortWithAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, bars)
}

// News returns recent headlines shaped as summary posts.
func (h *Handler) News(c *gin.Context) {
	posts, err := h.marketSvc.News(c.Request.Context(), c.Param("ticker"))
	if err != nil {
		abortWithAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, posts)
}

// Snapshot returns overview, series and news in one response.
func (h *Handler) Snapshot(c *gin.Context) {
	snapshot, err := h.marketSvc.Snapshot(c.Request.Context(), c.Param("ticker"))
	if err != nil {
		abortWithAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}
