package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type tickerClickRequest struct {
	Ticker string `json:"ticker"`
}

// SubscriptionStatus reports the caller's tier and remaining clicks.
func (h *Handler) SubscriptionStatus(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	status, err := h.subscriptionSvc.Status(c.Request.Context(), claims.UserID)
	if err != nil {
		abortWithAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// TickerClick counts a cashtag click against the caller's quota.
func (h *Handler) TickerClick(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req tickerClickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "Ticker is required", err))
		return
	}
	result, err := h.subscriptionSvc.RecordClick(c.Request.Context(), claims.UserID, req.Ticker)
	if err != nil {
		abortWithAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Trending lists the most clicked tickers.
func (h *Handler) Trending(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	trending, err := h.subscriptionSvc.Trending(c.Request.Context(), limit)
	if err != nil {
		abortWithAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, trending)
}
