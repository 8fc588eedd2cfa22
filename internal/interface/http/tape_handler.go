package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	tapeWriteWait  = 10 * time.Second
	tapePongWait   = 60 * time.Second
	tapePingPeriod = (tapePongWait * 9) / 10
)

var tapeUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Tape returns the current ticker tape.
func (h *Handler) Tape(c *gin.Context) {
	items, err := h.tapeSvc.Tape(c.Request.Context())
	if err != nil {
		abortWithAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// TapeSocket pushes the tape to a websocket client on connect and after every change.
func (h *Handler) TapeSocket(c *gin.Context) {
	conn, err := tapeUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("tape websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if _, err := h.tapeSvc.Tape(c.Request.Context()); err != nil {
		h.logger.Warn("tape unavailable for new websocket client", "error", err)
	}
	latest, updates, cancel := h.tapeSvc.Subscribe()
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(tapePongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(tapePongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if len(latest) > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(tapeWriteWait))
		if err := conn.WriteJSON(latest); err != nil {
			return
		}
	}

	ticker := time.NewTicker(tapePingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case items, ok := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(tapeWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "slow consumer"))
				return
			}
			if err := conn.WriteJSON(items); err != nil {
				h.logger.Debug("tape websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(tapeWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
