package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"portfolio-backend/internal/comments"
	"portfolio-backend/internal/guestbook"
)

const (
	heartbeatInterval = 30 * time.Second
	writeDeadline     = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleRealtime upgrades the connection and streams change events for one
// feed topic: a post's comments or the guestbook. The subscription is
// released when the socket closes.
func (h *httpHandler) handleRealtime(c *gin.Context) {
	if h.dispatcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "realtime_disabled"})
		return
	}

	table := strings.TrimSpace(c.Query("table"))
	postID := strings.TrimSpace(c.Query("post_id"))
	switch table {
	case comments.Table:
		if postID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_post_id"})
			return
		}
	case guestbook.Table:
		postID = ""
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_table"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	stream, unsubscribe := h.dispatcher.Subscribe(ctx, table, postID)
	defer unsubscribe()

	// Reader only watches for the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case event, ok := <-stream:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug("realtime write failed", zap.Error(err))
				return
			}
		case <-heartbeat.C:
			conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
