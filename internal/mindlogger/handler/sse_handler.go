package handler

import (
	"fmt"
	"time"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/push"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const sseHeartbeat = 30 * time.Second

// SSEHandler streams alerts and job updates to connected web clients.
type SSEHandler struct {
	hub *push.Hub
}

func NewSSEHandler(hub *push.Hub) *SSEHandler {
	return &SSEHandler{hub: hub}
}

// Stream holds the connection open until the client leaves.
// GET /users/me/notifications/stream?token=xxx
func (h *SSEHandler) Stream(c *gin.Context) {
	if h.hub == nil {
		Error(c, 50300, "notification stream unavailable")
		return
	}
	sub := &push.Subscriber{
		ID:     uuid.New().String(),
		UserID: GetUserID(c),
		Events: make(chan push.Event, 64),
	}
	h.hub.Register(sub)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.Writer.WriteString("event: connected\ndata: {\"client_id\":\"" + sub.ID + "\"}\n\n")
	c.Writer.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			h.hub.Unregister(sub.ID)
			return
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			c.Writer.WriteString(fmt.Sprintf("event: %s\ndata: %s\n\n", event.EventType, event.Data))
			c.Writer.Flush()
		case <-heartbeat.C:
			c.Writer.WriteString(": keepalive\n\n")
			c.Writer.Flush()
		}
	}
}
