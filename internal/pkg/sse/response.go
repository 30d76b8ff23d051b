package sse

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EventConnected 连接建立后首条事件
const EventConnected = "connected"

// Serve 将当前请求转为 SSE 流，订阅 resource 直到客户端断开或 Hub 关闭
func Serve(c *gin.Context, hub *Hub, resource string, bufferSize int, heartbeat time.Duration) {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	client := &Client{
		ID:       uuid.New().String(),
		Channel:  make(chan Event, bufferSize),
		Resource: resource,
	}
	if !hub.Register(client) {
		c.Status(503)
		return
	}
	defer hub.Unregister(client)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(200)

	connected := Event{
		Type: EventConnected,
		Data: map[string]string{"client_id": client.ID, "resource": resource},
	}
	if _, err := fmt.Fprint(c.Writer, connected.FormatSSE()); err != nil {
		return
	}
	c.Writer.Flush()

	var tick <-chan time.Time
	if heartbeat > 0 {
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	done := c.Request.Context().Done()
	for {
		select {
		case <-done:
			return
		case event, ok := <-client.Channel:
			if !ok {
				return
			}
			if _, err := fmt.Fprint(c.Writer, event.FormatSSE()); err != nil {
				return
			}
			c.Writer.Flush()
		case <-tick:
			if _, err := fmt.Fprint(c.Writer, ": heartbeat\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}
