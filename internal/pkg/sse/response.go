package sse

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
)

// InitialEvents 在客户端注册之后调用, 返回连接时需要补发的事件
type InitialEvents func() ([]Event, error)

// StreamResponse SSE 流式响应辅助函数
// 先注册再调用 initial, 期间广播的事件留在客户端缓冲区中, 在补发事件之后写出.
// initial 返回错误时不写出任何内容, 由调用方处理该错误
func StreamResponse(c *gin.Context, client *Client, hub *Hub, keepAliveInterval time.Duration, initial InitialEvents) error {
	hub.Register(client)
	defer hub.Unregister(client)

	var replay []Event
	if initial != nil {
		events, err := initial()
		if err != nil {
			return err
		}
		replay = events
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	connected := Event{
		Type: "connected",
		Data: map[string]string{
			"client_id": client.ID,
			"resource":  client.Resource,
		},
	}
	for _, event := range append([]Event{connected}, replay...) {
		if _, err := fmt.Fprint(c.Writer, event.FormatSSE()); err != nil {
			return nil
		}
	}
	c.Writer.Flush()

	if keepAliveInterval <= 0 {
		keepAliveInterval = 30 * time.Second
	}
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	clientGone := c.Request.Context().Done()

	for {
		select {
		case <-clientGone:
			return nil

		case event, ok := <-client.Channel:
			if !ok {
				return nil
			}
			if _, err := fmt.Fprint(c.Writer, event.FormatSSE()); err != nil {
				return nil
			}
			c.Writer.Flush()

		case <-ticker.C:
			// 心跳
			if _, err := fmt.Fprint(c.Writer, ": heartbeat\n\n"); err != nil {
				return nil
			}
			c.Writer.Flush()
		}
	}
}
