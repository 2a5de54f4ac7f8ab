package sse

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// Event SSE 事件
type Event struct {
	ID   string      `json:"id,omitempty"` // 事件 ID, 可选
	Type string      `json:"type"`         // 事件类型
	Data interface{} `json:"data"`         // 事件数据
}

// Client SSE 客户端连接
type Client struct {
	ID       string
	Channel  chan Event
	Resource string // 订阅的资源 ID (如 search:xxx)
}

// NewClient 创建客户端
func NewClient(id, resource string, bufferSize int) *Client {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &Client{
		ID:       id,
		Channel:  make(chan Event, bufferSize),
		Resource: resource,
	}
}

// Hub SSE 连接管理器
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]bool // resource -> clients
	dropped atomic.Int64
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]bool),
	}
}

// Register 注册客户端
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.Resource] == nil {
		h.clients[client.Resource] = make(map[*Client]bool)
	}
	h.clients[client.Resource][client] = true
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.Resource]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.Channel)

	// 清理空资源
	if len(clients) == 0 {
		delete(h.clients, client.Resource)
	}
}

// Broadcast 向订阅指定资源的所有客户端广播消息
// 客户端缓冲区满时丢弃该客户端的这条消息
func (h *Hub) Broadcast(resource string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[resource] {
		select {
		case client.Channel <- event:
		default:
			h.dropped.Add(1)
		}
	}
}

// ClientCount 获取订阅指定资源的客户端数量
func (h *Hub) ClientCount(resource string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[resource])
}

// Dropped 因缓冲区满被丢弃的消息数
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// FormatSSE 格式化为 SSE 消息格式
func (e Event) FormatSSE() string {
	data, err := json.Marshal(e.Data)
	if err != nil {
		data = []byte(strconv.Quote(err.Error()))
	}

	var sb strings.Builder
	if e.ID != "" {
		sb.WriteString("id: ")
		sb.WriteString(e.ID)
		sb.WriteByte('\n')
	}
	sb.WriteString("event: ")
	sb.WriteString(e.Type)
	sb.WriteString("\ndata: ")
	sb.Write(data)
	sb.WriteString("\n\n")
	return sb.String()
}
