package data

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/lk2023060901/searchview-backend/internal/pkg/logger"
	pkgredis "github.com/lk2023060901/searchview-backend/internal/pkg/redis"
	"github.com/lk2023060901/searchview-backend/internal/pkg/sse"
	"github.com/lk2023060901/searchview-backend/internal/views/biz"
	"go.uber.org/zap"
)

// EventChannel Redis 中转事件的频道
const EventChannel = "views:events"

// wireEvent 频道上传输的事件, Data 保持原始 JSON
type wireEvent struct {
	Type       string          `json:"type"`
	SearchID   string          `json:"search_id"`
	Generation int64           `json:"generation"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// EventBus implements biz.Publisher. Events go through a Redis channel so
// every instance forwards them to its own SSE subscribers; without Redis
// they are delivered to the local hub directly.
type EventBus struct {
	redis  *pkgredis.Client
	hub    *sse.Hub
	logger *logger.Logger
}

// NewEventBus creates an event bus. redis 可以为 nil
func NewEventBus(redis *pkgredis.Client, hub *sse.Hub, log *logger.Logger) *EventBus {
	return &EventBus{
		redis:  redis,
		hub:    hub,
		logger: log.Named("events"),
	}
}

// Publish 发布事件, 失败只记录日志
func (b *EventBus) Publish(ctx context.Context, event *biz.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("failed to encode event", zap.String("type", event.Type), zap.Error(err))
		return
	}

	if b.redis == nil {
		b.dispatch(payload)
		return
	}
	if err := b.redis.Publish(ctx, EventChannel, payload); err != nil {
		b.logger.Warn("redis publish failed, delivering locally",
			zap.String("type", event.Type),
			zap.String("search_id", event.SearchID),
			zap.Error(err))
		b.dispatch(payload)
	}
}

// Run forwards channel messages to the local hub until ctx is done.
func (b *EventBus) Run(ctx context.Context) error {
	if b.redis == nil {
		<-ctx.Done()
		return nil
	}

	sub := b.redis.Subscribe(ctx, EventChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	b.logger.Info("event bus subscribed", zap.String("channel", EventChannel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.dispatch([]byte(msg.Payload))
		}
	}
}

func (b *EventBus) dispatch(payload []byte) {
	var event wireEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		b.logger.Warn("dropping malformed event", zap.Error(err))
		return
	}
	if event.SearchID == "" {
		return
	}

	data := event.Data
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	b.hub.Broadcast(biz.EventTopic(event.SearchID), sse.Event{
		ID:   uuid.NewString(),
		Type: event.Type,
		Data: map[string]interface{}{
			"search_id":  event.SearchID,
			"generation": event.Generation,
			"data":       data,
		},
	})
}
