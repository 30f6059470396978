package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// 事件类型，与前端 WebSocket 解析保持一致。
const (
	EventStatusChanged = "application_status_changed"
	EventSummaryReady  = "application_summary_ready"
	EventError         = "error"
)

// Message 是通过 Redis Pub/Sub 转发给前端的统一消息。
type Message struct {
	Event         string `json:"event"`
	ApplicationID uint   `json:"application_id"`
	JobID         uint   `json:"job_id,omitempty"`
	JobTitle      string `json:"job_title,omitempty"`
	Status        string `json:"status,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	ErrorCode     int    `json:"error_code"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

// Channel 返回用户专属的通知频道。
func Channel(userID uint) string {
	return fmt.Sprintf("user_notify:%d", userID)
}

// Publisher 将消息发布到用户频道。
type Publisher struct {
	client redis.UniversalClient
}

func NewPublisher(client redis.UniversalClient) *Publisher {
	return &Publisher{client: client}
}

// Publish 序列化并发布一条消息。
func (p *Publisher) Publish(ctx context.Context, userID uint, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := Channel(userID)
	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}
