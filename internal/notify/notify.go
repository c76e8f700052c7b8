package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const DefaultQueue = "notification_queue"

// Template keys understood by the messaging service.
const (
	TemplateCreated   = "remittance.created"
	TemplateRedeemed  = "remittance.redeemed"
	TemplateCancelled = "remittance.cancelled"
	TemplateExpired   = "remittance.expired"
)

type Notification struct {
	TenantID     string            `json:"tenant_id"`
	RemittanceID string            `json:"remittance_id"`
	Template     string            `json:"template"`
	Recipient    string            `json:"recipient"`
	Params       map[string]string `json:"params,omitempty"`
	At           time.Time         `json:"at"`
}

// RedisNotifier hands notifications to the messaging service through a Redis list.
// Delivery and retries are the consumer's concern.
type RedisNotifier struct {
	redis *redis.Client
	queue string
}

func NewRedisNotifier(client *redis.Client, queue string) *RedisNotifier {
	if queue == "" {
		queue = DefaultQueue
	}
	return &RedisNotifier{redis: client, queue: queue}
}

func (n *RedisNotifier) Notify(ctx context.Context, msg Notification) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if err := n.redis.RPush(ctx, n.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	return nil
}

// Nop drops every notification.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) error { return nil }
