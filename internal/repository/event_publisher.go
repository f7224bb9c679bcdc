package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/etapa-productiva-api/internal/models"
)

// EventPublisher publishes domain events on a Redis channel for the notification service.
type EventPublisher struct {
	client  *redis.Client
	channel string
}

// NewEventPublisher constructs a publisher bound to channel.
func NewEventPublisher(client *redis.Client, channel string) *EventPublisher {
	return &EventPublisher{client: client, channel: channel}
}

// Publish serialises the event and sends it to the channel.
func (p *EventPublisher) Publish(ctx context.Context, event models.Event) error {
	if p.client == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.Type, err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", p.channel, err)
	}
	return nil
}
