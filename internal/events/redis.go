package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"reswatch/internal/config"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBridge forwards bus events onto a Redis channel so out-of-process
// consumers (the presentation layer) can react without polling.
type RedisBridge struct {
	client  *redis.Client
	channel string
	logger  *zerolog.Logger
}

func NewRedisBridge(cfg config.RedisConfig, logger *zerolog.Logger) (*RedisBridge, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisBridge{client: client, channel: cfg.EventChannel, logger: logger}, nil
}

// wireEvent is the envelope published to the Redis channel.
type wireEvent struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Attach subscribes the bridge to the given event types. Publish failures
// are logged and dropped; event delivery carries no retry.
func (b *RedisBridge) Attach(bus *EventBus, eventTypes ...string) {
	for _, eventType := range eventTypes {
		bus.Subscribe(eventType, b.forward)
	}
}

func (b *RedisBridge) forward(event *Event) error {
	data, err := json.Marshal(wireEvent{
		Type:      event.Type,
		Payload:   event.Payload,
		CreatedAt: event.CreatedAt,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.Debug().Err(err).Str("type", event.Type).Msg("redis event publish failed")
		return err
	}
	return nil
}

// Client exposes the underlying connection for collaborators that share
// it (the sync worker's queue).
func (b *RedisBridge) Client() *redis.Client {
	return b.client
}

func (b *RedisBridge) Close() error {
	return b.client.Close()
}
