package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/interview-engine/internal/config"
	"github.com/terra-clan/interview-engine/internal/models"
)

const channelPrefix = "interview:session:"

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// relayEnvelope is the pub/sub payload. Origin lets an instance skip its own
// broadcasts.
type relayEnvelope struct {
	Origin    string            `json:"origin"`
	SessionID string            `json:"session_id"`
	Messages  []*models.Message `json:"messages"`
}

// RedisRelay publishes broadcasts on interview:session:<id> and feeds
// broadcasts from other instances into the local hub.
type RedisRelay struct {
	client *redis.Client
	hub    *Hub
	origin string
	pubsub *redis.PubSub
}

// NewRedisRelay creates a relay delivering remote broadcasts into hub
func NewRedisRelay(client *redis.Client, hub *Hub) *RedisRelay {
	return &RedisRelay{
		client: client,
		hub:    hub,
		origin: uuid.New().String(),
	}
}

// Channel returns the pub/sub channel of a session
func Channel(sessionID string) string {
	return channelPrefix + sessionID
}

// Publish sends messages to the other instances
func (r *RedisRelay) Publish(ctx context.Context, sessionID string, messages []*models.Message) error {
	payload, err := json.Marshal(relayEnvelope{
		Origin:    r.origin,
		SessionID: sessionID,
		Messages:  messages,
	})
	if err != nil {
		return fmt.Errorf("failed to encode relay payload: %w", err)
	}

	if err := r.client.Publish(ctx, Channel(sessionID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// Start subscribes to every session channel and delivers remote broadcasts
// until ctx is done or Close is called.
func (r *RedisRelay) Start(ctx context.Context) error {
	pubsub := r.client.PSubscribe(ctx, channelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to relay channels: %w", err)
	}
	r.pubsub = pubsub

	slog.Info("redis relay started", "origin", r.origin, "pattern", channelPrefix+"*")

	go r.loop(ctx, pubsub.Channel())
	return nil
}

// Close stops the relay subscription
func (r *RedisRelay) Close() error {
	if r.pubsub == nil {
		return nil
	}
	return r.pubsub.Close()
}

func (r *RedisRelay) loop(ctx context.Context, ch <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handle(ctx, msg)
		}
	}
}

func (r *RedisRelay) handle(ctx context.Context, msg *redis.Message) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		slog.Warn("dropping malformed relay payload", "channel", msg.Channel, "error", err)
		return
	}
	if env.Origin == r.origin {
		return
	}
	if env.SessionID == "" {
		env.SessionID = strings.TrimPrefix(msg.Channel, channelPrefix)
	}

	r.hub.Publish(ctx, env.SessionID, env.Messages)
}
