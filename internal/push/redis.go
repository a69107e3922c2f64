package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lakmal-w/campustrack/internal/tracking"
)

const defaultChannelName = "campustrack.devices"

// envelope is the wire format of one pushed event. SenderID lets a
// subscriber drop its own publications.
type envelope struct {
	SenderID string                `json:"senderID"`
	Type     tracking.EventType    `json:"type"`
	Device   tracking.DeviceRecord `json:"device"`
}

// RedisOption configures a RedisChannel.
type RedisOption func(*RedisChannel)

// WithRedisLogger sets the logger. Defaults to slog.Default().
func WithRedisLogger(logger *slog.Logger) RedisOption {
	return func(c *RedisChannel) {
		c.logger = logger
	}
}

// WithChannelName overrides the pub/sub channel name.
func WithChannelName(name string) RedisOption {
	return func(c *RedisChannel) {
		c.channel = name
	}
}

// WithPassword sets the connection password.
func WithPassword(password string) RedisOption {
	return func(c *RedisChannel) {
		c.password = password
	}
}

// WithDB selects the Redis database.
func WithDB(db int) RedisOption {
	return func(c *RedisChannel) {
		c.db = db
	}
}

// RedisChannel propagates device events over a Redis pub/sub channel.
// Delivery is at-most-once; the reconciler's merge rule makes dropped
// or reordered messages harmless.
type RedisChannel struct {
	client   *redis.Client
	logger   *slog.Logger
	channel  string
	password string
	db       int
	senderID string
}

// NewRedisChannel connects to the Redis server at addr and verifies
// the connection with a ping.
func NewRedisChannel(ctx context.Context, addr string, opts ...RedisOption) (*RedisChannel, error) {
	c := &RedisChannel{
		channel:  defaultChannelName,
		senderID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	c.client = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: c.password,
		DB:       c.db,
	})

	if err := c.client.Ping(ctx).Err(); err != nil {
		_ = c.client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return c, nil
}

func (c *RedisChannel) Publish(ctx context.Context, event tracking.Event) error {
	p, err := json.Marshal(envelope{
		SenderID: c.senderID,
		Type:     event.Type,
		Device:   event.Device,
	})
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	if err := c.client.Publish(ctx, c.channel, p).Err(); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}
	return nil
}

// Subscribe delivers remote events to fn until ctx is cancelled.
// Malformed payloads are logged and skipped.
func (c *RedisChannel) Subscribe(ctx context.Context, fn func(tracking.Event)) error {
	sub := c.client.Subscribe(ctx, c.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribing to %s: %w", c.channel, err)
	}

	go func() {
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return

			case msg, ok := <-ch:
				if !ok {
					return
				}

				var env envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					c.logger.Warn("dropping malformed push message", "channel", c.channel, "error", err)
					continue
				}
				if env.SenderID == c.senderID {
					continue
				}
				fn(tracking.Event{Type: env.Type, Device: env.Device})
			}
		}
	}()

	return nil
}

func (c *RedisChannel) Close() error {
	return c.client.Close()
}
