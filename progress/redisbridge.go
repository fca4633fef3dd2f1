package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisChannelPrefix is the pub/sub channel prefix for progress
// events; the session id is appended (studio:progress:<sessionID>).
const DefaultRedisChannelPrefix = "studio:progress"

// RedisBridge publishes progress events to Redis pub/sub so browser
// sessions can subscribe without a direct connection to the worker.
type RedisBridge struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// RedisBridgeOption configures a RedisBridge.
type RedisBridgeOption func(*RedisBridge)

// WithRedisChannelPrefix overrides the channel prefix.
func WithRedisChannelPrefix(prefix string) RedisBridgeOption {
	return func(b *RedisBridge) { b.prefix = prefix }
}

// WithRedisLogger sets the bridge logger.
func WithRedisLogger(logger *slog.Logger) RedisBridgeOption {
	return func(b *RedisBridge) { b.logger = logger }
}

// NewRedisBridge returns a bridge publishing through the given client.
func NewRedisBridge(client *redis.Client, opts ...RedisBridgeOption) *RedisBridge {
	b := &RedisBridge{
		client: client,
		prefix: DefaultRedisChannelPrefix,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Callback returns a progress callback that publishes each event. Publish
// failures are logged and swallowed; progress delivery never fails a run.
func (b *RedisBridge) Callback() Callback {
	return func(evt Event) {
		data, err := json.Marshal(evt)
		if err != nil {
			b.logger.Warn("Failed to marshal progress event", "type", evt.Type, "error", err)
			return
		}

		channel := fmt.Sprintf("%s:%s", b.prefix, evt.SessionID)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
			b.logger.Warn("Failed to publish progress event",
				"channel", channel,
				"type", evt.Type,
				"error", err)
		}
	}
}

// Subscribe returns a channel of events published for the given session id.
// The caller cancels ctx to stop receiving.
func (b *RedisBridge) Subscribe(ctx context.Context, sessionID string) (<-chan Event, error) {
	channel := fmt.Sprintf("%s:%s", b.prefix, sessionID)
	sub := b.client.Subscribe(ctx, channel)

	// Force the subscription to be established before returning.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				var evt Event
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					b.logger.Warn("Failed to decode progress event", "error", err)
					continue
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
