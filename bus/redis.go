package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentuity/go-common/logger"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the well-known pub/sub channel invalidations travel
// on. Instances must agree on it to see each other's evictions.
const DefaultChannel = "edgecache:invalidation"

type redisConfig struct {
	channel string
}

// RedisOption configures the Redis-backed Bus.
type RedisOption func(*redisConfig)

// WithChannel overrides the pub/sub channel name.
func WithChannel(name string) RedisOption {
	return func(c *redisConfig) { c.channel = name }
}

type redisSubscriber struct {
	pubsub *redis.PubSub
}

func (s *redisSubscriber) Close() error {
	return s.pubsub.Close()
}

type redisBus struct {
	rdb    *redis.Client
	ctx    context.Context
	cancel context.CancelFunc
	logger logger.Logger
	cfg    redisConfig
}

var _ Bus = (*redisBus)(nil)

// NewRedis returns a Bus over Redis pub/sub. Messages are JSON on the
// configured channel. The caller owns the redis.Client lifecycle.
func NewRedis(ctx context.Context, log logger.Logger, rdb *redis.Client, opts ...RedisOption) Bus {
	cfg := redisConfig{channel: DefaultChannel}
	for _, opt := range opts {
		opt(&cfg)
	}
	ctx, cancel := context.WithCancel(ctx)
	return &redisBus{
		rdb:    rdb,
		ctx:    ctx,
		cancel: cancel,
		logger: log.With(map[string]interface{}{"component": "invalidation-bus"}),
		cfg:    cfg,
	}
}

func (b *redisBus) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.cfg.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (b *redisBus) Subscribe(ctx context.Context, handler Handler) (Subscriber, error) {
	pubsub := b.rdb.Subscribe(ctx, b.cfg.channel)

	// Force the subscription onto the wire before returning so callers can
	// rely on receiving messages published after Subscribe returns.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-b.ctx.Done():
				return
			case <-ctx.Done():
				return
			case redisMsg, ok := <-ch:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(redisMsg.Payload), &msg); err != nil {
					b.logger.Error("failed to decode invalidation message: %s", err)
					continue
				}
				handler(ctx, msg)
			}
		}
	}()

	return &redisSubscriber{pubsub: pubsub}, nil
}

func (b *redisBus) Close() error {
	b.cancel()
	return nil
}
