package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/riftwalk/server/internal/config"
)

// RedisBus implements Bus on a Redis connection pair: one client for
// commands and publishes, one pub/sub connection per subscription.
type RedisBus struct {
	client *redis.Client
	logger *zap.Logger

	mu   sync.Mutex
	subs []*redis.PubSub
}

// NewRedisBus connects to Redis using the configured URL and verifies the
// link with a ping.
//
// Precondition: cfg.URL must be a valid redis:// URL.
// Postcondition: Returns a connected RedisBus or a non-nil error.
func NewRedisBus(ctx context.Context, cfg config.BusConfig, logger *zap.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing bus url: %w", err)
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging bus: %w", err)
	}

	return &RedisBus{client: client, logger: logger}, nil
}

// Publish sends the envelope to channel. A publish while the link is down is
// dropped with a warning; the simulation treats the command as executed.
//
// Postcondition: Never returns a transport error.
func (b *RedisBus) Publish(ctx context.Context, channel string, env *Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Warn("bus publish dropped",
			zap.String("channel", channel),
			zap.String("type", string(env.Type)),
			zap.Error(err),
		)
	}
	return nil
}

// Subscribe registers h for exact-match delivery on channel. Handler
// invocations for the channel are serialized on a dedicated goroutine.
//
// Postcondition: h receives every decodable envelope published to channel
// after this call returns.
func (b *RedisBus) Subscribe(ctx context.Context, channel string, h Handler) error {
	sub := b.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribing to %s: %w", channel, err)
	}
	b.track(sub)
	go b.pump(ctx, sub, h)
	return nil
}

// PSubscribe registers h for glob-pattern delivery.
func (b *RedisBus) PSubscribe(ctx context.Context, pattern string, h Handler) error {
	sub := b.client.PSubscribe(ctx, pattern)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("psubscribing to %s: %w", pattern, err)
	}
	b.track(sub)
	go b.pump(ctx, sub, h)
	return nil
}

func (b *RedisBus) track(sub *redis.PubSub) {
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
}

// pump delivers messages from one subscription in order. Undecodable
// messages are logged and dropped.
func (b *RedisBus) pump(ctx context.Context, sub *redis.PubSub, h Handler) {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			env, err := DecodeEnvelope([]byte(msg.Payload))
			if err != nil {
				b.logger.Warn("dropping undecodable bus message",
					zap.String("channel", msg.Channel),
					zap.Error(err),
				)
				continue
			}
			h(msg.Channel, env)
		}
	}
}

// Get returns the value at key, or ("", false, nil) when absent.
func (b *RedisBus) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := b.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting %s: %w", key, err)
	}
	return val, true, nil
}

// Set stores value at key with no expiry.
func (b *RedisBus) Set(ctx context.Context, key, value string) error {
	if err := b.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

// SetEx stores value at key, expiring after ttl.
//
// Precondition: ttl must be > 0.
func (b *RedisBus) SetEx(ctx context.Context, key string, ttl time.Duration, value string) error {
	if err := b.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("setting %s with ttl: %w", key, err)
	}
	return nil
}

// Del removes key.
func (b *RedisBus) Del(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Exists reports whether key is present.
func (b *RedisBus) Exists(ctx context.Context, key string) (bool, error) {
	n, err := b.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", key, err)
	}
	return n > 0, nil
}

// Keys returns all keys matching the glob pattern.
//
// Registry scans are small (one key per server or zone), so KEYS is
// acceptable here; swap for SCAN if assignments ever grow large.
func (b *RedisBus) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := b.client.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", pattern, err)
	}
	return keys, nil
}

// Connected reports whether a short ping round-trips.
func (b *RedisBus) Connected() bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return b.client.Ping(ctx).Err() == nil
}

// Close tears down all subscriptions and the client connection.
//
// Postcondition: The bus is unusable after Close.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	for _, s := range subs {
		_ = s.Close()
	}
	return b.client.Close()
}
