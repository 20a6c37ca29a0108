package bus

import (
	"context"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jondmarien/hemostat/internal/tracing"
	hemoerrors "github.com/jondmarien/hemostat/pkg/shared/errors"
)

// RedisBus implements Bus on top of a single Redis connection, with pool
// and timeout tuning matched to a deduplication/storm-detection workload:
// many small, latency-sensitive ops rather than a few large ones.
type RedisBus struct {
	client *goredis.Client
}

// NewRedisBus dials addr and verifies connectivity with a PING.
func NewRedisBus(ctx context.Context, addr string) (*RedisBus, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		PoolSize:     20,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, hemoerrors.FailedToWithDetails("connect to redis", "bus", addr, err)
	}

	return &RedisBus{client: client}, nil
}

func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	ctx, end := tracing.StartBusSpan(ctx, "publish", channel)
	err := b.client.Publish(ctx, channel, payload).Err()
	end(err)
	if err != nil {
		return hemoerrors.FailedToWithDetails("publish message", "bus", channel, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	ctx, end := tracing.StartBusSpan(ctx, "subscribe", strings.Join(channels, ","))
	pubsub := b.client.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		end(err)
		return nil, hemoerrors.FailedTo("subscribe to channels", err)
	}
	end(nil)
	return &redisSubscription{pubsub: pubsub}, nil
}

func (b *RedisBus) Get(ctx context.Context, key string) (string, error) {
	v, err := b.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", hemoerrors.FailedToWithDetails("get key", "bus", key, err)
	}
	return v, nil
}

func (b *RedisBus) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := b.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return hemoerrors.FailedToWithDetails("set key", "bus", key, err)
	}
	return nil
}

func (b *RedisBus) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := b.client.Expire(ctx, key, ttl).Err(); err != nil {
		return hemoerrors.FailedToWithDetails("expire key", "bus", key, err)
	}
	return nil
}

func (b *RedisBus) Del(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, key).Err(); err != nil {
		return hemoerrors.FailedToWithDetails("delete key", "bus", key, err)
	}
	return nil
}

func (b *RedisBus) LPush(ctx context.Context, key string, value string) error {
	if err := b.client.LPush(ctx, key, value).Err(); err != nil {
		return hemoerrors.FailedToWithDetails("push list element", "bus", key, err)
	}
	return nil
}

func (b *RedisBus) LTrim(ctx context.Context, key string, count int64) error {
	if err := b.client.LTrim(ctx, key, 0, count-1).Err(); err != nil {
		return hemoerrors.FailedToWithDetails("trim list", "bus", key, err)
	}
	return nil
}

func (b *RedisBus) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	v, err := b.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, hemoerrors.FailedToWithDetails("range list", "bus", key, err)
	}
	return v, nil
}

func (b *RedisBus) Incr(ctx context.Context, key string) (int64, error) {
	v, err := b.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, hemoerrors.FailedToWithDetails("increment counter", "bus", key, err)
	}
	return v, nil
}

func (b *RedisBus) LLen(ctx context.Context, key string) (int64, error) {
	v, err := b.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, hemoerrors.FailedToWithDetails("get list length", "bus", key, err)
	}
	return v, nil
}

func (b *RedisBus) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := b.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, hemoerrors.FailedToWithDetails("scan keys", "bus", pattern, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}

type redisSubscription struct {
	pubsub *goredis.PubSub
}

func (s *redisSubscription) Receive(ctx context.Context) (Message, error) {
	msg, err := s.pubsub.ReceiveMessage(ctx)
	if err != nil {
		return Message{}, err
	}
	return Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}, nil
}

func (s *redisSubscription) Close() error {
	return s.pubsub.Close()
}
