// Package bus is the single inter-agent medium: publish/subscribe
// channels plus a keyed key/value store with TTLs, atomic counters, and
// bounded lists. Agents never share memory or call each other directly;
// everything crosses this interface.
package bus

import (
	"context"
	"time"
)

// Message is one delivery received from a subscription.
type Message struct {
	Channel string
	Payload []byte
}

// Subscription is a live channel subscription. Receive blocks until the
// next message, ctx cancellation, or Close.
type Subscription interface {
	Receive(ctx context.Context) (Message, error)
	Close() error
}

// Bus is the message bus abstraction every agent depends on: pub/sub
// channels for hand-offs plus a keyed KV store for shared state. Redis is
// the only implementation (internal/bus/redis.go); the interface exists so
// agent logic never imports go-redis directly and so tests can run against
// miniredis or a fake.
type Bus interface {
	// Publish sends payload on channel.
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe opens a subscription to one or more channels.
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)

	// Get reads the value at key, returning ("", ErrKeyNotFound) if absent.
	Get(ctx context.Context, key string) (string, error)
	// Set writes value at key with the given TTL (0 means no expiry).
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// Expire resets the TTL on an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Del removes a key.
	Del(ctx context.Context, key string) error

	// LPush prepends value to the list at key (newest-first ordering).
	LPush(ctx context.Context, key string, value string) error
	// LTrim keeps only the first count elements of the list at key.
	LTrim(ctx context.Context, key string, count int64) error
	// LRange returns elements [start, stop] of the list at key (inclusive,
	// 0-indexed; -1 means "to the end").
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// Incr atomically increments the integer at key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// LLen returns the length of the list at key (0 if the key is absent).
	LLen(ctx context.Context, key string) (int64, error)
	// Scan returns every key matching pattern, cursoring internally so a
	// large keyspace never blocks Redis the way KEYS would.
	Scan(ctx context.Context, pattern string) ([]string, error)

	Close() error
}

// ErrKeyNotFound is returned by Get when key does not exist.
var ErrKeyNotFound = errKeyNotFound{}

type errKeyNotFound struct{}

func (errKeyNotFound) Error() string { return "bus: key not found" }
