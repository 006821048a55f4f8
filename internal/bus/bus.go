// Package bus provides the cluster message fabric: channel pub/sub with
// ordered per-channel delivery plus a small key-value surface with TTL.
// Zone servers and gateways each own their own Bus client pair.
package bus

import (
	"context"
	"time"
)

// Handler consumes one envelope from a subscribed channel. Invocations for a
// single channel are serialized; handlers must not block indefinitely.
type Handler func(channel string, env *Envelope)

// Bus is the pub/sub and KV surface shared by all processes.
//
// Delivery is fire-and-forget: there is no redelivery on subscriber failure,
// and a publish while disconnected is dropped with a warning, never an error
// surfaced to the simulation.
type Bus interface {
	// Publish sends an envelope to every current subscriber of channel.
	Publish(ctx context.Context, channel string, env *Envelope) error
	// Subscribe registers a handler for exact-match channel delivery.
	Subscribe(ctx context.Context, channel string, h Handler) error
	// PSubscribe registers a handler for glob-pattern channel delivery,
	// e.g. "zone:*:input".
	PSubscribe(ctx context.Context, pattern string, h Handler) error

	// Get returns the value at key, or ("", false, nil) when absent.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value at key with no expiry.
	Set(ctx context.Context, key, value string) error
	// SetEx stores value at key, expiring after ttl.
	SetEx(ctx context.Context, key string, ttl time.Duration, value string) error
	// Del removes key. Removing an absent key is not an error.
	Del(ctx context.Context, key string) error
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// Keys returns all keys matching the glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Connected reports whether the bus link is currently up.
	Connected() bool
	// Close tears down subscriptions and the connection.
	Close() error
}
