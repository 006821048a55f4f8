package bus

import (
	"context"
	"path"
	"sync"
	"time"
)

// MemoryBus is an in-process Bus used by tests and standalone mode. Delivery
// is synchronous: Publish invokes matching handlers before returning, each
// subscription serialized under its own lock so per-channel ordering holds.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   []*memorySub
	kv     map[string]memoryEntry
	closed bool
}

type memorySub struct {
	pattern string
	exact   bool
	handler Handler
	mu      sync.Mutex
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{kv: make(map[string]memoryEntry)}
}

func (s *memorySub) matches(channel string) bool {
	if s.exact {
		return s.pattern == channel
	}
	ok, err := path.Match(s.pattern, channel)
	return err == nil && ok
}

// Publish delivers env to every matching subscriber synchronously.
func (b *MemoryBus) Publish(_ context.Context, channel string, env *Envelope) error {
	// Round-trip through the wire encoding so subscribers observe exactly
	// what a remote peer would.
	data, err := env.Encode()
	if err != nil {
		return err
	}
	decoded, err := DecodeEnvelope(data)
	if err != nil {
		return err
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil
	}
	subs := make([]*memorySub, 0, len(b.subs))
	for _, s := range b.subs {
		if s.matches(channel) {
			subs = append(subs, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range subs {
		s.mu.Lock()
		s.handler(channel, decoded)
		s.mu.Unlock()
	}
	return nil
}

// Subscribe registers h for exact-match delivery on channel.
func (b *MemoryBus) Subscribe(_ context.Context, channel string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, &memorySub{pattern: channel, exact: true, handler: h})
	return nil
}

// PSubscribe registers h for glob-pattern delivery.
func (b *MemoryBus) PSubscribe(_ context.Context, pattern string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, &memorySub{pattern: pattern, handler: h})
	return nil
}

// get returns the live entry for key, purging it if expired.
func (b *MemoryBus) get(key string) (memoryEntry, bool) {
	e, ok := b.kv[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(b.kv, key)
		return memoryEntry{}, false
	}
	return e, true
}

// Get returns the value at key, or ("", false, nil) when absent or expired.
func (b *MemoryBus) Get(_ context.Context, key string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.get(key)
	if !ok {
		return "", false, nil
	}
	return e.value, true, nil
}

// Set stores value at key with no expiry.
func (b *MemoryBus) Set(_ context.Context, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.kv[key] = memoryEntry{value: value}
	return nil
}

// SetEx stores value at key, expiring after ttl.
func (b *MemoryBus) SetEx(_ context.Context, key string, ttl time.Duration, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.kv[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Del removes key.
func (b *MemoryBus) Del(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.kv, key)
	return nil
}

// Exists reports whether key is present and unexpired.
func (b *MemoryBus) Exists(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.get(key)
	return ok, nil
}

// Keys returns all live keys matching the glob pattern.
func (b *MemoryBus) Keys(_ context.Context, pattern string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0)
	for k := range b.kv {
		if _, live := b.get(k); !live {
			continue
		}
		if ok, err := path.Match(pattern, k); err == nil && ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Connected always reports true while the bus is open.
func (b *MemoryBus) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

// Close stops delivery; further publishes are dropped silently.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = nil
	return nil
}
