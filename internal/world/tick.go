package world

import (
	"context"
	"sync"
	"time"
)

// TickManager drives a fixed-rate simulation tick for each registered zone.
// Callbacks receive the elapsed seconds since their previous invocation.
//
// Invariant: each callback is invoked at most once per tick interval.
type TickManager struct {
	interval time.Duration
	mu       sync.Mutex
	ticks    map[string]func(dt float64)
	last     time.Time
	now      func() time.Time
}

// NewTickManager returns a manager that fires ticks every interval.
//
// Precondition: interval must be > 0.
func NewTickManager(interval time.Duration) *TickManager {
	if interval <= 0 {
		panic("world.NewTickManager: interval must be > 0")
	}
	return &TickManager{
		interval: interval,
		ticks:    make(map[string]func(dt float64)),
		now:      time.Now,
	}
}

// RegisterTick registers a callback for zoneID. Replaces any existing callback.
func (t *TickManager) RegisterTick(zoneID string, fn func(dt float64)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ticks[zoneID] = fn
}

// Unregister removes the tick callback for zoneID.
func (t *TickManager) Unregister(zoneID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.ticks, zoneID)
}

// Start begins the tick loop. Runs until ctx is cancelled.
func (t *TickManager) Start(ctx context.Context) {
	t.mu.Lock()
	t.last = t.now()
	t.mu.Unlock()

	go func() {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.fire()
			}
		}
	}()
}

func (t *TickManager) fire() {
	t.mu.Lock()
	now := t.now()
	dt := now.Sub(t.last).Seconds()
	t.last = now
	callbacks := make([]func(dt float64), 0, len(t.ticks))
	for _, fn := range t.ticks {
		callbacks = append(callbacks, fn)
	}
	t.mu.Unlock()

	for _, fn := range callbacks {
		fn(dt)
	}
}
