package broker

import (
	"context"
	"sync"
	"time"
)

// HealthMonitor periodically calls a gateway's KeepAlive and remembers
// only the timestamp of the last success — a liveness probe, not a
// history. Grounded on the original system's gateway health service:
// the same "ping on an interval, expose last-success and a boolean"
// shape, without persisting samples.
type HealthMonitor struct {
	keepAlive func(ctx context.Context) bool
	interval  time.Duration
	staleness time.Duration

	mu          sync.RWMutex
	lastSuccess time.Time

	stop chan struct{}
	once sync.Once
}

// NewHealthMonitor builds a monitor that calls keepAlive every interval
// and considers the gateway unhealthy once staleness has elapsed since
// the last success.
func NewHealthMonitor(keepAlive func(ctx context.Context) bool, interval, staleness time.Duration) *HealthMonitor {
	return &HealthMonitor{
		keepAlive: keepAlive,
		interval:  interval,
		staleness: staleness,
		stop:      make(chan struct{}),
	}
}

// Start runs the probe loop until ctx is done or Stop is called.
func (h *HealthMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	h.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stop:
			return
		case <-ticker.C:
			h.probe(ctx)
		}
	}
}

func (h *HealthMonitor) probe(ctx context.Context) {
	if h.keepAlive == nil || !h.keepAlive(ctx) {
		return
	}
	h.mu.Lock()
	h.lastSuccess = time.Now()
	h.mu.Unlock()
}

// Stop halts the probe loop. Safe to call multiple times.
func (h *HealthMonitor) Stop() {
	h.once.Do(func() { close(h.stop) })
}

// LastSuccess returns the timestamp of the last successful probe, or the
// zero time if none has succeeded yet.
func (h *HealthMonitor) LastSuccess() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastSuccess
}

// Healthy reports whether the last successful probe is within the
// configured staleness window.
func (h *HealthMonitor) Healthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.lastSuccess.IsZero() {
		return false
	}
	return time.Since(h.lastSuccess) <= h.staleness
}
