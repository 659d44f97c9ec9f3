package monitor

import (
	"sync"
	"time"
)

// cooldownTracker suppresses a rule's alerts until its cooldown window
// elapses. It is owned exclusively by the monitor loop; no external caller
// mutates it (spec §5 "shared resources").
type cooldownTracker struct {
	mu       sync.Mutex
	window   time.Duration
	firedAt  map[string]time.Time
}

func newCooldownTracker(window time.Duration) *cooldownTracker {
	return &cooldownTracker{window: window, firedAt: make(map[string]time.Time)}
}

// allow reports whether ruleID may fire at now, and if so records the firing.
func (c *cooldownTracker) allow(ruleID string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := c.firedAt[ruleID]; ok && now.Before(last.Add(c.window)) {
		return false
	}
	c.firedAt[ruleID] = now
	return true
}
