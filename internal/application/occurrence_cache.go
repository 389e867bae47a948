package application

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// occurrenceCache stores resolved preview dates per service day so repeated
// calendar renders skip the resolver while the service day is unchanged.
type occurrenceCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]occurrenceCacheEntry
}

type occurrenceCacheEntry struct {
	serviceDayID string
	dates        []time.Time
	expiresAt    time.Time
}

func newOccurrenceCache(ttl time.Duration, maxEntries int, now func() time.Time) *occurrenceCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 256
	}
	if now == nil {
		now = time.Now
	}
	return &occurrenceCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]occurrenceCacheEntry),
	}
}

func (c *occurrenceCache) Get(key string) ([]time.Time, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return cloneDates(entry.dates), true
}

func (c *occurrenceCache) Store(key, serviceDayID string, dates []time.Time) {
	if c == nil {
		return
	}
	cloned := cloneDates(dates)
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[key] = occurrenceCacheEntry{serviceDayID: serviceDayID, dates: cloned, expiresAt: expiry}
}

// InvalidateServiceDay drops every entry computed for serviceDayID.
func (c *occurrenceCache) InvalidateServiceDay(serviceDayID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if entry.serviceDayID == serviceDayID {
			delete(c.entries, key)
		}
	}
}

func (c *occurrenceCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *occurrenceCache) evictOneLocked() {
	for key := range c.entries {
		delete(c.entries, key)
		return
	}
}

func cloneDates(dates []time.Time) []time.Time {
	if len(dates) == 0 {
		return nil
	}
	out := make([]time.Time, len(dates))
	copy(out, dates)
	return out
}

func buildOccurrenceCacheKey(organizationID, serviceDayID string, from time.Time, count int) string {
	builder := strings.Builder{}
	builder.WriteString(organizationID)
	builder.WriteString("|")
	builder.WriteString(serviceDayID)
	builder.WriteString("|")
	builder.WriteString(from.Format(time.DateOnly))
	builder.WriteString("|")
	builder.WriteString(strconv.Itoa(count))
	return builder.String()
}
