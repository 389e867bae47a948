package application

import (
	"testing"
	"time"
)

func TestOccurrenceCacheStoresAndReturnsCopies(t *testing.T) {
	t.Parallel()

	current := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	cache := newOccurrenceCache(time.Minute, 4, func() time.Time { return current })

	original := []time.Time{time.Date(2024, 5, 5, 0, 0, 0, 0, time.UTC)}
	cache.Store("key", "day-1", original)

	// Mutating the original slice should not affect the cached copy.
	original[0] = time.Time{}

	cached, ok := cache.Get("key")
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if cached[0].Day() != 5 {
		t.Fatalf("expected cached date to remain unchanged, got %v", cached[0])
	}

	cached[0] = time.Time{}
	cachedAgain, ok := cache.Get("key")
	if !ok || cachedAgain[0].Day() != 5 {
		t.Fatalf("expected cache to return independent copy, got %v", cachedAgain)
	}
}

func TestOccurrenceCacheExpiresEntries(t *testing.T) {
	t.Parallel()

	current := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	cache := newOccurrenceCache(time.Second, 4, func() time.Time { return current })

	cache.Store("key", "day-1", []time.Time{current})
	if _, ok := cache.Get("key"); !ok {
		t.Fatalf("expected cache hit before expiry")
	}

	current = current.Add(2 * time.Second)
	if _, ok := cache.Get("key"); ok {
		t.Fatalf("expected cache entry to expire")
	}
}

func TestOccurrenceCacheInvalidateServiceDay(t *testing.T) {
	t.Parallel()

	cache := newOccurrenceCache(time.Minute, 4, time.Now)
	cache.Store("a", "day-1", []time.Time{time.Now()})
	cache.Store("b", "day-2", []time.Time{time.Now()})

	cache.InvalidateServiceDay("day-1")

	if _, ok := cache.Get("a"); ok {
		t.Fatalf("expected day-1 entry to be dropped")
	}
	if _, ok := cache.Get("b"); !ok {
		t.Fatalf("expected day-2 entry to survive")
	}
}

func TestOccurrenceCacheEvictsWhenFull(t *testing.T) {
	t.Parallel()

	cache := newOccurrenceCache(time.Minute, 2, time.Now)
	cache.Store("a", "day-1", nil)
	cache.Store("b", "day-1", nil)
	cache.Store("c", "day-1", nil)

	cache.mu.RLock()
	size := len(cache.entries)
	cache.mu.RUnlock()
	if size != 2 {
		t.Fatalf("expected cache to hold 2 entries, got %d", size)
	}
}
