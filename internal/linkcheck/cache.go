package linkcheck

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// CacheEntry is a remembered external link verdict.
type CacheEntry struct {
	URL         string    `json:"url"`
	Status      Status    `json:"status"`
	Code        int       `json:"code,omitempty"`
	Info        string    `json:"info,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// Cache remembers external link verdicts between runs.
// Lookup returns nil without error when nothing usable is cached.
type Cache interface {
	Lookup(ctx context.Context, url string) (*CacheEntry, error)
	Store(ctx context.Context, entry *CacheEntry) error
}

// Only working verdicts are served from the cache; failures are always re-checked
// so a broken link is never reported from stale data alone.
func usable(entry *CacheEntry, ttl time.Duration, now time.Time) bool {
	if entry == nil || entry.Status != StatusWorking {
		return false
	}
	return ttl > 0 && now.Sub(entry.LastChecked) < ttl
}

// cacheKey maps a URL onto the restricted key alphabet of the KV store.
func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "link." + hex.EncodeToString(sum[:])
}

// MemoryCache is an in-process Cache used by the daemon when NATS is not configured.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]CacheEntry
	now     func() time.Time
}

// NewMemoryCache creates a cache whose working verdicts expire after ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, entries: map[string]CacheEntry{}, now: time.Now}
}

// Lookup implements Cache.
func (m *MemoryCache) Lookup(_ context.Context, url string) (*CacheEntry, error) {
	m.mu.RLock()
	entry, ok := m.entries[cacheKey(url)]
	m.mu.RUnlock()
	if !ok || !usable(&entry, m.ttl, m.now()) {
		return nil, nil
	}
	return &entry, nil
}

// Store implements Cache.
func (m *MemoryCache) Store(_ context.Context, entry *CacheEntry) error {
	entry.LastChecked = m.now()
	m.mu.Lock()
	m.entries[cacheKey(entry.URL)] = *entry
	m.mu.Unlock()
	return nil
}
