package recommend

import (
	"sync"
	"time"

	"github.com/Veraticus/the-points-must-flow/internal/model"
)

// cacheEntry is a cached wallet snapshot.
type cacheEntry struct {
	expiry      time.Time
	instruments []model.Instrument
}

// walletCache provides thread-safe caching of wallet snapshots.
type walletCache struct {
	entries map[string]cacheEntry
	stopCh  chan struct{}
	ttl     time.Duration
	mu      sync.RWMutex
	once    sync.Once
}

// newWalletCache creates a new cache with the specified TTL.
func newWalletCache(ttl time.Duration) *walletCache {
	if ttl == 0 {
		ttl = time.Minute
	}

	cache := &walletCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}

	go cache.cleanup()

	return cache
}

// get retrieves a wallet snapshot if it exists and hasn't expired.
func (c *walletCache) get(walletID string) ([]model.Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[walletID]
	if !exists || time.Now().After(entry.expiry) {
		return nil, false
	}
	return entry.instruments, true
}

// set stores a wallet snapshot.
func (c *walletCache) set(walletID string, instruments []model.Instrument) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[walletID] = cacheEntry{
		instruments: instruments,
		expiry:      time.Now().Add(c.ttl),
	}
}

// invalidate drops the snapshot for a wallet.
func (c *walletCache) invalidate(walletID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, walletID)
}

// cleanup periodically removes expired entries.
func (c *walletCache) cleanup() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, entry := range c.entries {
				if now.After(entry.expiry) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// close stops the cleanup goroutine.
func (c *walletCache) close() {
	c.once.Do(func() { close(c.stopCh) })
}
