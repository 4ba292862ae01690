package oracle

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AditiPrabhuA/gomarble/scrape"
)

// Cache stores resolved selector maps keyed by (host, DOM-shape
// fingerprint) with a TTL. It is the only state shared across scrape
// sessions: read-mostly, bounded, and explicitly invalidated — a key
// built from a different fingerprint simply never matches.
//
// Entries are mirrored to SQLite so selector knowledge survives
// restarts; review data itself is never persisted anywhere.
type Cache struct {
	ttl    time.Duration
	max    int
	logger *slog.Logger
	now    func() time.Time

	mu  sync.Mutex
	mem map[string]cacheEntry
	db  *sql.DB
}

type cacheEntry struct {
	selectors scrape.SelectorMap
	storedAt  time.Time
}

const cacheSchema = `
CREATE TABLE IF NOT EXISTS selector_cache (
	cache_key TEXT PRIMARY KEY,
	selectors TEXT NOT NULL,
	stored_at INTEGER NOT NULL
);
`

// OpenCache creates a Cache backed by the SQLite database at path.
// An empty path keeps the cache memory-only.
func OpenCache(path string, ttl time.Duration, maxEntries int, logger *slog.Logger) (*Cache, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Cache{
		ttl:    ttl,
		max:    maxEntries,
		logger: logger,
		now:    time.Now,
		mem:    make(map[string]cacheEntry),
	}

	if path != "" {
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, fmt.Errorf("oracle: open cache db: %w", err)
		}
		if _, err := db.Exec(cacheSchema); err != nil {
			db.Close()
			return nil, fmt.Errorf("oracle: init cache schema: %w", err)
		}
		c.db = db
	}

	return c, nil
}

// Close releases the backing database, if any.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// CacheKey builds the cache key for a host and DOM-shape fingerprint.
func CacheKey(host, fingerprint string) string {
	return host + "\x00" + fingerprint
}

// Get returns a cached selector map, consulting memory first and then
// the database. Expired entries are treated as absent.
func (c *Cache) Get(key string) (scrape.SelectorMap, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.mem[key]; ok {
		if c.now().Sub(e.storedAt) < c.ttl {
			return e.selectors, true
		}
		delete(c.mem, key)
	}

	if c.db == nil {
		return scrape.SelectorMap{}, false
	}

	var raw string
	var storedAt int64
	err := c.db.QueryRow(
		`SELECT selectors, stored_at FROM selector_cache WHERE cache_key = ?`, key).
		Scan(&raw, &storedAt)
	if err != nil {
		return scrape.SelectorMap{}, false
	}
	if c.now().Sub(time.Unix(storedAt, 0)) >= c.ttl {
		c.db.Exec(`DELETE FROM selector_cache WHERE cache_key = ?`, key)
		return scrape.SelectorMap{}, false
	}

	var m scrape.SelectorMap
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return scrape.SelectorMap{}, false
	}

	c.mem[key] = cacheEntry{selectors: m, storedAt: time.Unix(storedAt, 0)}
	return m, true
}

// Put stores a selector map under key, evicting the oldest in-memory
// entry past the bound.
func (c *Cache) Put(key string, m scrape.SelectorMap) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mem[key] = cacheEntry{selectors: m, storedAt: c.now()}
	c.evictLocked()

	if c.db == nil {
		return
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return
	}
	_, err = c.db.Exec(
		`INSERT INTO selector_cache (cache_key, selectors, stored_at) VALUES (?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET selectors = excluded.selectors, stored_at = excluded.stored_at`,
		key, string(raw), c.now().Unix())
	if err != nil {
		c.logger.Warn("oracle: cache persist failed", "error", err)
	}
}

func (c *Cache) evictLocked() {
	for len(c.mem) > c.max {
		oldestKey := ""
		var oldest time.Time
		for k, e := range c.mem {
			if oldestKey == "" || e.storedAt.Before(oldest) {
				oldestKey = k
				oldest = e.storedAt
			}
		}
		delete(c.mem, oldestKey)
	}
}
