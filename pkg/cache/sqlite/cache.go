package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/workyterm/workyterm/pkg/cache"
	"github.com/workyterm/workyterm/pkg/models"
)

// Cache is a persistent response cache backed by SQLite.
type Cache struct {
	db     *sql.DB
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
	now    func() time.Time
}

var _ cache.Store = (*Cache)(nil)

const createCacheTable = `
CREATE TABLE IF NOT EXISTS cache_entries (
	cache_key TEXT PRIMARY KEY,
	provider TEXT NOT NULL,
	response TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	ttl_ms INTEGER NOT NULL
);
`

// New opens (or creates) the cache database at dbPath. ttl is applied to
// entries stored without their own TTL.
func New(dbPath string, ttl time.Duration) (*Cache, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, cache.IOError("create cache dir", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, cache.IOError("open cache db", err)
	}

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, cache.IOError("migrate cache db", err)
	}

	return &Cache{db: db, ttl: ttl, now: time.Now}, nil
}

// dsn enables WAL and a busy timeout so concurrent council writers queue
// instead of failing with SQLITE_BUSY.
func dsn(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
}

// Get retrieves a live entry. Expired entries are reported as absent.
func (c *Cache) Get(ctx context.Context, key models.CacheKey) (models.CacheEntry, bool, error) {
	var (
		e         models.CacheEntry
		provider  string
		createdMs int64
		ttlMs     int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT provider, response, created_at, ttl_ms FROM cache_entries WHERE cache_key = ?`,
		string(key),
	).Scan(&provider, &e.Response, &createdMs, &ttlMs)
	if errors.Is(err, sql.ErrNoRows) {
		c.misses.Add(1)
		return models.CacheEntry{}, false, nil
	}
	if err != nil {
		c.misses.Add(1)
		return models.CacheEntry{}, false, cache.IOError("cache get", err)
	}

	e.Key = key
	e.ProviderID = models.ProviderID(provider)
	e.CreatedAt = time.UnixMilli(createdMs).UTC()
	e.TTL = time.Duration(ttlMs) * time.Millisecond
	if e.Expired(c.now()) {
		c.misses.Add(1)
		return models.CacheEntry{}, false, nil
	}

	c.hits.Add(1)
	return e, true, nil
}

// Put stores an entry, replacing any previous value for its key.
func (c *Cache) Put(ctx context.Context, e models.CacheEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = c.now()
	}
	if e.TTL == 0 {
		e.TTL = c.ttl
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (cache_key, provider, response, created_at, ttl_ms)
		 VALUES (?, ?, ?, ?, ?)`,
		string(e.Key), string(e.ProviderID), e.Response, e.CreatedAt.UnixMilli(), e.TTL.Milliseconds(),
	)
	if err != nil {
		return cache.IOError("cache put", err)
	}
	return nil
}

// Stats returns entry counts, stored bytes and hit/miss counters.
func (c *Cache) Stats(ctx context.Context) (models.CacheStats, error) {
	var s models.CacheStats
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN ? - created_at > ttl_ms THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(LENGTH(CAST(response AS BLOB))), 0)
		 FROM cache_entries`,
		c.now().UnixMilli(),
	).Scan(&s.Entries, &s.Expired, &s.Bytes)
	if err != nil {
		return models.CacheStats{}, cache.IOError("cache stats", err)
	}
	s.Hits = c.hits.Load()
	s.Misses = c.misses.Load()
	return s, nil
}

// Prune deletes expired entries and reports how many were removed.
func (c *Cache) Prune(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE ? - created_at > ttl_ms`,
		c.now().UnixMilli(),
	)
	if err != nil {
		return 0, cache.IOError("cache prune", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Clear removes cache entries. If expiredOnly is true, only expired entries are removed.
func (c *Cache) Clear(ctx context.Context, expiredOnly bool) error {
	if expiredOnly {
		_, err := c.Prune(ctx)
		return err
	}
	if _, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return cache.IOError("cache clear", err)
	}
	return nil
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
