package storage

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
)

// DefaultTTL bounds cached reads when no TTL is configured.
const DefaultTTL = 30 * time.Second

var fromTableRe = regexp.MustCompile(`(?i)\bfrom\s+"?([a-zA-Z0-9_]+)"?`)
var writeTableRe = regexp.MustCompile(`(?i)\b(?:into|update|from)\s+"?([a-zA-Z0-9_]+)"?`)

// Cache is a transparent TTL read-cache around a Store. Cached entries are
// scoped to the table they were read from; a write through the cache
// invalidates only that table's entries, and a transaction clears the whole
// cache since the affected tables are unknown. There is no eviction policy
// beyond TTL expiry.
type Cache struct {
	inner Store
	ttl   time.Duration
	log   *slog.Logger

	// now is replaceable so tests can advance time.
	now func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
	tables  map[string]map[string]struct{}
}

type cacheEntry struct {
	value   any
	table   string
	expires time.Time
}

// NewCache wraps a store with a TTL read-cache.
func NewCache(inner Store, ttl time.Duration, log *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = slog.Default()
	}

	return &Cache{
		inner:   inner,
		ttl:     ttl,
		log:     log.With("component", "storage.cache"),
		now:     time.Now,
		entries: make(map[string]cacheEntry),
		tables:  make(map[string]map[string]struct{}),
	}
}

func (c *Cache) QueryOne(ctx context.Context, query string, args ...any) (Row, error) {
	table := tableFromQuery(query)
	if table == "" {
		return c.inner.QueryOne(ctx, query, args...)
	}

	key := cacheKey("one", query, args)
	if cached, ok := c.get(key); ok {
		row, _ := cached.(Row)
		return row, nil
	}

	row, err := c.inner.QueryOne(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	c.put(table, key, row)

	return row, nil
}

func (c *Cache) QueryAll(ctx context.Context, query string, args ...any) ([]Row, error) {
	table := tableFromQuery(query)
	if table == "" {
		return c.inner.QueryAll(ctx, query, args...)
	}

	key := cacheKey("all", query, args)
	if cached, ok := c.get(key); ok {
		rows, _ := cached.([]Row)
		return rows, nil
	}

	rows, err := c.inner.QueryAll(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	c.put(table, key, rows)

	return rows, nil
}

func (c *Cache) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	affected, err := c.inner.Exec(ctx, query, args...)
	if err != nil {
		return affected, err
	}

	if table := writeTableFromQuery(query); table != "" {
		c.invalidateTable(table)
	} else {
		// Statement shape not recognized; drop everything to stay correct.
		c.Flush()
	}

	return affected, nil
}

func (c *Cache) Insert(ctx context.Context, table string, values Row) (int64, error) {
	id, err := c.inner.Insert(ctx, table, values)
	if err == nil {
		c.invalidateTable(table)
	}
	return id, err
}

func (c *Cache) Update(ctx context.Context, table string, values Row, where string, args ...any) (int64, error) {
	affected, err := c.inner.Update(ctx, table, values, where, args...)
	if err == nil {
		c.invalidateTable(table)
	}
	return affected, err
}

func (c *Cache) Delete(ctx context.Context, table string, where string, args ...any) (int64, error) {
	affected, err := c.inner.Delete(ctx, table, where, args...)
	if err == nil {
		c.invalidateTable(table)
	}
	return affected, err
}

func (c *Cache) FindByID(ctx context.Context, table string, id any) (Row, error) {
	key := cacheKey("id", table, []any{id})
	if cached, ok := c.get(key); ok {
		row, _ := cached.(Row)
		return row, nil
	}

	row, err := c.inner.FindByID(ctx, table, id)
	if err != nil {
		return nil, err
	}
	c.put(table, key, row)

	return row, nil
}

func (c *Cache) FindAll(ctx context.Context, table string) ([]Row, error) {
	key := cacheKey("table", table, nil)
	if cached, ok := c.get(key); ok {
		rows, _ := cached.([]Row)
		return rows, nil
	}

	rows, err := c.inner.FindAll(ctx, table)
	if err != nil {
		return nil, err
	}
	c.put(table, key, rows)

	return rows, nil
}

// Transaction delegates to the inner store and clears the whole cache
// afterwards: the tables touched inside fn are unknown.
func (c *Cache) Transaction(ctx context.Context, fn func(tx Store) error) error {
	err := c.inner.Transaction(ctx, fn)
	c.Flush()
	return err
}

// Flush drops every cached entry.
func (c *Cache) Flush() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.tables = make(map[string]map[string]struct{})
	c.mu.Unlock()
}

func (c *Cache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expires) {
		delete(c.entries, key)
		if keys := c.tables[entry.table]; keys != nil {
			delete(keys, key)
			if len(keys) == 0 {
				delete(c.tables, entry.table)
			}
		}
		return nil, false
	}

	return entry.value, true
}

func (c *Cache) put(table, key string, value any) {
	table = strings.ToLower(table)
	c.mu.Lock()
	c.entries[key] = cacheEntry{value: value, table: table, expires: c.now().Add(c.ttl)}
	keys, ok := c.tables[table]
	if !ok {
		keys = make(map[string]struct{})
		c.tables[table] = keys
	}
	keys[key] = struct{}{}
	c.mu.Unlock()
}

func (c *Cache) invalidateTable(table string) {
	table = strings.ToLower(table)
	c.mu.Lock()
	for key := range c.tables[table] {
		delete(c.entries, key)
	}
	delete(c.tables, table)
	c.mu.Unlock()
}

func cacheKey(prefix, base string, args []any) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte(':')
	b.WriteString(base)
	for _, arg := range args {
		b.WriteByte('|')
		fmt.Fprintf(&b, "%v", arg)
	}

	return b.String()
}

// tableFromQuery extracts the table a SELECT reads from, or "" when the
// statement shape is not recognized (such reads bypass the cache).
func tableFromQuery(query string) string {
	match := fromTableRe.FindStringSubmatch(query)
	if len(match) < 2 {
		return ""
	}
	return strings.ToLower(match[1])
}

// writeTableFromQuery extracts the table an INSERT/UPDATE/DELETE writes to.
func writeTableFromQuery(query string) string {
	match := writeTableRe.FindStringSubmatch(query)
	if len(match) < 2 {
		return ""
	}
	return strings.ToLower(match[1])
}
