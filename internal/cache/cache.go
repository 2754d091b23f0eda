// Package cache implements the Response Cache: a fingerprinted KV cache
// over command output, with per-request TTL override, refresh, and
// partial multi-command hit/miss fan-out.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Status is the per-command cache outcome reported in a response.
type Status string

const (
	Hit     Status = "HIT"
	Miss    Status = "MISS"
	Refresh Status = "REFRESH"
	Bypass  Status = "BYPASS"
)

// Entry is a cached command output, keyed by Fingerprint.
type Entry struct {
	RawOutput string
	CachedAt  time.Time
	TTLSeconds int
}

// Outcome is the result of looking up one command: whether it hit, and the
// cached entry if so.
type Outcome struct {
	Command string
	Status  Status
	Entry   *Entry
}

// Cache is the SQLite-backed response cache, sharing the queue's durable
// storage idiom (§4.3 specifies the "same KV system, key-prefixed").
type Cache struct {
	db        *sql.DB
	keyPrefix string
}

func New(dbPath, keyPrefix string) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, p := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}
	if _, err := db.Exec(cacheSchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}
	return &Cache{db: db, keyPrefix: keyPrefix}, nil
}

func (c *Cache) Close() error { return c.db.Close() }

const cacheSchemaSQL = `
CREATE TABLE IF NOT EXISTS cache_entries (
	fingerprint TEXT PRIMARY KEY,
	device_host TEXT NOT NULL,
	raw_output  TEXT NOT NULL,
	cached_at   TEXT NOT NULL,
	ttl_seconds INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_device_host ON cache_entries(device_host);
`

// Fingerprint computes hash(device_host || "\x00" || command_text).
func (c *Cache) Fingerprint(deviceHost, command string) string {
	sum := sha256.Sum256([]byte(deviceHost + "\x00" + command))
	return c.keyPrefix + hex.EncodeToString(sum[:])
}

// Get looks up one command's cached output. A hit is only returned when
// now - cached_at < ttl_s, matching the spec's HIT invariant exactly.
func (c *Cache) Get(deviceHost, command string) (*Entry, bool, error) {
	fp := c.Fingerprint(deviceHost, command)
	row := c.db.QueryRow(`SELECT raw_output, cached_at, ttl_seconds FROM cache_entries WHERE fingerprint = ?`, fp)
	var rawOutput, cachedAt string
	var ttl int
	if err := row.Scan(&rawOutput, &cachedAt, &ttl); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get cache entry: %w", err)
	}
	entry := &Entry{RawOutput: rawOutput, CachedAt: parseTS(cachedAt), TTLSeconds: ttl}
	if time.Since(entry.CachedAt) >= time.Duration(ttl)*time.Second {
		return nil, false, nil
	}
	return entry, true, nil
}

// Put stores (or overwrites) a command's output. Failures are never
// cached — callers must only call Put on success.
func (c *Cache) Put(deviceHost, command, rawOutput string, ttlSeconds int) error {
	fp := c.Fingerprint(deviceHost, command)
	now := ts(time.Now().UTC())
	_, err := c.db.Exec(
		`INSERT INTO cache_entries (fingerprint, device_host, raw_output, cached_at, ttl_seconds)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET raw_output = excluded.raw_output,
		   cached_at = excluded.cached_at, ttl_seconds = excluded.ttl_seconds`,
		fp, deviceHost, rawOutput, now, ttlSeconds,
	)
	return err
}

// DeviceEntry is the administrative view of one cached entry, used by the
// controller's cache inspection endpoints. It omits raw_output; operators
// inspecting the cache want to know what's cached and how fresh it is, not
// to read device command output through an admin surface.
type DeviceEntry struct {
	Fingerprint string    `json:"fingerprint"`
	CachedAt    time.Time `json:"cached_at"`
	TTLSeconds  int       `json:"ttl_s"`
	AgeSeconds  int64     `json:"age_seconds"`
}

// ListDevice returns the administrative view of every entry cached for a
// device host, for GET /cache/{device}.
func (c *Cache) ListDevice(deviceHost string) ([]DeviceEntry, error) {
	rows, err := c.db.Query(
		`SELECT fingerprint, cached_at, ttl_seconds FROM cache_entries WHERE device_host = ? ORDER BY cached_at DESC`,
		deviceHost,
	)
	if err != nil {
		return nil, fmt.Errorf("list device cache entries: %w", err)
	}
	defer rows.Close()

	var out []DeviceEntry
	for rows.Next() {
		var fp, cachedAt string
		var ttl int
		if err := rows.Scan(&fp, &cachedAt, &ttl); err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		at := parseTS(cachedAt)
		out = append(out, DeviceEntry{Fingerprint: fp, CachedAt: at, TTLSeconds: ttl, AgeSeconds: int64(time.Since(at).Seconds())})
	}
	return out, rows.Err()
}

// Count returns the total number of stored cache entries, expired ones
// included, for GET /cache.
func (c *Cache) Count() (int, error) {
	var n int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM cache_entries`).Scan(&n)
	return n, err
}

// InvalidateDevice deletes every cache entry for a device host.
func (c *Cache) InvalidateDevice(deviceHost string) error {
	_, err := c.db.Exec(`DELETE FROM cache_entries WHERE device_host = ?`, deviceHost)
	return err
}

// InvalidateAll clears the entire cache.
func (c *Cache) InvalidateAll() error {
	_, err := c.db.Exec(`DELETE FROM cache_entries`)
	return err
}

// LookupOptions carries the per-request controls from §4.3.
type LookupOptions struct {
	UseCache     bool
	CacheRefresh bool
}

// Partition looks up each command independently. With CacheRefresh set,
// every command is reported REFRESH (lookup skipped) so the caller
// executes and overwrites on success. With UseCache false, every command
// is BYPASS. Preserves declared command order in the returned slice.
func (c *Cache) Partition(deviceHost string, commands []string, opts LookupOptions) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(commands))
	for _, cmd := range commands {
		if !opts.UseCache {
			outcomes = append(outcomes, Outcome{Command: cmd, Status: Bypass})
			continue
		}
		if opts.CacheRefresh {
			outcomes = append(outcomes, Outcome{Command: cmd, Status: Refresh})
			continue
		}
		entry, hit, err := c.Get(deviceHost, cmd)
		if err != nil {
			return nil, err
		}
		if hit {
			outcomes = append(outcomes, Outcome{Command: cmd, Status: Hit, Entry: entry})
		} else {
			outcomes = append(outcomes, Outcome{Command: cmd, Status: Miss})
		}
	}
	return outcomes, nil
}

// Misses filters a Partition result down to the commands that must be
// executed against the device: MISS, REFRESH and BYPASS statuses.
func Misses(outcomes []Outcome) []string {
	var out []string
	for _, o := range outcomes {
		if o.Status == Miss || o.Status == Refresh || o.Status == Bypass {
			out = append(out, o.Command)
		}
	}
	return out
}

func ts(t time.Time) string { return t.Format(time.RFC3339Nano) }
func parseTS(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
