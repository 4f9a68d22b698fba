// Package tokencache persists portal auth tokens and session keys between
// process runs so a restart does not force a new handshake.
//
// Entries are addressed by a digest of the credentials they were issued for.
// The cache is advisory: every read or write failure is logged and treated
// as a miss, never surfaced to the caller.
package tokencache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/gstirn/pkg/cryptox"
	"github.com/aussiebroadwan/gstirn/pkg/metricsx"
)

// DefaultSafetyMargin is how long before expiry an entry stops being served.
const DefaultSafetyMargin = 10 * time.Minute

var (
	// ErrNotFound is returned by backends when no entry exists for a key.
	ErrNotFound = errors.New("tokencache: entry not found")

	// ErrCorrupt is returned by backends when a stored entry cannot be decoded.
	ErrCorrupt = errors.New("tokencache: corrupt entry")
)

// Backend stores entries by key.
type Backend interface {
	Get(ctx context.Context, key string) (Entry, error)
	Put(ctx context.Context, key string, entry Entry) error
}

// Fields are the credential attributes an entry is keyed on. Every field
// takes part in the key, so changing any of them selects a different entry.
type Fields map[string]string

// KeyFor returns the cache key for fields: the BLAKE2b-256 hex digest of
// their canonical JSON encoding (keys sorted).
func KeyFor(fields Fields) string {
	// encoding/json sorts map keys, which makes this canonical
	b, _ := json.Marshal(map[string]string(fields))
	return cryptox.Fingerprint(b)
}

// Cache wraps a Backend with expiry handling.
type Cache struct {
	backend Backend
	margin  time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *metricsx.Metrics
}

// Option configures a Cache.
type Option func(*Cache)

// WithSafetyMargin overrides DefaultSafetyMargin.
func WithSafetyMargin(d time.Duration) Option {
	return func(c *Cache) { c.margin = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger failures are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithMetrics records lookups and writes.
func WithMetrics(m *metricsx.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// New returns a Cache over backend.
func New(backend Backend, opts ...Option) *Cache {
	c := &Cache{
		backend: backend,
		margin:  DefaultSafetyMargin,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns the entry stored for fields if it is still valid beyond the
// safety margin.
func (c *Cache) Lookup(ctx context.Context, fields Fields) (Entry, bool) {
	key := KeyFor(fields)

	entry, err := c.backend.Get(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		c.metrics.CacheLookup("miss")
		return Entry{}, false
	case err != nil:
		c.logger.WarnContext(ctx, "token cache read failed", "key", key, "err", err)
		c.metrics.CacheLookup("error")
		return Entry{}, false
	}

	if !entry.Usable(c.now(), c.margin) {
		c.logger.DebugContext(ctx, "token cache entry expired",
			"key", key,
			"expiry", FormatExpiry(entry.Expiry),
		)
		c.metrics.CacheLookup("expired")
		return Entry{}, false
	}

	c.metrics.CacheLookup("hit")
	return entry, true
}

// Store writes entry for fields, replacing any previous one. A failed write
// is logged and otherwise ignored.
func (c *Cache) Store(ctx context.Context, fields Fields, entry Entry) {
	key := KeyFor(fields)

	err := c.backend.Put(ctx, key, entry)
	c.metrics.CacheWrite(err)
	if err != nil {
		c.logger.WarnContext(ctx, "token cache write failed", "key", key, "err", err)
	}
}
