// Package ownership memoizes "does account A hold a license for game G".
// The ledger stays authoritative; the cache only saves view calls.
package ownership

import (
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/quantumauth-io/gamevault-client/internal/codec"
)

const (
	DefaultPositiveTTL     = 10 * time.Minute
	DefaultNegativeTTL     = 15 * time.Second
	DefaultCleanupInterval = 5 * time.Minute
)

type Config struct {
	PositiveTTL     time.Duration
	NegativeTTL     time.Duration
	CleanupInterval time.Duration
}

// Cache is safe for concurrent use. It never returns errors.
type Cache struct {
	positiveTTL time.Duration
	negativeTTL time.Duration
	cache       *gocache.Cache

	// mu orders writes so a result read before a write cannot land after it.
	mu        sync.Mutex
	seq       uint64
	written   map[string]uint64
	accounts  map[string]uint64
	flushedAt uint64
}

// Token marks a point in the cache's write order. Take one before asking the
// ledger and hand it to SetIfCurrent with the answer.
type Token uint64

func New(cfg Config) *Cache {
	if cfg.PositiveTTL <= 0 {
		cfg.PositiveTTL = DefaultPositiveTTL
	}
	if cfg.NegativeTTL <= 0 {
		cfg.NegativeTTL = DefaultNegativeTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	return &Cache{
		positiveTTL: cfg.PositiveTTL,
		negativeTTL: cfg.NegativeTTL,
		cache:       gocache.New(cfg.PositiveTTL, cfg.CleanupInterval),
		written:     map[string]uint64{},
		accounts:    map[string]uint64{},
	}
}

// Get returns (owned, found).
func (c *Cache) Get(account, gameID string) (bool, bool) {
	v, found := c.cache.Get(key(account, gameID))
	if !found {
		return false, false
	}
	owned, ok := v.(bool)
	if !ok {
		return false, false
	}
	return owned, true
}

// Set stores a result. Negative results expire quickly since a purchase
// may be committing in another session.
func (c *Cache) Set(account, gameID string, owned bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key(account, gameID), owned)
}

// Token returns the current write position.
func (c *Cache) Token() Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Token(c.seq)
}

// SetIfCurrent stores owned unless the entry was written, invalidated or
// flushed after tok was taken. It reports whether the value was stored.
func (c *Cache) SetIfCurrent(account, gameID string, owned bool, tok Token) bool {
	k := key(account, gameID)
	c.mu.Lock()
	defer c.mu.Unlock()
	t := uint64(tok)
	if c.flushedAt > t || c.written[k] > t || c.accounts[normalizeAccount(account)] > t {
		return false
	}
	c.setLocked(k, owned)
	return true
}

func (c *Cache) setLocked(k string, owned bool) {
	ttl := c.positiveTTL
	if !owned {
		ttl = c.negativeTTL
	}
	c.seq++
	c.written[k] = c.seq
	c.cache.Set(k, owned, ttl)
}

func (c *Cache) Invalidate(account, gameID string) {
	k := key(account, gameID)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.written[k] = c.seq
	c.cache.Delete(k)
}

// InvalidateAccount drops every entry for account.
func (c *Cache) InvalidateAccount(account string) {
	acct := normalizeAccount(account)
	prefix := acct + "|"
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.accounts[acct] = c.seq
	for k := range c.cache.Items() {
		if strings.HasPrefix(k, prefix) {
			c.cache.Delete(k)
		}
	}
}

func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.flushedAt = c.seq
	clear(c.written)
	clear(c.accounts)
	c.cache.Flush()
}

func (c *Cache) Len() int {
	return c.cache.ItemCount()
}

func key(account, gameID string) string {
	return normalizeAccount(account) + "|" + strings.TrimSpace(gameID)
}

func normalizeAccount(account string) string {
	if n, err := codec.NormalizeAddress(account); err == nil {
		return n
	}
	return strings.ToLower(strings.TrimSpace(account))
}
