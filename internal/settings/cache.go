package settings

import (
	"strconv"
	"strings"

	"ekklesia.app/internal/cache"
	"ekklesia.app/internal/obs"
)

const globalScope = "global"

// Cache maps (tenant, key) to the raw stored value. A nil value records that
// no row exists.
type Cache struct {
	entries *cache.TTL[string, *string]
}

// NewCache builds a setting cache; a zero TTL disables it.
func NewCache(opts ...cache.Option) *Cache {
	return &Cache{entries: cache.New[string, *string](opts...)}
}

// CacheKey renders the composite "{tenantID|global}:{key}" key.
func CacheKey(tenantID *int64, key string) string {
	return scopePrefix(tenantID) + key
}

func scopePrefix(tenantID *int64) string {
	if tenantID == nil {
		return globalScope + ":"
	}
	return strconv.FormatInt(*tenantID, 10) + ":"
}

// Get returns the cached raw value. The bool reports a hit; a hit may carry a
// nil value.
func (c *Cache) Get(tenantID *int64, key string) (*string, bool) {
	if c == nil {
		return nil, false
	}
	entry, ok := c.entries.Get(CacheKey(tenantID, key))
	obs.CacheLookup("setting", ok)
	if !ok {
		return nil, false
	}
	return copyValue(entry.Value), true
}

// Put caches raw (possibly nil) for (tenant, key).
func (c *Cache) Put(tenantID *int64, key string, raw *string) {
	if c == nil {
		return
	}
	c.entries.Put(CacheKey(tenantID, key), copyValue(raw))
}

// Invalidate drops one key, or every key of the tenant scope when key is empty.
// It returns the number of entries removed.
func (c *Cache) Invalidate(tenantID *int64, key string) int {
	if c == nil {
		return 0
	}
	if key != "" {
		full := CacheKey(tenantID, key)
		if _, ok := c.entries.Get(full); !ok {
			return 0
		}
		c.entries.Invalidate(full)
		return 1
	}
	prefix := scopePrefix(tenantID)
	return c.entries.InvalidateFunc(func(k string) bool {
		return strings.HasPrefix(k, prefix)
	})
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

func copyValue(raw *string) *string {
	if raw == nil {
		return nil
	}
	v := *raw
	return &v
}
