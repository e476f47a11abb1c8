package auth

import (
	"time"

	"ekklesia.app/internal/cache"
	"ekklesia.app/internal/obs"
)

// CachedIdentity is a credential cache entry. SourceVersion records the
// user row's last modification and is kept for future staleness checks;
// nothing compares it today.
type CachedIdentity struct {
	Identity      Identity
	SourceVersion time.Time
}

// CredentialCache maps user ids to hydrated identities.
type CredentialCache struct {
	entries *cache.TTL[int64, CachedIdentity]
}

// NewCredentialCache builds a cache; a zero TTL disables it.
func NewCredentialCache(opts ...cache.Option) *CredentialCache {
	return &CredentialCache{entries: cache.New[int64, CachedIdentity](opts...)}
}

// Get returns the cached identity for userID.
func (c *CredentialCache) Get(userID int64) (Identity, bool) {
	if c == nil {
		return Identity{}, false
	}
	entry, ok := c.entries.Get(userID)
	obs.CacheLookup("credential", ok)
	if !ok {
		return Identity{}, false
	}
	return entry.Value.Identity, true
}

// Lookup returns the full cache entry, including its source version.
func (c *CredentialCache) Lookup(userID int64) (CachedIdentity, bool) {
	if c == nil {
		return CachedIdentity{}, false
	}
	entry, ok := c.entries.Get(userID)
	if !ok {
		return CachedIdentity{}, false
	}
	return entry.Value, true
}

// Put stores the identity together with the row's last-modified time.
func (c *CredentialCache) Put(userID int64, id Identity, sourceUpdatedAt time.Time) {
	if c == nil {
		return
	}
	c.entries.Put(userID, CachedIdentity{Identity: id, SourceVersion: sourceUpdatedAt})
}

// Invalidate drops userID. Callers must invoke it after a role change or a
// user deletion.
func (c *CredentialCache) Invalidate(userID int64) {
	if c == nil {
		return
	}
	c.entries.Invalidate(userID)
}

// Len reports the number of cached identities.
func (c *CredentialCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
