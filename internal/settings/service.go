package settings

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var keyPattern = regexp.MustCompile(`^[a-z][a-z0-9_.-]{0,63}$`)

// Service reads settings through the cache and keeps the cache consistent
// with its own writes.
type Service struct {
	store Store
	cache *Cache
}

// NewService constructs a settings service. A nil cache disables caching.
func NewService(store Store, c *Cache) (*Service, error) {
	if store == nil {
		return nil, errors.New("settings: store is required")
	}
	return &Service{store: store, cache: c}, nil
}

// ValidKey reports whether key is an acceptable setting name.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}

// Get returns the raw value for (tenant, key), or nil when no row exists.
// Missing rows are cached too. Storage errors are returned and never cached.
func (s *Service) Get(ctx context.Context, tenantID *int64, key string) (*string, error) {
	if raw, ok := s.cache.Get(tenantID, key); ok {
		return raw, nil
	}
	row, err := s.store.GetSetting(ctx, tenantID, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.cache.Put(tenantID, key, nil)
			return nil, nil
		}
		return nil, fmt.Errorf("read setting %q: %w", key, err)
	}
	value := row.Value
	s.cache.Put(tenantID, key, &value)
	return &value, nil
}

// Put writes a value and invalidates the cached copy for that key.
func (s *Service) Put(ctx context.Context, tenantID *int64, key, value string) (*Setting, error) {
	if !ValidKey(key) {
		return nil, fmt.Errorf("%w: bad setting key %q", ErrInvalidInput, key)
	}
	row, err := s.store.PutSetting(ctx, tenantID, key, value)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(tenantID, key)
	return row, nil
}

// Flush drops every cached entry of the tenant scope.
func (s *Service) Flush(tenantID *int64) int {
	return s.cache.Invalidate(tenantID, "")
}
