// Package settings stores per-tenant key/value configuration and serves it
// through a process-local read-through cache.
package settings

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("settings: not found")
	ErrInvalidInput = errors.New("settings: invalid input")
)

// Setting is a stored configuration value. TenantID is nil for global rows.
type Setting struct {
	ID        int64     `json:"id"`
	TenantID  *int64    `json:"tenantId"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists settings. GetSetting returns ErrNotFound when no row exists
// for the exact (tenant, key) pair; a nil tenant addresses the global row.
type Store interface {
	GetSetting(ctx context.Context, tenantID *int64, key string) (*Setting, error)
	PutSetting(ctx context.Context, tenantID *int64, key, value string) (*Setting, error)
}
