// Package tenant models churches as tenants: their subscription plan, their
// lifecycle status and the feature flags derived from both.
package tenant

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("tenant: not found")
	ErrConflict     = errors.New("tenant: already exists")
	ErrInvalidInput = errors.New("tenant: invalid input")
)

// Status is the lifecycle state of a tenant.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusSuspended
}

// Tenant is an isolated customer organization.
type Tenant struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Slug      string         `json:"slug"`
	Plan      PlanKey        `json:"plan"`
	Status    Status         `json:"status"`
	Features  map[string]any `json:"features"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Resolved computes the tenant's effective feature set.
func (t *Tenant) Resolved() FeatureSet {
	return ResolveFeatures(string(t.Plan), t.Features)
}

// Store persists tenants.
type Store interface {
	ListTenants(ctx context.Context) ([]Tenant, error)
	GetTenant(ctx context.Context, id int64) (*Tenant, error)
	CreateTenant(ctx context.Context, t Tenant) (*Tenant, error)
	UpdatePlan(ctx context.Context, id int64, plan PlanKey) (*Tenant, error)
	UpdateFeatures(ctx context.Context, id int64, overrides map[string]any) (*Tenant, error)
	UpdateStatus(ctx context.Context, id int64, status Status) (*Tenant, error)
}
