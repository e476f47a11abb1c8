package tenant

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// CreateInput describes a new tenant.
type CreateInput struct {
	Name     string         `json:"name"`
	Slug     string         `json:"slug"`
	Plan     string         `json:"plan"`
	Features map[string]any `json:"features"`
}

// Service implements the provider-side tenant lifecycle.
type Service struct {
	store Store
}

// NewService constructs a tenant service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("tenant: store is required")
	}
	return &Service{store: store}, nil
}

// List returns every tenant.
func (s *Service) List(ctx context.Context) ([]Tenant, error) {
	return s.store.ListTenants(ctx)
}

// Get returns a tenant by id.
func (s *Service) Get(ctx context.Context, id int64) (*Tenant, error) {
	if id <= 0 {
		return nil, ErrNotFound
	}
	return s.store.GetTenant(ctx, id)
}

// Create registers a new active tenant. The plan string goes through
// ParsePlan, so unknown plans become BASIC.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Tenant, error) {
	name := strings.TrimSpace(in.Name)
	slug := strings.ToLower(strings.TrimSpace(in.Slug))
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if !slugPattern.MatchString(slug) {
		return nil, fmt.Errorf("%w: slug must be lowercase letters, digits and dashes", ErrInvalidInput)
	}
	overrides := in.Features
	if overrides == nil {
		overrides = map[string]any{}
	}
	return s.store.CreateTenant(ctx, Tenant{
		Name:     name,
		Slug:     slug,
		Plan:     ParsePlan(in.Plan),
		Status:   StatusActive,
		Features: overrides,
	})
}

// SetPlan changes the subscription tier.
func (s *Service) SetPlan(ctx context.Context, id int64, plan string) (*Tenant, error) {
	return s.store.UpdatePlan(ctx, id, ParsePlan(plan))
}

// SetFeatures replaces the tenant's override map.
func (s *Service) SetFeatures(ctx context.Context, id int64, overrides map[string]any) (*Tenant, error) {
	if overrides == nil {
		overrides = map[string]any{}
	}
	return s.store.UpdateFeatures(ctx, id, overrides)
}

// SetStatus activates or suspends a tenant.
func (s *Service) SetStatus(ctx context.Context, id int64, status Status) (*Tenant, error) {
	status = Status(strings.ToLower(strings.TrimSpace(string(status))))
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return s.store.UpdateStatus(ctx, id, status)
}

// IsSuspended reports whether users of the tenant are locked out.
func (s *Service) IsSuspended(ctx context.Context, id int64) (bool, error) {
	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return false, err
	}
	return t.Status == StatusSuspended, nil
}

// Features resolves the effective flags of a tenant.
func (s *Service) Features(ctx context.Context, id int64) (FeatureSet, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return t.Resolved(), nil
}
