package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"ekklesia.app/internal/tenant"
)

var _ tenant.Store = (*Store)(nil)

const tenantColumns = `id, name, slug, plan, status, features, created_at, updated_at`

func scanTenant(row rowScanner) (*tenant.Tenant, error) {
	var (
		t        tenant.Tenant
		plan     string
		status   string
		features []byte
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Slug, &plan, &status, &features, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tenant.ErrNotFound
		}
		return nil, err
	}
	t.Plan = tenant.ParsePlan(plan)
	t.Status = tenant.Status(status)
	t.Features = map[string]any{}
	if len(features) > 0 {
		if err := json.Unmarshal(features, &t.Features); err != nil {
			return nil, fmt.Errorf("decode features: %w", err)
		}
	}
	return &t, nil
}

func encodeFeatures(overrides map[string]any) ([]byte, error) {
	if len(overrides) == 0 {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(overrides)
	if err != nil {
		return nil, fmt.Errorf("%w: encode features: %v", tenant.ErrInvalidInput, err)
	}
	return raw, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]tenant.Tenant, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `select `+tenantColumns+` from tenants order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []tenant.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}
	return result, rows.Err()
}

func (s *Store) GetTenant(ctx context.Context, id int64) (*tenant.Tenant, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	return scanTenant(s.db.QueryRowContext(ctx, `select `+tenantColumns+` from tenants where id = $1`, id))
}

func (s *Store) CreateTenant(ctx context.Context, t tenant.Tenant) (*tenant.Tenant, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	features, err := encodeFeatures(t.Features)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		insert into tenants (name, slug, plan, status, features)
		values ($1, $2, $3, $4, $5)
		returning `+tenantColumns,
		t.Name, t.Slug, string(t.Plan), string(t.Status), features)
	created, err := scanTenant(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, tenant.ErrConflict
		}
		return nil, err
	}
	return created, nil
}

func (s *Store) UpdatePlan(ctx context.Context, id int64, plan tenant.PlanKey) (*tenant.Tenant, error) {
	return s.updateTenant(ctx, `plan = $2`, id, string(plan))
}

func (s *Store) UpdateFeatures(ctx context.Context, id int64, overrides map[string]any) (*tenant.Tenant, error) {
	features, err := encodeFeatures(overrides)
	if err != nil {
		return nil, err
	}
	return s.updateTenant(ctx, `features = $2`, id, features)
}

func (s *Store) UpdateStatus(ctx context.Context, id int64, status tenant.Status) (*tenant.Tenant, error) {
	return s.updateTenant(ctx, `status = $2`, id, string(status))
}

func (s *Store) updateTenant(ctx context.Context, assignment string, id int64, value any) (*tenant.Tenant, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `
		update tenants set `+assignment+`, updated_at = now()
		where id = $1
		returning `+tenantColumns, id, value)
	return scanTenant(row)
}
