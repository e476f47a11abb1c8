package pg

import (
	"context"
	"database/sql"
	"errors"

	"ekklesia.app/internal/settings"
)

var _ settings.Store = (*Store)(nil)

func scanSetting(row rowScanner) (*settings.Setting, error) {
	var (
		st     settings.Setting
		tenant sql.NullInt64
	)
	if err := row.Scan(&st.ID, &tenant, &st.Key, &st.Value, &st.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, settings.ErrNotFound
		}
		return nil, err
	}
	st.TenantID = tenantPtr(tenant)
	return &st, nil
}

// GetSetting reads the exact (tenant, key) row; a nil tenant reads the global row.
func (s *Store) GetSetting(ctx context.Context, tenantID *int64, key string) (*settings.Setting, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `
		select id, tenant_id, key, value, updated_at
		from settings
		where tenant_id is not distinct from $1 and key = $2
	`, nullTenant(tenantID), key)
	return scanSetting(row)
}

// PutSetting upserts a row. Global rows are keyed with tenant 0 in the
// uniqueness index.
func (s *Store) PutSetting(ctx context.Context, tenantID *int64, key, value string) (*settings.Setting, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `
		insert into settings (tenant_id, key, value)
		values ($1, $2, $3)
		on conflict ((coalesce(tenant_id, 0)), key)
		do update set value = excluded.value, updated_at = now()
		returning id, tenant_id, key, value, updated_at
	`, nullTenant(tenantID), key, value)
	st, err := scanSetting(row)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, settings.ErrNotFound
		}
		return nil, err
	}
	return st, nil
}
