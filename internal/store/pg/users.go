package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"ekklesia.app/internal/auth"
)

var _ auth.UserStore = (*Store)(nil)

const userColumns = `id, tenant_id, name, email, role, password_hash, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		u      auth.User
		tenant sql.NullInt64
		role   string
	)
	if err := row.Scan(&u.ID, &tenant, &u.Name, &u.Email, &role, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	u.TenantID = tenantPtr(tenant)
	u.Role = auth.Role(role)
	if parsed, ok := auth.ParseRole(role); ok {
		u.Role = parsed
	}
	return &u, nil
}

func (s *Store) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id)
	return scanUser(row)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where lower(email) = $1`,
		strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row)
}

func (s *Store) CreateUser(ctx context.Context, u auth.User) (*auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (tenant_id, name, email, role, password_hash)
		values ($1, $2, lower($3), $4, $5)
		returning `+userColumns,
		nullTenant(u.TenantID), u.Name, u.Email, string(u.Role), u.PasswordHash)
	created, err := scanUser(row)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return nil, auth.ErrConflict
		case isForeignKeyViolation(err):
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	return created, nil
}

func (s *Store) UpdateRole(ctx context.Context, id int64, role auth.Role) (*auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `
		update users set role = $2, updated_at = now()
		where id = $1
		returning `+userColumns, id, string(role))
	return scanUser(row)
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
