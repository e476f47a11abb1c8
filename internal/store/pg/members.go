package pg

import (
	"context"
	"database/sql"

	"ekklesia.app/internal/members"
)

var _ members.Store = (*Store)(nil)

const memberColumns = `id, tenant_id, first_name, last_name, coalesce(email, ''), coalesce(phone, ''), joined_on, created_by, created_at`

func scanMember(row rowScanner) (*members.Member, error) {
	var (
		m      members.Member
		joined sql.NullTime
	)
	if err := row.Scan(&m.ID, &m.TenantID, &m.FirstName, &m.LastName, &m.Email, &m.Phone, &joined, &m.CreatedBy, &m.CreatedAt); err != nil {
		return nil, err
	}
	if joined.Valid {
		t := joined.Time
		m.JoinedOn = &t
	}
	return &m, nil
}

func (s *Store) ListMembers(ctx context.Context, tenantID int64, limit, offset int) ([]members.Member, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+memberColumns+`
		from members
		where tenant_id = $1
		order by last_name, first_name, id
		limit $2 offset $3
	`, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []members.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *m)
	}
	return result, rows.Err()
}

func (s *Store) CreateMember(ctx context.Context, m members.Member) (*members.Member, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	var joined sql.NullTime
	if m.JoinedOn != nil {
		joined = sql.NullTime{Time: *m.JoinedOn, Valid: true}
	}
	row := s.db.QueryRowContext(ctx, `
		insert into members (tenant_id, first_name, last_name, email, phone, joined_on, created_by)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning `+memberColumns,
		m.TenantID, m.FirstName, m.LastName, nullIfEmpty(m.Email), nullIfEmpty(m.Phone), joined, m.CreatedBy)
	created, err := scanMember(row)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, members.ErrNotFound
		}
		return nil, err
	}
	return created, nil
}
