package auth

import (
	"context"
	"time"
)

// User is a stored account. TenantID is nil only for provider administrators.
type User struct {
	ID           int64     `json:"id"`
	TenantID     *int64    `json:"tenantId"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Identity is the acting principal of a request. It is immutable for the
// lifetime of the request.
type Identity struct {
	ID       int64  `json:"id"`
	Role     Role   `json:"role"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	TenantID *int64 `json:"tenantId"`
}

// Identity projects the stored user onto the request identity.
func (u *User) Identity() Identity {
	id := Identity{
		ID:    u.ID,
		Role:  u.Role,
		Name:  u.Name,
		Email: u.Email,
	}
	if u.TenantID != nil {
		t := *u.TenantID
		id.TenantID = &t
	}
	return id
}

// UserStore is the persistence the auth subsystem needs.
type UserStore interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, u User) (*User, error)
	UpdateRole(ctx context.Context, id int64, role Role) (*User, error)
	Delete(ctx context.Context, id int64) error
}
