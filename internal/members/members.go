// Package members holds the congregation register of a tenant.
package members

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("members: not found")
	ErrInvalidInput = errors.New("members: invalid input")
)

// Member is one person on a tenant's register.
type Member struct {
	ID        int64      `json:"id"`
	TenantID  int64      `json:"tenantId"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Email     string     `json:"email,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	JoinedOn  *time.Time `json:"joinedOn,omitempty"`
	CreatedBy int64      `json:"createdBy"`
	CreatedAt time.Time  `json:"createdAt"`
}

// NewMember is the input accepted when registering a member.
type NewMember struct {
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone"`
	JoinedOn  *time.Time `json:"joinedOn"`
}

// Store persists members. Every call is scoped to one tenant.
type Store interface {
	ListMembers(ctx context.Context, tenantID int64, limit, offset int) ([]Member, error)
	CreateMember(ctx context.Context, m Member) (*Member, error)
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Service validates member input before it reaches storage.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService constructs a member service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("members: store is required")
	}
	return &Service{store: store, now: time.Now}, nil
}

// List returns a page of the tenant's members.
func (s *Service) List(ctx context.Context, tenantID int64, limit, offset int) ([]Member, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListMembers(ctx, tenantID, limit, offset)
}

// Create registers a member on behalf of actorID.
func (s *Service) Create(ctx context.Context, tenantID, actorID int64, in NewMember) (*Member, error) {
	first := strings.TrimSpace(in.FirstName)
	last := strings.TrimSpace(in.LastName)
	if first == "" || last == "" {
		return nil, fmt.Errorf("%w: first and last name are required", ErrInvalidInput)
	}
	email := strings.TrimSpace(in.Email)
	if email != "" {
		addr, err := mail.ParseAddress(email)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid email", ErrInvalidInput)
		}
		email = strings.ToLower(addr.Address)
	}
	if in.JoinedOn != nil && in.JoinedOn.After(s.now()) {
		return nil, fmt.Errorf("%w: join date is in the future", ErrInvalidInput)
	}
	return s.store.CreateMember(ctx, Member{
		TenantID:  tenantID,
		FirstName: first,
		LastName:  last,
		Email:     email,
		Phone:     strings.TrimSpace(in.Phone),
		JoinedOn:  in.JoinedOn,
		CreatedBy: actorID,
	})
}
