package domain

import (
	"context"
	"time"
)

const (
	RoleRecruiter = "recruiter"
	RoleAdmin     = "admin"
)

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	Update(ctx context.Context, user *User) error
}

// TokenIdentity is the subset of bearer token claims used to resolve an account.
type TokenIdentity struct {
	Subject  string
	Email    string
	FullName string
	Role     string
}

type AccountUsecase interface {
	// ResolveAccount loads the account behind a verified token, provisioning
	// it when auto provisioning is enabled.
	ResolveAccount(ctx context.Context, identity TokenIdentity) (*User, error)
	GetCurrentUser(ctx context.Context, id string) (*User, error)
	AssignRole(ctx context.Context, userID string, role string) error
}
