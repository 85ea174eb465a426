package domain

import (
	"context"
	"time"
)

// UserType distinguishes administrators from regular users.
type UserType string

const (
	UserTypeRegular UserType = "regular"
	UserTypeAdmin   UserType = "admin"
)

// User represents an application user. Identity comes from Supabase Auth; this record
// carries the fields the access and quota rules read.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	PlanID    string    `json:"planId"`
	UserType  UserType  `json:"userType"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsAdmin reports whether the user may act on admin endpoints.
func (u *User) IsAdmin() bool {
	return u != nil && u.UserType == UserTypeAdmin
}

// SupabaseUser represents a user from Supabase Auth
type SupabaseUser struct {
	ID           string
	Email        string
	UserMetadata map[string]interface{}
	CreatedAt    string
	UpdatedAt    string
}

// UserProfile is the payload of the profile endpoint.
type UserProfile struct {
	User *User `json:"user"`
	Plan *Plan `json:"plan"`
}

type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	UpdatePlan(ctx context.Context, userID string, planID string) error
	Search(ctx context.Context, query string, limit int) ([]*User, error)
}

type UserService interface {
	EnsureUser(ctx context.Context, authUser *SupabaseUser) (*User, error)
	GetProfile(ctx context.Context, userID string) (*UserProfile, error)
	SearchUsers(ctx context.Context, query string) ([]*User, error)
}
