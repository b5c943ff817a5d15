package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RolePatient, RoleDoctor, RoleAdmin:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

type User struct {
	ID        uuid.UUID
	Username  string
	Email     string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Actor is the authenticated identity behind a request. It carries only what
// the lifecycle engine needs for capability checks.
type Actor struct {
	ID       uuid.UUID
	Username string
	Role     Role
}

var ErrUserNotFound = errors.New("user not found")

// Directory resolves users for the lifecycle engine. Account management
// lives elsewhere; the engine only reads.
type Directory interface {
	// ResolveByUsername returns the user with the given username only if it
	// carries the required role.
	ResolveByUsername(ctx context.Context, username string, role Role) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
}
