package users

import (
	"context"
	"errors"
	"time"
)

type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type NewUser struct {
	Email        string
	Name         string
	PasswordHash string
}

// Store is the user collection. Implementations enforce email uniqueness and
// report a violation as ErrDuplicateEmail; lookups that match nothing return
// ErrNotFound.
type Store interface {
	Create(ctx context.Context, user NewUser) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
}

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already registered")
)
