package auth

import (
	"context"
	"errors"
)

var (
	ErrUsernameTaken = errors.New("username already exists")
	ErrUserNotFound  = errors.New("user not found")
)

// User holds the bcrypt hash of the password, never the password itself.
type User struct {
	ID       int64
	Username string
	Hash     []byte
	Active   bool
}

type UserStore interface {
	Save(ctx context.Context, u *User) error
	Update(ctx context.Context, u User) error
	FindByUsername(ctx context.Context, username string) (User, bool, error)
	FindAll(ctx context.Context) ([]User, error)
	Ping(ctx context.Context) error
}
