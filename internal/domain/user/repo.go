package user

import "context"

// Repository defines the persistence interface for user accounts.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByUsername(ctx context.Context, username string) (*User, error)
	ListByRole(ctx context.Context, role string) ([]*User, error)
}
