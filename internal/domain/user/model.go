package user

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/patients/internal/platform/auth"
)

var (
	// ErrInvalidCredentials is returned for an unknown username or a wrong
	// password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotFound           = errors.New("user not found")
	ErrDuplicate          = errors.New("username already exists")
)

// User maps to the users table.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         auth.Role `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the principal a session token is issued for.
func (u *User) Identity() auth.Identity {
	return auth.Identity{Username: u.Username, Role: u.Role}
}

// Account is a seed account definition.
type Account struct {
	Username string
	Password string
	Role     auth.Role
}

// DefaultAccounts are the demo accounts created by the seed step.
var DefaultAccounts = []Account{
	{Username: "admin", Password: "admin123", Role: auth.RoleAdmin},
	{Username: "dokter", Password: "dokter123", Role: auth.RoleDokter},
}
