package auth

import "context"

// Role is one of the two fixed account roles.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleDokter Role = "dokter"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleDokter
}

// Identity is the authenticated principal carried by a session token.
type Identity struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

func (i *Identity) IsDokter() bool { return i != nil && i.Role == RoleDokter }

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity set by the Authenticate
// middleware, or nil for anonymous requests.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}
