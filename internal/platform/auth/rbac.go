package auth

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Action is an operation on patient records.
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("forbidden")
)

// User-facing messages for the two access failures.
const (
	MsgUnauthenticated = "Silakan login terlebih dahulu."
	MsgForbidden       = "Anda tidak memiliki hak akses."
)

// Authorize decides whether id may perform action. Admins may only view;
// dokter accounts may do everything.
func Authorize(id *Identity, action Action) error {
	if id == nil {
		return ErrUnauthenticated
	}
	switch id.Role {
	case RoleDokter:
		switch action {
		case ActionView, ActionCreate, ActionEdit, ActionDelete:
			return nil
		}
	case RoleAdmin:
		if action == ActionView {
			return nil
		}
	}
	return ErrForbidden
}

// Can is Authorize as a boolean, for templates.
func Can(id *Identity, action Action) bool {
	return Authorize(id, action) == nil
}

// RequireAction returns middleware that rejects requests whose identity may
// not perform action: 401 for anonymous requests, 403 otherwise.
func RequireAction(action Action) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := Authorize(IdentityFromContext(c.Request().Context()), action)
			switch {
			case err == nil:
				return next(c)
			case errors.Is(err, ErrUnauthenticated):
				return echo.NewHTTPError(http.StatusUnauthorized, MsgUnauthenticated).SetInternal(err)
			default:
				return echo.NewHTTPError(http.StatusForbidden, MsgForbidden).SetInternal(err)
			}
		}
	}
}
