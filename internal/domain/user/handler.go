package user

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/patients/internal/platform/auth"
	"github.com/ehr/patients/internal/platform/web"
)

const (
	msgBadCredentials = "Username atau password salah."
	msgLoginFailed    = "Gagal mengakses database. Coba lagi."
)

// LoginPage is the data of the login template.
type LoginPage struct {
	Error    string
	Username string
}

func (LoginPage) PageTitle() string { return "Login" }

type loginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

type loginResponse struct {
	Username string    `json:"username"`
	Role     auth.Role `json:"role"`
}

type Handler struct {
	svc     *Service
	cookies auth.CookieConfig
	logger  zerolog.Logger
}

func NewHandler(svc *Service, cookies auth.CookieConfig, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, cookies: cookies, logger: logger}
}

// RegisterRoutes mounts the login and logout endpoints. limit throttles
// login attempts.
func (h *Handler) RegisterRoutes(e *echo.Echo, limit echo.MiddlewareFunc) {
	e.GET("/login", h.LoginForm)
	e.POST("/login", h.Login, limit)
	e.GET("/logout", h.Logout, auth.RequireAction(auth.ActionView))
}

func (h *Handler) LoginForm(c echo.Context) error {
	if auth.IdentityFromContext(c.Request().Context()) != nil {
		return c.Redirect(http.StatusFound, "/dashboard")
	}
	return c.Render(http.StatusOK, web.PageLogin, LoginPage{})
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Input tidak valid.")
	}

	token, id, err := h.svc.Login(c.Request().Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		if web.WantsHTML(c) {
			return c.Render(http.StatusUnauthorized, web.PageLogin,
				LoginPage{Error: msgBadCredentials, Username: req.Username})
		}
		return c.JSON(http.StatusUnauthorized, web.Detail{Detail: msgBadCredentials})
	case err != nil:
		if web.WantsHTML(c) {
			h.logger.Error().Err(err).Str("username", req.Username).Msg("login failed")
			return c.Render(http.StatusInternalServerError, web.PageLogin,
				LoginPage{Error: msgLoginFailed, Username: req.Username})
		}
		return err
	}

	auth.SetSessionCookie(c, h.cookies, token)
	h.logger.Info().Str("username", id.Username).Str("role", string(id.Role)).Msg("login")
	if web.WantsHTML(c) {
		return c.Redirect(http.StatusFound, "/dashboard")
	}
	return c.JSON(http.StatusOK, loginResponse{Username: id.Username, Role: id.Role})
}

func (h *Handler) Logout(c echo.Context) error {
	auth.ClearSessionCookie(c, h.cookies)
	if web.WantsHTML(c) {
		return c.Redirect(http.StatusFound, "/login")
	}
	return c.NoContent(http.StatusNoContent)
}
