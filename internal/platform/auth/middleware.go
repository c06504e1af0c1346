package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// CookieName is the session cookie carrying the signed token.
const CookieName = "access_token"

// CookieConfig controls the flags on the session cookie.
type CookieConfig struct {
	Secure bool
	TTL    time.Duration
}

// Authenticate reads the session cookie and, when it holds a valid token,
// stores the identity on the request context. Requests without a valid
// token pass through anonymously; RequireAction decides whether that is
// acceptable. A cookie that fails to verify is cleared.
func Authenticate(issuer *TokenIssuer, cookies CookieConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(CookieName)
			if err != nil || cookie.Value == "" {
				return next(c)
			}

			id, err := issuer.Parse(cookie.Value)
			if err != nil {
				ClearSessionCookie(c, cookies)
				return next(c)
			}

			ctx := WithIdentity(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set(string(identityKey), id)
			return next(c)
		}
	}
}

// SetSessionCookie writes the session cookie for token.
func SetSessionCookie(c echo.Context, cfg CookieConfig, token string) {
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(cfg.TTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie on the client.
func ClearSessionCookie(c echo.Context, cfg CookieConfig) {
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
