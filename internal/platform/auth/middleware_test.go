package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestAuthenticate_ValidCookie(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)
	token, _, err := issuer.Issue(Identity{Username: "dokter", Role: RoleDokter})
	if err != nil {
		t.Fatal(err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/patients", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got *Identity
	h := Authenticate(issuer, CookieConfig{TTL: time.Hour})(func(c echo.Context) error {
		got = IdentityFromContext(c.Request().Context())
		return nil
	})
	if err := h(c); err != nil {
		t.Fatal(err)
	}

	if got == nil || got.Username != "dokter" || got.Role != RoleDokter {
		t.Errorf("unexpected identity %+v", got)
	}
}

func TestAuthenticate_NoCookie(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	h := Authenticate(NewTokenIssuer("s", time.Hour), CookieConfig{})(func(c echo.Context) error {
		called = true
		if IdentityFromContext(c.Request().Context()) != nil {
			t.Error("expected anonymous request")
		}
		return nil
	})
	if err := h(c); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("next handler was not called")
	}
}

func TestAuthenticate_InvalidCookieIsCleared(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "garbage"})
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := Authenticate(NewTokenIssuer("s", time.Hour), CookieConfig{})(func(c echo.Context) error {
		if IdentityFromContext(c.Request().Context()) != nil {
			t.Error("expected anonymous request")
		}
		return nil
	})
	if err := h(c); err != nil {
		t.Fatal(err)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != CookieName || cookies[0].MaxAge >= 0 {
		t.Errorf("expected expired %s cookie, got %+v", CookieName, cookies)
	}
}

func TestSetSessionCookie(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/login", nil), rec)

	SetSessionCookie(c, CookieConfig{Secure: true, TTL: 8 * time.Hour}, "tok")

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	ck := cookies[0]
	if ck.Name != CookieName || ck.Value != "tok" {
		t.Errorf("unexpected cookie %s=%s", ck.Name, ck.Value)
	}
	if !ck.HttpOnly || !ck.Secure || ck.SameSite != http.SameSiteLaxMode || ck.Path != "/" {
		t.Errorf("unexpected flags %+v", ck)
	}
	if ck.MaxAge != int((8 * time.Hour).Seconds()) {
		t.Errorf("expected MaxAge %d, got %d", int((8 * time.Hour).Seconds()), ck.MaxAge)
	}
}

func TestPublicSkipper(t *testing.T) {
	e := echo.New()
	for path, want := range map[string]bool{"/health": true, "/health/db": true, "/patients": false} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, path, nil), httptest.NewRecorder())
		c.SetPath(path)
		if got := PublicSkipper(c); got != want {
			t.Errorf("PublicSkipper(%s) = %v, want %v", path, got, want)
		}
	}
}
