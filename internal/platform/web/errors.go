package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	MsgInternal = "Terjadi kesalahan tak terduga di server."
	MsgNotFound = "Halaman tidak ditemukan."
)

// ErrorPage is the data of the error template.
type ErrorPage struct {
	Code    int
	Message string
}

func (p ErrorPage) PageTitle() string {
	return fmt.Sprintf("%d", p.Code)
}

// HTTPErrorHandler renders every error returned by a handler or middleware.
// HTML clients get the error page, or a redirect to /login on 401; other
// clients get {"detail": msg}. Details of 5xx errors are logged and never
// sent to the client.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, msg := http.StatusInternalServerError, MsgInternal
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if code < http.StatusInternalServerError {
				msg = messageOf(he)
			}
		}
		if code == http.StatusNotFound && msg == http.StatusText(http.StatusNotFound) {
			msg = MsgNotFound
		}

		if code >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("path", c.Request().URL.Path).
				Int("status", code).
				Msg("request failed")
		}

		var respErr error
		switch {
		case c.Request().Method == http.MethodHead:
			respErr = c.NoContent(code)
		case code == http.StatusUnauthorized && WantsHTML(c):
			respErr = c.Redirect(http.StatusFound, "/login")
		case WantsHTML(c):
			respErr = c.Render(code, PageError, ErrorPage{Code: code, Message: msg})
			if respErr != nil && !c.Response().Committed {
				respErr = c.String(code, msg)
			}
		default:
			respErr = c.JSON(code, Detail{Detail: msg})
		}
		if respErr != nil {
			logger.Error().Err(respErr).Msg("failed to write error response")
		}
	}
}

func messageOf(he *echo.HTTPError) string {
	switch m := he.Message.(type) {
	case string:
		return m
	case error:
		return m.Error()
	case nil:
		return http.StatusText(he.Code)
	default:
		return fmt.Sprint(m)
	}
}
