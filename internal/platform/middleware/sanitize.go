package middleware

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// MsgBadRequest is shown for requests rejected by Sanitize.
const MsgBadRequest = "Permintaan tidak valid."

const maxHeaderValueSize = 8 << 10

var (
	// Logged only; every repository query binds its parameters.
	sqlPattern = regexp.MustCompile(`(?i)('+\s*;\s*DROP\b|UNION\s+SELECT\b|'\s+OR\s+1\s*=\s*1|1\s*=\s*1)`)

	scriptPattern = regexp.MustCompile(`(?i)(<script|javascript\s*:|on\w+\s*=)`)
)

// Sanitize rejects requests carrying path traversal, null bytes, header
// injection or script fragments in the query string (the q, start and end
// filters end up echoed into pages and export links). Rejections are 400
// errors for the HTTP error handler to render.
func Sanitize() echo.MiddlewareFunc {
	return SanitizeWithLogger(zerolog.Nop())
}

// SanitizeWithLogger is Sanitize with rejections and suspicious filter
// values logged to logger.
func SanitizeWithLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if reason := inspect(c.Request(), logger); reason != "" {
				logger.Warn().
					Str("path", c.Request().URL.Path).
					Str("remote_ip", c.RealIP()).
					Str("reason", reason).
					Msg("request rejected")
				return echo.NewHTTPError(http.StatusBadRequest, MsgBadRequest).SetInternal(errors.New(reason))
			}
			return next(c)
		}
	}
}

// inspect returns why req must be rejected, or "".
func inspect(req *http.Request, logger zerolog.Logger) string {
	for _, p := range []string{req.URL.Path, req.URL.RawPath} {
		if hasTraversal(p) {
			return "path traversal"
		}
		if hasNullByte(p) {
			return "null byte in path"
		}
	}

	for name, values := range req.Header {
		for _, v := range values {
			if len(v) > maxHeaderValueSize {
				return "oversized header " + name
			}
			if strings.ContainsAny(v, "\r\n") {
				return "newline in header " + name
			}
		}
	}

	for key, values := range req.URL.Query() {
		if hasNullByte(key) || scriptPattern.MatchString(key) {
			return "unsafe query parameter name"
		}
		for _, v := range values {
			if hasNullByte(v) {
				return "null byte in query parameter " + key
			}
			if scriptPattern.MatchString(v) {
				return "script in query parameter " + key
			}
			if sqlPattern.MatchString(v) {
				logger.Warn().
					Str("param", key).
					Str("path", req.URL.Path).
					Msg("sql-like pattern in query parameter")
			}
		}
	}
	return ""
}

func hasTraversal(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(s, "..") ||
		strings.Contains(lower, "%2e%2e") ||
		strings.Contains(lower, "%252e")
}

func hasNullByte(s string) bool {
	return strings.ContainsRune(s, 0) || strings.Contains(s, "%00")
}

// SanitizeString drops null bytes and control characters other than
// newline, carriage return and tab, and trims surrounding whitespace.
func SanitizeString(input string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r == 0 || (unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t') {
			return -1
		}
		return r
	}, input))
}
