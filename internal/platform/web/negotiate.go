package web

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// WantsHTML reports whether the client asked for an HTML page. Browsers
// send text/html in Accept; API clients and tests usually do not.
func WantsHTML(c echo.Context) bool {
	return strings.Contains(strings.ToLower(c.Request().Header.Get(echo.HeaderAccept)), echo.MIMETextHTML)
}

// Detail is the JSON error body.
type Detail struct {
	Detail string            `json:"detail"`
	Errors map[string]string `json:"errors,omitempty"`
}
