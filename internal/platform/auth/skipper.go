package auth

import "github.com/labstack/echo/v4"

// publicPaths bypass per-request database sessions and authentication checks.
var publicPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
}

// PublicSkipper reports whether the request targets an infrastructure
// endpoint that must stay reachable without credentials.
func PublicSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}
