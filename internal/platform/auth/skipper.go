package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// PublicPrefix is the route prefix of the invite-token endpoints, which
// carry no bearer token.
const PublicPrefix = "/api/v1/public/"

var publicPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
	"/metrics":   true,
}

// AuthSkipper returns true for requests whose route should skip
// authentication and tenant resolution from claims.
func AuthSkipper(c echo.Context) bool {
	return IsPublicPath(c.Path())
}

// IsPublicPath reports whether path is a health or metrics endpoint or a
// public invite route.
func IsPublicPath(path string) bool {
	return publicPaths[path] || strings.HasPrefix(path, PublicPrefix)
}
