package middleware

import (
	"github.com/labstack/echo/v4"
)

const (
	apiCSP  = "default-src 'none'; frame-ancestors 'none'"
	fileCSP = "default-src 'none'; frame-ancestors 'none'; sandbox"
)

// SecurityHeaders sets response headers for the JSON API and the document
// downloads it streams. A response carrying Content-Disposition is an
// uploaded file: it gets a sandboxed CSP so a crafted upload opened in the
// browser cannot run script, and it may only be loaded same-origin.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			res := c.Response()
			h := res.Header()

			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-XSS-Protection", "0")
			h.Set("Content-Security-Policy", apiCSP)
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			// Identity documents and questionnaire answers must not be cached.
			h.Set("Cache-Control", "no-store")

			res.Before(func() {
				if h.Get(echo.HeaderContentDisposition) == "" {
					return
				}
				h.Set("Content-Security-Policy", fileCSP)
				h.Set("Cross-Origin-Resource-Policy", "same-origin")
			})

			return next(c)
		}
	}
}
