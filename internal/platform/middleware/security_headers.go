package middleware

import (
	"github.com/labstack/echo/v4"
)

type header struct{ name, value string }

// apiHeaders suit a JSON API that returns patient contact data: nothing is
// framed, sniffed, cached or referred.
var apiHeaders = []header{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Referrer-Policy", "no-referrer"},
	{"Cache-Control", "no-store"},
}

const hstsValue = "max-age=31536000; includeSubDomains"

// SecurityHeaders writes apiHeaders on every response. Strict-Transport-Security
// is added only when hsts is set, since development runs over plain HTTP.
func SecurityHeaders(hsts bool) echo.MiddlewareFunc {
	headers := apiHeaders
	if hsts {
		headers = append(append([]header(nil), apiHeaders...), header{"Strict-Transport-Security", hstsValue})
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for _, hd := range headers {
				h.Set(hd.name, hd.value)
			}
			return next(c)
		}
	}
}
